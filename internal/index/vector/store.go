package vector

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"go.etcd.io/bbolt"

	"github.com/dreamware/tripledb/internal/errs"
	"github.com/dreamware/tripledb/internal/ident"
)

var (
	graphBucket  = []byte("graph_meta")
	vectorBucket = []byte("vectors")
)

// Store is the per-shard vector index: one in-memory HNSW Graph per
// predicate, with vector payloads persisted in a bbolt database under keys
// "vectors/<predicate>/<subject>". The graph topology itself is not
// persisted; each predicate's graph is rebuilt from its stored vectors.
type Store struct {
	mu     sync.RWMutex
	db     *bbolt.DB
	cfg    Config
	graphs map[ident.Predicate]*Graph
}

// Open opens (creating if absent) the bbolt database at path.
func Open(path string, cfg Config) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "vector: open %s", path)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(graphBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(vectorBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errs.Wrap(errs.Internal, err, "vector: ensure buckets")
	}
	return &Store{db: db, cfg: cfg, graphs: make(map[ident.Predicate]*Graph)}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// graphFor returns (creating if absent) the in-memory HNSW graph for
// predicate, lazily restoring any persisted vectors the first time it is
// touched this process lifetime.
func (s *Store) graphFor(predicate ident.Predicate) (*Graph, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if g, ok := s.graphs[predicate]; ok {
		return g, nil
	}

	g := NewGraph(s.cfg)
	if err := s.restore(predicate, g); err != nil {
		return nil, err
	}
	s.graphs[predicate] = g
	return g, nil
}

func vectorKey(predicate ident.Predicate, subject ident.EntityID) []byte {
	return []byte(fmt.Sprintf("vectors/%s/%s", predicate, subject))
}

// restore replays every persisted vector for predicate back into g. Graph
// topology itself (neighbor lists) is not persisted — rebuilding the
// graph from its vectors on first touch is cheap relative to HNSW insert
// cost and avoids a second serialization format to keep in sync.
func (s *Store) restore(predicate ident.Predicate, g *Graph) error {
	prefix := []byte(fmt.Sprintf("vectors/%s/", predicate))
	return s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(vectorBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			subject := ident.EntityID(k[len(prefix):])
			vec, err := decodeVector(v)
			if err != nil {
				return err
			}
			if _, err := g.Insert(subject, vec); err != nil {
				return err
			}
		}
		return nil
	})
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, errs.New(errs.Internal, "vector: corrupted vector blob (size %d not a multiple of 4)", len(data))
	}
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out, nil
}

// Insert persists subject's vector and inserts it into predicate's HNSW
// graph.
func (s *Store) Insert(predicate ident.Predicate, subject ident.EntityID, vec []float32) error {
	g, err := s.graphFor(predicate)
	if err != nil {
		return err
	}
	if err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(vectorBucket).Put(vectorKey(predicate, subject), encodeVector(vec))
	}); err != nil {
		return errs.Wrap(errs.Internal, err, "vector: persist vector")
	}
	_, err = g.Insert(subject, vec)
	return err
}

// Search runs a k-nearest-neighbor query against predicate's graph.
func (s *Store) Search(predicate ident.Predicate, vec []float32, k, ef int) ([]Result, error) {
	g, err := s.graphFor(predicate)
	if err != nil {
		return nil, err
	}
	return g.Search(vec, k, ef)
}

// Delete removes subject's vector for predicate, mark-and-skip in the
// graph and tombstoning the persisted blob.
func (s *Store) Delete(predicate ident.Predicate, subject ident.EntityID) error {
	g, err := s.graphFor(predicate)
	if err != nil {
		return err
	}
	g.Delete(subject)
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(vectorBucket).Delete(vectorKey(predicate, subject))
	})
}

// Rebuild replaces predicate's in-memory graph with a freshly compacted
// one containing only live vectors (spec §4.6 "a rebuild reclaims
// space").
func (s *Store) Rebuild(predicate ident.Predicate) error {
	g, err := s.graphFor(predicate)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graphs[predicate] = g.Rebuild()
	return nil
}
