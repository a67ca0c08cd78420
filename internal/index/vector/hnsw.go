// Package vector implements spec §4.6's HNSW vector index: graph-over-
// storage, with configuration, insert, query, distance, and deletion
// semantics matching the spec's design notes exactly (this is the other
// from-scratch algorithmic core the spec calls out, alongside geohash and
// the bloom filter).
package vector

import (
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/dreamware/tripledb/internal/ident"
)

// Config parameterizes one HNSW graph (spec §4.6 "Configuration").
type Config struct {
	// M is the max connections per layer above 0.
	M int
	// M0 is the max connections at layer 0, typically 2*M.
	M0 int
	// EfConstruction is the beam width used while inserting.
	EfConstruction int
	// LevelMultiplier controls the geometric distribution new nodes'
	// top layer is sampled from. Zero means "default to 1/ln(M)".
	LevelMultiplier float64
	Metric          Metric
}

// normalize fills in defaults the way spec §4.6 describes them.
func (c Config) normalize() Config {
	if c.M <= 0 {
		c.M = 16
	}
	if c.M0 <= 0 {
		c.M0 = 2 * c.M
	}
	if c.EfConstruction <= 0 {
		c.EfConstruction = 200
	}
	if c.LevelMultiplier <= 0 {
		c.LevelMultiplier = 1 / math.Log(float64(c.M))
	}
	if c.Metric == "" {
		c.Metric = Cosine
	}
	return c
}

type node struct {
	id      int64
	subject ident.EntityID
	vector  []float32
	layer   int
	deleted bool
	// neighbors[l] is this node's neighbor list at layer l.
	neighbors map[int][]int64
}

// Graph is one HNSW graph over a fixed dimensionality and metric,
// indexing one predicate's vector-valued objects for one shard.
type Graph struct {
	mu sync.RWMutex

	cfg    Config
	dist   func(a, b []float32) (float32, error)
	rand   *rand.Rand
	nodes  map[int64]*node
	bySubj map[ident.EntityID]int64
	nextID int64

	entryPoint int64
	maxLayer   int
	hasEntry   bool
}

// NewGraph constructs an empty HNSW graph.
func NewGraph(cfg Config) *Graph {
	cfg = cfg.normalize()
	return &Graph{
		cfg:    cfg,
		dist:   distanceFunc(cfg.Metric),
		rand:   rand.New(rand.NewSource(1)),
		nodes:  make(map[int64]*node),
		bySubj: make(map[ident.EntityID]int64),
	}
}

// randomLevel samples a layer from the geometric distribution spec §4.6
// describes: level = floor(-ln(uniform) * levelMultiplier).
func (g *Graph) randomLevel() int {
	r := g.rand.Float64()
	if r <= 0 {
		r = 1e-9
	}
	level := int(math.Floor(-math.Log(r) * g.cfg.LevelMultiplier))
	if level < 0 {
		level = 0
	}
	return level
}

// Insert adds subject's vector to the graph, replacing any prior vector
// for the same subject. Returns the assigned node id.
func (g *Graph) Insert(subject ident.EntityID, vec []float32) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if existingID, ok := g.bySubj[subject]; ok {
		g.markDeletedLocked(existingID)
	}

	level := g.randomLevel()
	id := g.nextID
	g.nextID++

	n := &node{id: id, subject: subject, vector: append([]float32(nil), vec...), layer: level, neighbors: make(map[int][]int64)}
	g.nodes[id] = n
	g.bySubj[subject] = id

	if !g.hasEntry {
		g.entryPoint = id
		g.maxLayer = level
		g.hasEntry = true
		return id, nil
	}

	entry := g.entryPoint
	curDist, err := g.dist(vec, g.nodes[entry].vector)
	if err != nil {
		return 0, err
	}

	// Greedy descend from the top layer down to level+1, refining the
	// entry point one layer at a time.
	for l := g.maxLayer; l > level; l-- {
		entry, curDist = g.greedyClosest(entry, curDist, vec, l)
	}

	// From level down to 0, run a search-ef beam and connect.
	for l := min(level, g.maxLayer); l >= 0; l-- {
		candidates := g.searchLayer(vec, entry, g.cfg.EfConstruction, l)
		maxConn := g.cfg.M
		if l == 0 {
			maxConn = g.cfg.M0
		}
		selected := selectNeighbors(candidates, maxConn)
		for _, c := range selected {
			g.connect(id, c.id, l, maxConn)
			g.connect(c.id, id, l, maxConn)
		}
		if len(selected) > 0 {
			entry = selected[0].id
		}
	}

	if level > g.maxLayer {
		g.maxLayer = level
		g.entryPoint = id
	}

	return id, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func (g *Graph) connect(from, to int64, layer, maxConn int) {
	n := g.nodes[from]
	n.neighbors[layer] = append(n.neighbors[layer], to)
	if len(n.neighbors[layer]) > maxConn {
		// Trim to the maxConn closest neighbors at this layer.
		type scored struct {
			id int64
			d  float32
		}
		scoredList := make([]scored, 0, len(n.neighbors[layer]))
		for _, nb := range n.neighbors[layer] {
			d, err := g.dist(n.vector, g.nodes[nb].vector)
			if err != nil {
				continue
			}
			scoredList = append(scoredList, scored{nb, d})
		}
		sort.Slice(scoredList, func(i, j int) bool { return scoredList[i].d < scoredList[j].d })
		if len(scoredList) > maxConn {
			scoredList = scoredList[:maxConn]
		}
		trimmed := make([]int64, len(scoredList))
		for i, s := range scoredList {
			trimmed[i] = s.id
		}
		n.neighbors[layer] = trimmed
	}
}

// greedyClosest walks from entry towards the closest neighbor to vec at
// layer l until no neighbor improves on the current distance.
func (g *Graph) greedyClosest(entry int64, entryDist float32, vec []float32, l int) (int64, float32) {
	current := entry
	currentDist := entryDist
	for {
		improved := false
		for _, nb := range g.nodes[current].neighbors[l] {
			if g.nodes[nb].deleted {
				continue
			}
			d, err := g.dist(vec, g.nodes[nb].vector)
			if err != nil {
				continue
			}
			if d < currentDist {
				current = nb
				currentDist = d
				improved = true
			}
		}
		if !improved {
			return current, currentDist
		}
	}
}

type candidate struct {
	id int64
	d  float32
}

// searchLayer performs a best-first beam search of width ef starting from
// entry, at layer l.
func (g *Graph) searchLayer(vec []float32, entry int64, ef int, l int) []candidate {
	visited := map[int64]bool{entry: true}
	entryDist, err := g.dist(vec, g.nodes[entry].vector)
	if err != nil {
		return nil
	}

	candidates := []candidate{{entry, entryDist}}
	results := []candidate{{entry, entryDist}}

	for len(candidates) > 0 {
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].d < candidates[j].d })
		best := candidates[0]
		candidates = candidates[1:]

		sort.Slice(results, func(i, j int) bool { return results[i].d < results[j].d })
		if len(results) >= ef && best.d > results[len(results)-1].d {
			break
		}

		for _, nb := range g.nodes[best.id].neighbors[l] {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			if g.nodes[nb].deleted {
				continue
			}
			d, err := g.dist(vec, g.nodes[nb].vector)
			if err != nil {
				continue
			}
			candidates = append(candidates, candidate{nb, d})
			results = append(results, candidate{nb, d})
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].d < results[j].d })
	if len(results) > ef {
		results = results[:ef]
	}
	return results
}

func selectNeighbors(candidates []candidate, maxConn int) []candidate {
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].d < candidates[j].d })
	if len(candidates) > maxConn {
		candidates = candidates[:maxConn]
	}
	return candidates
}

// Result is one nearest-neighbor hit.
type Result struct {
	Subject  ident.EntityID
	Distance float32
}

// Search returns the top-k nearest (non-deleted) neighbors of vec, using
// a beam of width ef at layer 0 (spec §4.6 "Query").
func (g *Graph) Search(vec []float32, k, ef int) ([]Result, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if !g.hasEntry {
		return nil, nil
	}
	if ef < k {
		ef = k
	}

	entry := g.entryPoint
	entryDist, err := g.dist(vec, g.nodes[entry].vector)
	if err != nil {
		return nil, err
	}

	for l := g.maxLayer; l > 0; l-- {
		entry, entryDist = g.greedyClosest(entry, entryDist, vec, l)
	}

	candidates := g.searchLayer(vec, entry, ef, 0)
	out := make([]Result, 0, k)
	for _, c := range candidates {
		if g.nodes[c.id].deleted {
			continue
		}
		out = append(out, Result{Subject: g.nodes[c.id].subject, Distance: c.d})
		if len(out) == k {
			break
		}
	}
	return out, nil
}

// Delete marks subject's node deleted: mark-and-skip, per spec §4.6 —
// neighbor lists are left untouched until a rebuild. A deleted subject
// becomes invisible to Search and can be reinserted via Insert.
func (g *Graph) Delete(subject ident.EntityID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, ok := g.bySubj[subject]
	if !ok {
		return false
	}
	g.markDeletedLocked(id)
	delete(g.bySubj, subject)
	return true
}

func (g *Graph) markDeletedLocked(id int64) {
	if n, ok := g.nodes[id]; ok {
		n.deleted = true
	}
}

// Rebuild reconstructs a fresh graph containing only the live vectors,
// reclaiming the space deleted nodes' neighbor lists otherwise hold onto
// (spec §4.6: "A rebuild reclaims space").
func (g *Graph) Rebuild() *Graph {
	g.mu.RLock()
	type live struct {
		subject ident.EntityID
		vector  []float32
	}
	liveNodes := make([]live, 0, len(g.nodes))
	for _, n := range g.nodes {
		if !n.deleted {
			liveNodes = append(liveNodes, live{n.subject, n.vector})
		}
	}
	cfg := g.cfg
	g.mu.RUnlock()

	fresh := NewGraph(cfg)
	for _, ln := range liveNodes {
		_, _ = fresh.Insert(ln.subject, ln.vector)
	}
	return fresh
}

// Len reports the number of live (non-deleted) vectors in the graph.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n := 0
	for _, nd := range g.nodes {
		if !nd.deleted {
			n++
		}
	}
	return n
}
