package rpcserver

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/dreamware/tripledb/internal/storage"
)

const stateKey = "caller_state"

// Session holds the per-process state the caller-contract utility methods
// operate on: a single caller-settable state value (setState/getState,
// exercised by the hibernation-resume scenario in spec §8), named cursors a
// caller can stash server-side instead of round-tripping (storeCursor/
// getCursor/clearCursor), and a live-connection counter surfaced on
// GET /health and GET /metrics.
type Session struct {
	store       storage.Store
	mu          sync.Mutex
	connections atomic.Int64
}

// NewSession builds a Session backed by a fresh in-memory store.
func NewSession() *Session {
	return &Session{store: storage.NewMemoryStore()}
}

// Connections reports how many requests are currently being handled.
func (s *Session) Connections() int64 { return s.connections.Load() }

// enter/leave bracket one request's handling, for the connections gauge.
func (s *Session) enter() { s.connections.Add(1) }
func (s *Session) leave() { s.connections.Add(-1) }

// SetState stores v as the session's single caller-settable state value.
func (s *Session) SetState(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	encoded, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.store.Put(stateKey, encoded)
}

// GetState returns the last value SetState stored, or nil if none has been
// set yet.
func (s *Session) GetState() (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := s.store.Get(stateKey)
	if err == storage.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// StateValue is GetState without the error return, for callers (like the
// /metrics handler) that only want a best-effort snapshot.
func (s *Session) StateValue() any {
	v, _ := s.GetState()
	return v
}

// Reset clears every key this session holds: the state value and every
// stashed cursor. Used by the shard/coordinator POST /reset handler.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range s.store.List() {
		if err := s.store.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

func cursorKey(id string) string { return "cursor:" + id }

// StoreCursor stashes cursor under id, overwriting any prior value.
func (s *Session) StoreCursor(id, cursor string) error {
	return s.store.Put(cursorKey(id), []byte(cursor))
}

// GetCursor returns the cursor stashed under id, or ("", false) if none.
func (s *Session) GetCursor(id string) (string, bool) {
	raw, err := s.store.Get(cursorKey(id))
	if err != nil {
		return "", false
	}
	return string(raw), true
}

// ClearCursor removes any cursor stashed under id. Idempotent.
func (s *Session) ClearCursor(id string) error {
	return s.store.Delete(cursorKey(id))
}
