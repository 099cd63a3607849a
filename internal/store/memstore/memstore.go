// Package memstore is an in-process, goroutine-safe implementation of
// store.Store. It reproduces ephemeral/persistent node semantics, one-shot
// watches, and session-expiry/reconnect behavior without a real ZooKeeper
// ensemble, so the Broker and Master protocols (spec §4.9–§4.11) can be
// tested against real watch-firing races deterministically. It also backs
// the `fidelio ... --standalone` demo mode.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/denlap007/fidelio/internal/store"
)

type node struct {
	data      []byte
	mode      store.Mode
	version   int32
	ephemeral bool
}

// Store is the in-memory coordination store.
type Store struct {
	mu        sync.Mutex
	nodes     map[string]*node
	watchers  map[string][]store.Watcher
	sessionWs []store.Watcher
	sessionID string
	connected bool

	// dropNext, when > 0, makes the next N mutating/reading calls return
	// ConnectionLoss without touching state, simulating transient
	// unavailability for retry-policy tests.
	dropNext int
}

// New returns an empty, disconnected store.
func New() *Store {
	return &Store{
		nodes:    make(map[string]*node),
		watchers: make(map[string][]store.Watcher),
	}
}

// Connect establishes a new session. hosts and sessionTimeout are accepted
// for interface compatibility but unused; the fake has no network to dial.
func (s *Store) Connect(ctx context.Context, hosts []string, sessionTimeout time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = uuid.NewString()
	s.connected = true
	return nil
}

// SimulateConnectionLoss arms the next n operations to return
// store.ConnectionLoss instead of executing, for exercising the retry
// policy of spec §4.1.
func (s *Store) SimulateConnectionLoss(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropNext = n
}

func (s *Store) consumeDropLocked() bool {
	if s.dropNext > 0 {
		s.dropNext--
		return true
	}
	return false
}

// Create implements store.Store.
func (s *Store) Create(path string, data []byte, mode store.Mode) (string, store.Result) {
	s.mu.Lock()
	if s.consumeDropLocked() {
		s.mu.Unlock()
		return "", store.ConnectionLoss
	}
	if !s.connected {
		s.mu.Unlock()
		return "", store.Other
	}
	if _, exists := s.nodes[path]; exists {
		s.mu.Unlock()
		return "", store.NodeExists
	}
	s.createLocked(path, data, mode)
	watchers := s.popWatchersLocked(path)
	s.mu.Unlock()

	s.fire(watchers, path, store.NodeCreated, store.OK)
	return path, store.OK
}

func (s *Store) createLocked(path string, data []byte, mode store.Mode) {
	buf := make([]byte, len(data))
	copy(buf, data)
	s.nodes[path] = &node{data: buf, mode: mode, version: 0, ephemeral: mode == store.Ephemeral}
}

// CheckAndCreate implements the idempotent create-or-verify-ownership
// wrapper of spec §4.1/§9.
func (s *Store) CheckAndCreate(path string, data []byte, mode store.Mode, ownerData []byte) store.Result {
	s.mu.Lock()
	if s.consumeDropLocked() {
		s.mu.Unlock()
		return store.ConnectionLoss
	}
	if !s.connected {
		s.mu.Unlock()
		return store.Other
	}

	existing, exists := s.nodes[path]
	if !exists {
		s.createLocked(path, data, mode)
		watchers := s.popWatchersLocked(path)
		s.mu.Unlock()
		s.fire(watchers, path, store.NodeCreated, store.OK)
		return store.OK
	}

	owned := string(existing.data) == string(ownerData)
	s.mu.Unlock()
	if owned {
		return store.OK
	}
	return store.NodeExists
}

// Exists implements store.Store.
func (s *Store) Exists(path string, w store.Watcher) (bool, store.Stat, store.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.consumeDropLocked() {
		return false, store.Stat{}, store.ConnectionLoss
	}
	if !s.connected {
		return false, store.Stat{}, store.Other
	}

	n, exists := s.nodes[path]
	if w != nil {
		s.watchers[path] = append(s.watchers[path], w)
	}
	if !exists {
		return false, store.Stat{}, store.OK
	}
	return true, store.Stat{Version: n.version}, store.OK
}

// GetData implements store.Store.
func (s *Store) GetData(path string, w store.Watcher) ([]byte, store.Stat, store.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.consumeDropLocked() {
		return nil, store.Stat{}, store.ConnectionLoss
	}
	if !s.connected {
		return nil, store.Stat{}, store.Other
	}

	n, exists := s.nodes[path]
	if !exists {
		return nil, store.Stat{}, store.NoNode
	}
	if w != nil {
		s.watchers[path] = append(s.watchers[path], w)
	}
	buf := make([]byte, len(n.data))
	copy(buf, n.data)
	return buf, store.Stat{Version: n.version}, store.OK
}

// SetData implements store.Store.
func (s *Store) SetData(path string, data []byte, version int32) (store.Stat, store.Result) {
	s.mu.Lock()
	if s.consumeDropLocked() {
		s.mu.Unlock()
		return store.Stat{}, store.ConnectionLoss
	}
	if !s.connected {
		s.mu.Unlock()
		return store.Stat{}, store.Other
	}

	n, exists := s.nodes[path]
	if !exists {
		s.mu.Unlock()
		return store.Stat{}, store.NoNode
	}
	if version != -1 && version != n.version {
		s.mu.Unlock()
		return store.Stat{}, store.Other
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	n.data = buf
	n.version++
	stat := store.Stat{Version: n.version}
	watchers := s.popWatchersLocked(path)
	s.mu.Unlock()

	s.fire(watchers, path, store.NodeDataChanged, store.OK)
	return stat, store.OK
}

// Delete implements store.Store.
func (s *Store) Delete(path string, version int32) store.Result {
	s.mu.Lock()
	if s.consumeDropLocked() {
		s.mu.Unlock()
		return store.ConnectionLoss
	}
	if !s.connected {
		s.mu.Unlock()
		return store.Other
	}

	n, exists := s.nodes[path]
	if !exists {
		s.mu.Unlock()
		return store.NoNode
	}
	if version != -1 && version != n.version {
		s.mu.Unlock()
		return store.Other
	}
	delete(s.nodes, path)
	watchers := s.popWatchersLocked(path)
	s.mu.Unlock()

	s.fire(watchers, path, store.NodeDeleted, store.OK)
	return store.OK
}

// Register implements store.Store.
func (s *Store) Register(w store.Watcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionWs = append(s.sessionWs, w)
}

// Close ends the session, deleting every ephemeral node it owns and firing
// NodeDeleted to anyone watching them, cascading shutdown to dependents
// watching those paths (spec §4.11 step 5).
func (s *Store) Close() error {
	s.mu.Lock()
	var toFire []string
	var watcherSets [][]store.Watcher
	for path, n := range s.nodes {
		if n.ephemeral {
			delete(s.nodes, path)
			toFire = append(toFire, path)
			watcherSets = append(watcherSets, s.popWatchersLocked(path))
		}
	}
	s.connected = false
	s.mu.Unlock()

	for i, path := range toFire {
		s.fire(watcherSets[i], path, store.NodeDeleted, store.OK)
	}
	return nil
}

// ExpireSession simulates a SessionExpired event: every ephemeral node is
// dropped (as a real ensemble would do once it times out the session) and
// every registered reconnection watcher is notified, triggering the
// Broker's session-recovery path (spec §4.10).
func (s *Store) ExpireSession() {
	s.mu.Lock()
	var toFire []string
	var watcherSets [][]store.Watcher
	for path, n := range s.nodes {
		if n.ephemeral {
			delete(s.nodes, path)
			toFire = append(toFire, path)
			watcherSets = append(watcherSets, s.popWatchersLocked(path))
		}
	}
	s.connected = false
	sessionWatchers := make([]store.Watcher, len(s.sessionWs))
	copy(sessionWatchers, s.sessionWs)
	s.mu.Unlock()

	for i, path := range toFire {
		s.fire(watcherSets[i], path, store.NodeDeleted, store.OK)
	}
	for _, w := range sessionWatchers {
		w(store.Event{Type: store.SessionExpired, Kind: store.SessionStateChanged})
	}
}

// popWatchersLocked removes and returns every watcher armed on path. Must be
// called with s.mu held.
func (s *Store) popWatchersLocked(path string) []store.Watcher {
	watchers := s.watchers[path]
	if len(watchers) == 0 {
		return nil
	}
	delete(s.watchers, path)
	return watchers
}

// fire invokes watchers (in registration order, matching a real ensemble's
// single ordered event thread — spec §5 ordering guarantee (i)) without
// holding s.mu, since watcher closures may call back into the store to
// re-arm themselves. Watcher closures must enqueue work, never block.
func (s *Store) fire(watchers []store.Watcher, path string, kind store.EventType, result store.Result) {
	if len(watchers) == 0 {
		return
	}
	ev := store.Event{Type: result, Kind: kind, Path: path}
	for _, w := range watchers {
		w(ev)
	}
}

// Dump returns a snapshot of every path currently stored, for the `inspect`
// CLI. It is not part of store.Store.
func (s *Store) Dump() map[string][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]byte, len(s.nodes))
	for path, n := range s.nodes {
		buf := make([]byte, len(n.data))
		copy(buf, n.data)
		out[path] = buf
	}
	return out
}

var _ store.Store = (*Store)(nil)
