// Package servicemgr implements the Broker-side service manager of spec
// §4.4: a per-Broker in-memory view of each dependency's naming-node state,
// keyed by nsPath. The Broker calls its mutators from its boot goroutine
// and from coordination-store watch callbacks, not from its event loop;
// Manager's own lock serializes those writes and gives readers consistent
// snapshots, matching the same internal-locking posture the dependency
// pack's own service registry takes (unexported lock, no caller-side
// locking contract).
package servicemgr

import (
	"sync"

	"github.com/denlap007/fidelio/internal/descriptor"
)

// ConfStatus tracks whether a dependency's descriptor has been fetched and
// processed yet.
type ConfStatus string

const (
	ConfNotProcessed ConfStatus = "NOT_PROCESSED"
	ConfProcessed    ConfStatus = "PROCESSED"
)

// Entry is the per-dependency record the Broker keeps, addressed by the
// dependency's naming-store path.
type Entry struct {
	ServiceName   string
	ZkContainerPath string
	Status        descriptor.Status
	HasStatus     bool
	ConfStatus    ConfStatus
	Descriptor    *descriptor.Container
}

// Manager is the Broker's dependency-state tracker.
type Manager struct {
	mu      sync.RWMutex
	entries map[string]*Entry // nsPath -> entry
}

// New returns a manager seeded with one not-yet-processed entry per
// dependency service name, addressed by its naming-store path.
func New(depPaths map[string]string) *Manager {
	m := &Manager{entries: make(map[string]*Entry, len(depPaths))}
	for serviceName, nsPath := range depPaths {
		m.entries[nsPath] = &Entry{
			ServiceName: serviceName,
			ConfStatus:  ConfNotProcessed,
		}
	}
	return m
}

// HasServices reports whether this Broker has any dependencies at all; a
// container with none proceeds directly from WAITING_DEPS to STARTING
// (spec §4.8, serviceNoneEvent).
func (m *Manager) HasServices() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries) > 0
}

// SetSrvStatus records the latest status observed for the dependency at
// nsPath.
func (m *Manager) SetSrvStatus(nsPath string, status descriptor.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[nsPath]; ok {
		e.Status = status
		e.HasStatus = true
	}
}

// SetSrvZkConPath records the dependency's container-node path, read from
// its naming-node payload.
func (m *Manager) SetSrvZkConPath(nsPath, containerPath string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[nsPath]; ok {
		e.ZkContainerPath = containerPath
	}
}

// SetSrvDescriptor records the dependency's full descriptor, fetched from
// its container node.
func (m *Manager) SetSrvDescriptor(nsPath string, d *descriptor.Container) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[nsPath]; ok {
		e.Descriptor = d
	}
}

// SetConfProcessed marks the dependency as fully queried (spec §4.9 step
// 7: "mark conf PROCESSED").
func (m *Manager) SetConfProcessed(nsPath string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[nsPath]; ok {
		e.ConfStatus = ConfProcessed
	}
}

// ResetSrvNode clears everything learned about a dependency whose naming
// node just vanished (spec §4.9 step 10, §4.8 serviceDeletedEvent), but
// keeps its entry tracked: the dependency still has to be re-fetched and
// reach INITIALIZED again before AllInitializedAndProcessed considers it
// satisfied, and a later NodeCreated for the same nsPath still has an
// entry to populate.
func (m *Manager) ResetSrvNode(nsPath string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[nsPath]; ok {
		e.Status = ""
		e.HasStatus = false
		e.ZkContainerPath = ""
		e.Descriptor = nil
		e.ConfStatus = ConfNotProcessed
	}
}

// AllInitializedAndProcessed reports whether every tracked dependency has
// been processed and currently advertises INITIALIZED — the guard gating
// the WAITING_DEPS -> STARTING transition (spec §4.8).
func (m *Manager) AllInitializedAndProcessed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entries {
		if e.ConfStatus != ConfProcessed {
			return false
		}
		if !e.HasStatus || e.Status != descriptor.StatusInitialized {
			return false
		}
	}
	return true
}

// Get returns a copy of the entry for nsPath, if tracked.
func (m *Manager) Get(nsPath string) (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[nsPath]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// All returns a snapshot of every tracked entry; the Broker reads it to
// build the environment from its dependencies' descriptors.
func (m *Manager) All() map[string]Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Entry, len(m.entries))
	for path, e := range m.entries {
		out[path] = *e
	}
	return out
}
