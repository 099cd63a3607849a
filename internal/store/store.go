// Package store abstracts the coordination store (a hierarchical,
// watch-based key/value store; ZooKeeper is the reference implementation)
// behind the narrow set of operations the rest of Fidelio needs: connect,
// create, exists, getData, setData, delete, register, close. Every mutating
// or reading call returns one of a small set of Result values instead of a
// raw client error, so callers switch on outcome in one place (spec §4.1,
// §9) instead of inline error-string matching.
package store

import (
	"context"
	"errors"
	"time"
)

// Result classifies the outcome of a store operation.
type Result int

const (
	OK Result = iota
	NoNode
	NodeExists
	ConnectionLoss
	SessionExpired
	Other
)

func (r Result) String() string {
	switch r {
	case OK:
		return "OK"
	case NoNode:
		return "NoNode"
	case NodeExists:
		return "NodeExists"
	case ConnectionLoss:
		return "ConnectionLoss"
	case SessionExpired:
		return "SessionExpired"
	default:
		return "Other"
	}
}

// EventType is the kind of event delivered to a registered Watcher.
type EventType int

const (
	NodeCreated EventType = iota
	NodeDeleted
	NodeDataChanged
	SessionStateChanged
)

// Event is delivered to a Watcher exactly once per arm (watches are
// one-shot; the receiving component re-arms them if it wants to keep
// watching, per spec §4.1).
type Event struct {
	Type Result
	Kind EventType
	Path string
}

// Watcher receives store events. Implementations are typically a closure
// that re-invokes the operation that armed the watch and/or submits a
// lifecycle event to the Broker's event loop.
type Watcher func(Event)

// Mode distinguishes ephemeral nodes (tied to the creating session; deleted
// when the session dies) from persistent ones (survive session loss).
type Mode int

const (
	Persistent Mode = iota
	Ephemeral
)

// Stat is a minimal node metadata record, enough to support optimistic
// concurrency on SetData/Delete via its Version field.
type Stat struct {
	Version int32
}

// Store is the abstract coordination-store client every other package in
// this repository is written against. internal/store/zkstore implements it
// over a real ZooKeeper ensemble; internal/store/memstore implements it
// in-process for tests, the standalone demo, and local development.
type Store interface {
	// Connect opens a session against hosts, bounded by the given session
	// timeout (spec §5: connect itself is bounded to 30s by convention;
	// callers apply that bound via ctx).
	Connect(ctx context.Context, hosts []string, sessionTimeout time.Duration) error

	// Create creates path with the given data and mode, returning the
	// actual created path name (useful for sequential nodes, unused here
	// but part of the contract) and a Result.
	Create(path string, data []byte, mode Mode) (string, Result)

	// CheckAndCreate is the idempotent wrapper spec §4.1/§9 calls for: on
	// ConnectionLoss retry of a Create whose outcome is unknown, read the
	// existing node (if any) and compare ownerData against its payload. If
	// they match, the caller already owns the node (no-op, OK). If they
	// differ, a foreign owner holds it (NodeExists). If no node exists, it
	// is created fresh.
	CheckAndCreate(path string, data []byte, mode Mode, ownerData []byte) Result

	// Exists returns whether the node currently exists and, if w is
	// non-nil, arms a one-shot watch that fires on the next NodeCreated,
	// NodeDeleted or NodeDataChanged for path.
	Exists(path string, w Watcher) (bool, Stat, Result)

	// GetData reads a node's payload, arming a one-shot watch (if w is
	// non-nil) for the next NodeDataChanged or NodeDeleted on path.
	GetData(path string, w Watcher) ([]byte, Stat, Result)

	// SetData overwrites a node's payload. version is a CAS guard; -1
	// matches any version.
	SetData(path string, data []byte, version int32) (Stat, Result)

	// Delete removes a node. version is a CAS guard; -1 matches any
	// version.
	Delete(path string, version int32) Result

	// Register installs a Watcher that receives SessionStateChanged events
	// for as long as the session lives (reconnection watcher, spec
	// §4.9 step 1).
	Register(w Watcher)

	// Close ends the session, which deletes every ephemeral node the
	// session owns (spec §4.11 step 5).
	Close() error
}

// ErrNotConnected is returned by operations invoked before Connect succeeds.
var ErrNotConnected = errors.New("store: not connected")

// IsRetryable reports whether a Result should be retried by re-invoking the
// same operation, per spec §4.1's retry policy: ConnectionLoss is always
// retryable for reads, and safe to retry for creates via CheckAndCreate.
func IsRetryable(r Result) bool {
	return r == ConnectionLoss
}
