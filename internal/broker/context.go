package broker

import (
	"context"
	"sync"

	"github.com/denlap007/fidelio/internal/store"
)

// Context is the per-Broker runtime handle threaded through the
// orchestrator (spec §9 [EXPANSION]): a cancellable context, a
// single-producer shutdown latch closed exactly once, and the
// coordination-store handle. It replaces what the original system kept as
// global mutable statics (a shared SHUTDOWN flag and program directory)
// with a value explicitly owned by one Broker instance.
type Context struct {
	ctx    context.Context
	cancel context.CancelFunc
	Store  store.Store
	ID     string

	latchOnce sync.Once
	latch     chan struct{}
}

// NewContext derives a Context from parent, identified by id (the Broker's
// identity payload used for checkAndCreate ownership comparisons).
func NewContext(parent context.Context, st store.Store, id string) *Context {
	ctx, cancel := context.WithCancel(parent)
	return &Context{
		ctx:    ctx,
		cancel: cancel,
		Store:  st,
		ID:     id,
		latch:  make(chan struct{}),
	}
}

// Ctx returns the underlying context.Context.
func (c *Context) Ctx() context.Context { return c.ctx }

// Shutdown latches shutdown exactly once, waking every goroutine selecting
// on ShutdownLatch (in particular mainMonitor, which uses the latch to
// distinguish a planned stop from a crash). It deliberately does not cancel
// the context: the shutdown coordinator still needs a live Ctx() to wait
// for dependents and run the stop group. Cancel the context separately,
// once the coordinator has finished (see Cancel).
func (c *Context) Shutdown() {
	c.latchOnce.Do(func() { close(c.latch) })
}

// Cancel cancels the context, releasing anything still selecting on
// Ctx().Done(). Called once the shutdown coordinator has completed (spec
// §4.11 step 6, "stop the executor").
func (c *Context) Cancel() {
	c.cancel()
}

// ShutdownLatch returns a channel closed exactly once, when Shutdown is
// first called.
func (c *Context) ShutdownLatch() <-chan struct{} {
	return c.latch
}

// IsShuttingDown reports whether Shutdown has already been called,
// without blocking.
func (c *Context) IsShuttingDown() bool {
	select {
	case <-c.latch:
		return true
	default:
		return false
	}
}
