// Package process implements the process-group execution engine of spec
// §4.5: starting and stopping the ordered preMain/main/postMain resources
// of a container's descriptor, and probing the main process for readiness
// with bounded exponential backoff. The state tracking here mirrors
// the teacher's services.BaseService (mutex-guarded state plus a
// state-change callback invoked outside the lock) generalized from one
// long-lived service to one OS process per descriptor.Resource.
package process

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/denlap007/fidelio/internal/descriptor"
)

const subsystem = "Process"

// State is the lifecycle state of a single spawned resource.
type State string

const (
	StateNotStarted State = "NOT_STARTED"
	StateRunning    State = "RUNNING"
	StateReady      State = "READY"
	StateExited     State = "EXITED"
	StateFailed     State = "FAILED"
)

// StateChangeFunc is invoked, outside of any internal lock, whenever a
// Handler's state changes.
type StateChangeFunc func(name string, oldState, newState State, err error)

// Handler runs and supervises a single descriptor.Resource.
type Handler interface {
	Name() string
	Start(ctx context.Context) error
	WaitFor(ctx context.Context) error
	Stop(ctx context.Context, timeout time.Duration) error
	IsRunning() bool
	State() State
}

// baseHandler is the common mutex-guarded state machine every Handler
// embeds, generalized from the teacher's BaseService.
type baseHandler struct {
	mu       sync.RWMutex
	name     string
	state    State
	lastErr  error
	onChange StateChangeFunc
}

func newBaseHandler(name string, onChange StateChangeFunc) *baseHandler {
	return &baseHandler{name: name, state: StateNotStarted, onChange: onChange}
}

func (b *baseHandler) Name() string { return b.name }

func (b *baseHandler) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

func (b *baseHandler) IsRunning() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state == StateRunning || b.state == StateReady
}

func (b *baseHandler) setState(newState State, err error) {
	b.mu.Lock()
	old := b.state
	b.state = newState
	b.lastErr = err
	cb := b.onChange
	name := b.name
	b.mu.Unlock()

	if cb != nil && old != newState {
		cb(name, old, newState, err)
	}
}

// DefaultHandler runs a non-probed resource (any preMain or postMain
// entry): spawn, wait for exit, report the exit code as the result.
type DefaultHandler struct {
	*baseHandler
	resource descriptor.Resource
	env      []string
	cmd      *exec.Cmd
}

// NewDefaultHandler returns a handler for a preMain/postMain resource. env
// is the "KEY=VALUE" slice produced by internal/env.ToSlice, appended to
// the Broker's own environment for the spawned process (spec §4.7).
func NewDefaultHandler(res descriptor.Resource, env []string, onChange StateChangeFunc) *DefaultHandler {
	return &DefaultHandler{
		baseHandler: newBaseHandler(res.Name, onChange),
		resource:    res,
		env:         env,
	}
}

// Start launches the resource's process and returns once it has exited.
// PreMain/postMain resources are expected to run to completion (spec
// §4.5: "ordered, run-to-completion helper processes").
func (h *DefaultHandler) Start(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, h.resource.Path, h.resource.Args...)
	cmd.Dir = h.resource.Dir
	cmd.Env = append(os.Environ(), h.env...)
	h.cmd = cmd
	h.setState(StateRunning, nil)

	if err := cmd.Run(); err != nil {
		h.setState(StateFailed, err)
		return fmt.Errorf("process: resource %s failed: %w", h.resource.Name, err)
	}
	h.setState(StateExited, nil)
	return nil
}

// WaitFor is a no-op for DefaultHandler: Start already blocks until exit.
func (h *DefaultHandler) WaitFor(ctx context.Context) error { return nil }

// Stop signals the resource's process if it is still running.
func (h *DefaultHandler) Stop(ctx context.Context, timeout time.Duration) error {
	return stopCmd(h.cmd, timeout)
}

// stopCmd sends SIGTERM, then SIGKILL after timeout, matching a supervisor
// process's usual graceful-then-forceful shutdown sequence.
func stopCmd(cmd *exec.Cmd, timeout time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return cmd.Process.Kill()
	}

	done := make(chan struct{})
	go func() {
		cmd.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return cmd.Process.Kill()
	}
}

var _ Handler = (*DefaultHandler)(nil)
