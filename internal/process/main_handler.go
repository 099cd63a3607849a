package process

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/denlap007/fidelio/internal/descriptor"
	"github.com/denlap007/fidelio/pkg/logging"
)

// Exponential backoff bounds for the main-process readiness probe,
// mirroring the teacher's unreachable-server backoff constants in
// internal/services/mcpserver (InitialBackoff/MaxBackoff/BackoffMultiplier),
// rescaled from minutes-long reconnect intervals: a probe that never
// succeeds gives up after 15 attempts, about 100 seconds of backoff
// (0.2s doubling up to the 10s cap).
const (
	InitialProbeBackoff = 200 * time.Millisecond
	MaxProbeBackoff      = 10 * time.Second
	ProbeBackoffMultiplier = 2.0
	MaxProbeAttempts       = 15
)

// MainHandler runs a container's main resource and probes it for
// readiness by attempting a TCP dial against its advertised host:port,
// backing off exponentially between attempts (spec §4.5: "the main
// process is considered READY once its advertised port accepts
// connections").
type MainHandler struct {
	*baseHandler
	resource descriptor.Resource
	host     string
	port     int
	dial     func(ctx context.Context, network, addr string) (net.Conn, error)
	cmd      *cmdRunner
}

// NewMainHandler returns a handler for the container's main resource,
// probing host:port for readiness. env is the "KEY=VALUE" slice produced
// by internal/env.ToSlice, appended to the Broker's own environment for
// the spawned process (spec §4.7).
func NewMainHandler(res descriptor.Resource, host string, port int, env []string, onChange StateChangeFunc) *MainHandler {
	d := net.Dialer{}
	return &MainHandler{
		baseHandler: newBaseHandler(res.Name, onChange),
		resource:    res,
		host:        host,
		port:        port,
		dial:        d.DialContext,
		cmd:         newCmdRunner(res, env),
	}
}

// Start launches the main process in the background; readiness is
// determined separately by WaitFor.
func (h *MainHandler) Start(ctx context.Context) error {
	if err := h.cmd.start(ctx); err != nil {
		h.setState(StateFailed, err)
		return fmt.Errorf("process: main resource %s failed to start: %w", h.resource.Name, err)
	}
	h.setState(StateRunning, nil)
	go func() {
		err := h.cmd.wait()
		if h.State() != StateReady && h.State() != StateRunning {
			return
		}
		if err != nil {
			h.setState(StateFailed, err)
		} else {
			h.setState(StateExited, nil)
		}
	}()
	return nil
}

// WaitFor probes h.host:h.port with exponentially-backed-off retries,
// until it accepts a connection or MaxProbeAttempts is exhausted.
func (h *MainHandler) WaitFor(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", h.host, h.port)
	backoff := InitialProbeBackoff

	for attempt := 1; attempt <= MaxProbeAttempts; attempt++ {
		if !h.IsRunning() {
			return fmt.Errorf("process: main resource %s exited before becoming ready", h.resource.Name)
		}

		conn, err := h.dial(ctx, "tcp", addr)
		if err == nil {
			conn.Close()
			h.setState(StateReady, nil)
			return nil
		}

		logging.Debug(subsystem, "main resource %s not ready yet (attempt %d/%d): %v", h.resource.Name, attempt, MaxProbeAttempts, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff = time.Duration(float64(backoff) * ProbeBackoffMultiplier)
		if backoff > MaxProbeBackoff {
			backoff = MaxProbeBackoff
		}
	}

	err := fmt.Errorf("process: main resource %s did not become ready after %d attempts", h.resource.Name, MaxProbeAttempts)
	h.setState(StateFailed, err)
	return err
}

// Stop terminates the main process.
func (h *MainHandler) Stop(ctx context.Context, timeout time.Duration) error {
	return h.cmd.stop(timeout)
}

// SetDialer overrides the TCP dial function used by WaitFor, for tests
// that exercise the backoff/retry behavior without a real listener.
func (h *MainHandler) SetDialer(dial func(ctx context.Context, network, addr string) (net.Conn, error)) {
	h.dial = dial
}

var _ Handler = (*MainHandler)(nil)
