package process

import (
	"context"
	"fmt"
	"time"

	"github.com/denlap007/fidelio/internal/descriptor"
	"github.com/denlap007/fidelio/internal/env"
	"github.com/denlap007/fidelio/pkg/logging"
)

// StopTimeout bounds how long Stop waits for a resource to exit gracefully
// before escalating to SIGKILL.
const StopTimeout = 10 * time.Second

// Manager owns every Handler for one container's descriptor.ProcessSpec and
// runs its start/stop groups in the ordering spec §4.5 requires: preMain
// resources sequentially, then main, then postMain resources sequentially.
type Manager struct {
	host     string
	port     int
	onChange StateChangeFunc

	preMainStart  []Handler
	mainHandler   *MainHandler
	postMainStart []Handler
	stopHandlers  []Handler
}

// NewManager builds a Manager for spec's start/stop groups, wiring the
// main resource's readiness probe to host:port (the container's own
// advertised environment, spec §4.6) and passing envMap — built by
// internal/env.Build — down to every spawned process (spec §4.7: "an
// immutable mapping consumed by both process and task handlers").
func NewManager(spec descriptor.ProcessSpec, host string, port int, envMap map[string]string, onChange StateChangeFunc) *Manager {
	envSlice := env.ToSlice(envMap)
	m := &Manager{host: host, port: port, onChange: onChange}

	for _, res := range spec.Start.PreMain {
		m.preMainStart = append(m.preMainStart, NewDefaultHandler(res, envSlice, onChange))
	}
	m.mainHandler = NewMainHandler(spec.Start.Main, host, port, envSlice, onChange)
	for _, res := range spec.Start.PostMain {
		m.postMainStart = append(m.postMainStart, NewDefaultHandler(res, envSlice, onChange))
	}

	for _, res := range spec.Stop.PreMain {
		m.stopHandlers = append(m.stopHandlers, NewDefaultHandler(res, envSlice, onChange))
	}
	if spec.Stop.Main.Name != "" {
		m.stopHandlers = append(m.stopHandlers, NewDefaultHandler(spec.Stop.Main, envSlice, onChange))
	}
	for _, res := range spec.Stop.PostMain {
		m.stopHandlers = append(m.stopHandlers, NewDefaultHandler(res, envSlice, onChange))
	}

	return m
}

// StartGroup runs the start group: preMain resources to completion in
// order, then the main process started and probed for readiness, then
// postMain resources to completion in order. The first failure aborts the
// remaining sequence (spec §4.5 edge case: "a preMain failure prevents the
// main process from ever starting").
func (m *Manager) StartGroup(ctx context.Context) error {
	for _, h := range m.preMainStart {
		logging.Info(subsystem, "running preMain resource %s", h.Name())
		if err := h.Start(ctx); err != nil {
			return &FailureError{Resource: h.Name(), Err: err}
		}
	}

	logging.Info(subsystem, "starting main resource %s", m.mainHandler.Name())
	if err := m.mainHandler.Start(ctx); err != nil {
		return &FailureError{Resource: m.mainHandler.Name(), Err: err}
	}
	if err := m.mainHandler.WaitFor(ctx); err != nil {
		return &FailureError{Resource: m.mainHandler.Name(), Err: fmt.Errorf("never became ready: %w", err)}
	}

	for _, h := range m.postMainStart {
		logging.Info(subsystem, "running postMain resource %s", h.Name())
		if err := h.Start(ctx); err != nil {
			return &FailureError{Resource: h.Name(), Err: err}
		}
	}
	return nil
}

// StopGroup runs every stop-group resource in order, best-effort: a
// failing resource is logged and the sequence continues, since shutdown
// must make forward progress even if one hook is broken (spec §4.11).
func (m *Manager) StopGroup(ctx context.Context) error {
	var firstErr error
	for _, h := range m.stopHandlers {
		logging.Info(subsystem, "running stop resource %s", h.Name())
		if err := h.Start(ctx); err != nil {
			logging.Warn(subsystem, "stop resource %s failed, continuing: %v", h.Name(), err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	logging.Info(subsystem, "stopping main resource %s", m.mainHandler.Name())
	if err := m.mainHandler.Stop(ctx, StopTimeout); err != nil {
		logging.Warn(subsystem, "main resource %s did not stop cleanly: %v", m.mainHandler.Name(), err)
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// MainState reports the main resource's current state, used by the Broker
// to choose the naming status it publishes after a start-group failure and
// by its main-process monitor to detect an unexpected exit while RUNNING
// (spec §4.8 errorEvent trigger).
func (m *Manager) MainState() State {
	return m.mainHandler.State()
}

