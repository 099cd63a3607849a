// Package lifecycle implements the Broker's container lifecycle state
// machine (spec §4.8): BOOT, INIT, WAITING_DEPS, STARTING, RUNNING,
// SHUTTING_DOWN, ERROR, DONE, driven by a fixed event vocabulary and
// guarded transitions. The machine itself holds no I/O; it is invoked by
// the Broker's event loop (internal/broker) and calls back into it through
// Actions at each transition, mirroring how the teacher's
// services.BaseService separates pure state bookkeeping from the
// effectful work a state change triggers.
package lifecycle

import (
	"fmt"
	"sync"

	"github.com/denlap007/fidelio/pkg/logging"
)

const subsystem = "Lifecycle"

// State is one of the eight lifecycle states of spec §4.8.
type State string

const (
	StateBoot         State = "BOOT"
	StateInit         State = "INIT"
	StateWaitingDeps  State = "WAITING_DEPS"
	StateStarting     State = "STARTING"
	StateRunning      State = "RUNNING"
	StateShuttingDown State = "SHUTTING_DOWN"
	StateError        State = "ERROR"
	StateDone         State = "DONE"
)

// Event is one of the fixed events the machine reacts to.
type Event string

const (
	EventBoot                 Event = "bootEvent"
	EventContainerInit        Event = "containerInitEvent"
	EventServiceAdded         Event = "serviceAddedEvent"
	EventServiceNone          Event = "serviceNoneEvent"
	EventServiceInitialized   Event = "serviceInitializedEvent"
	EventServiceNotRunning    Event = "serviceNotRunningEvent"
	EventServiceNotInitialized Event = "serviceNotInitializedEvent"
	EventServiceDeleted       Event = "serviceDeletedEvent"
	EventServiceUpdated       Event = "serviceUpdatedEvent"
	EventProcessManagerReady  Event = "processManagerReadyEvent"
	EventStopGroupDone        Event = "stopGroupDoneEvent"
	EventShutdown             Event = "shutdownEvent"
	EventError                Event = "errorEvent"
)

// Guard reports whether a conditional transition may fire. The only guard
// in spec §4.8 is "all dependencies PROCESSED and INITIALIZED", evaluated
// against internal/servicemgr by the Broker.
type Guard func() bool

// Actions are invoked by the machine as each state is entered; the Broker
// supplies the concrete implementations (starting the process group,
// tearing it down, publishing naming-node status, and so on).
type Actions interface {
	OnEnterInit()
	OnEnterWaitingDeps()
	OnEnterStarting()
	OnEnterRunning()
	OnEnterShuttingDown()
	OnEnterError(cause error)
	OnEnterDone()
}

// Machine is the Broker's per-container state machine. All methods must be
// called from the Broker's single event-loop goroutine; Machine does not
// lock its own state transitions, only its State() reader, matching the
// teacher's base-service convention of writes-from-one-goroutine,
// reads-from-many.
type Machine struct {
	mu      sync.RWMutex
	state   State
	actions Actions
	guard   Guard
}

// New returns a machine starting in BOOT.
func New(actions Actions, depsReady Guard) *Machine {
	return &Machine{state: StateBoot, actions: actions, guard: depsReady}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Machine) setState(s State) {
	m.mu.Lock()
	old := m.state
	m.state = s
	m.mu.Unlock()
	logging.Info(subsystem, "transition %s -> %s", old, s)
}

// Dispatch feeds ev (with an optional cause, used only by EventError) into
// the machine, applying the guarded transition table of spec §4.8. Unknown
// event/state combinations are logged and ignored — not every event is
// meaningful in every state.
func (m *Machine) Dispatch(ev Event, cause error) error {
	cur := m.State()

	// any --shutdownEvent--> SHUTTING_DOWN, idempotent.
	if ev == EventShutdown {
		if cur == StateShuttingDown || cur == StateDone {
			return nil
		}
		m.setState(StateShuttingDown)
		m.actions.OnEnterShuttingDown()
		return nil
	}

	// any --errorEvent--> ERROR.
	if ev == EventError {
		if cur == StateError {
			return nil
		}
		m.setState(StateError)
		m.actions.OnEnterError(cause)
		return nil
	}

	switch cur {
	case StateBoot:
		if ev == EventBoot {
			m.setState(StateInit)
			m.actions.OnEnterInit()
			return nil
		}

	case StateInit:
		if ev == EventContainerInit {
			m.setState(StateWaitingDeps)
			m.actions.OnEnterWaitingDeps()
			return nil
		}

	case StateWaitingDeps:
		switch ev {
		case EventServiceNone:
			m.setState(StateStarting)
			m.actions.OnEnterStarting()
			return nil
		case EventServiceAdded, EventServiceInitialized:
			if m.guard == nil || m.guard() {
				m.setState(StateStarting)
				m.actions.OnEnterStarting()
			}
			return nil
		}

	case StateStarting:
		if ev == EventProcessManagerReady {
			m.setState(StateRunning)
			m.actions.OnEnterRunning()
			return nil
		}

	case StateRunning:
		switch ev {
		case EventServiceDeleted:
			m.setState(StateShuttingDown)
			m.actions.OnEnterShuttingDown()
			return nil
		case EventServiceNotRunning, EventServiceNotInitialized, EventServiceUpdated:
			// Dependency status changes while RUNNING are observed but do
			// not themselves move this container; reconfiguration on an
			// UPDATED dependency is reserved (spec open question), not
			// acted upon.
			return nil
		}

	case StateShuttingDown:
		if ev == EventStopGroupDone {
			m.setState(StateDone)
			m.actions.OnEnterDone()
			return nil
		}

	case StateDone, StateError:
		return nil
	}

	logging.Debug(subsystem, "ignored event %s in state %s", ev, cur)
	return nil
}

// ErrInvalidTransition is reserved for callers that want to treat an
// unrecognized event/state pair as fatal instead of silently ignoring it;
// Dispatch itself never returns it, matching spec §4.8's "ignore events
// that don't apply in the current state" framing.
var ErrInvalidTransition = fmt.Errorf("lifecycle: invalid transition")
