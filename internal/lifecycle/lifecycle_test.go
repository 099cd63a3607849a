package lifecycle_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denlap007/fidelio/internal/lifecycle"
)

type recordingActions struct {
	entered []lifecycle.State
	cause   error
}

func (r *recordingActions) OnEnterInit()         { r.entered = append(r.entered, lifecycle.StateInit) }
func (r *recordingActions) OnEnterWaitingDeps()  { r.entered = append(r.entered, lifecycle.StateWaitingDeps) }
func (r *recordingActions) OnEnterStarting()     { r.entered = append(r.entered, lifecycle.StateStarting) }
func (r *recordingActions) OnEnterRunning()      { r.entered = append(r.entered, lifecycle.StateRunning) }
func (r *recordingActions) OnEnterShuttingDown() { r.entered = append(r.entered, lifecycle.StateShuttingDown) }
func (r *recordingActions) OnEnterDone()         { r.entered = append(r.entered, lifecycle.StateDone) }
func (r *recordingActions) OnEnterError(cause error) {
	r.entered = append(r.entered, lifecycle.StateError)
	r.cause = cause
}

func TestLinearBootToRunningWithNoDependencies(t *testing.T) {
	actions := &recordingActions{}
	m := lifecycle.New(actions, func() bool { return true })

	require.NoError(t, m.Dispatch(lifecycle.EventBoot, nil))
	require.NoError(t, m.Dispatch(lifecycle.EventContainerInit, nil))
	require.NoError(t, m.Dispatch(lifecycle.EventServiceNone, nil))
	require.NoError(t, m.Dispatch(lifecycle.EventProcessManagerReady, nil))

	assert.Equal(t, lifecycle.StateRunning, m.State())
	assert.Equal(t, []lifecycle.State{
		lifecycle.StateInit, lifecycle.StateWaitingDeps, lifecycle.StateStarting, lifecycle.StateRunning,
	}, actions.entered)
}

func TestWaitingDepsGuardBlocksUntilAllInitialized(t *testing.T) {
	ready := false
	actions := &recordingActions{}
	m := lifecycle.New(actions, func() bool { return ready })

	m.Dispatch(lifecycle.EventBoot, nil)
	m.Dispatch(lifecycle.EventContainerInit, nil)

	require.NoError(t, m.Dispatch(lifecycle.EventServiceAdded, nil))
	assert.Equal(t, lifecycle.StateWaitingDeps, m.State(), "guard false must block the transition")

	ready = true
	require.NoError(t, m.Dispatch(lifecycle.EventServiceInitialized, nil))
	assert.Equal(t, lifecycle.StateStarting, m.State())
}

func TestRunningServiceDeletedTriggersShutdown(t *testing.T) {
	actions := &recordingActions{}
	m := lifecycle.New(actions, func() bool { return true })
	m.Dispatch(lifecycle.EventBoot, nil)
	m.Dispatch(lifecycle.EventContainerInit, nil)
	m.Dispatch(lifecycle.EventServiceNone, nil)
	m.Dispatch(lifecycle.EventProcessManagerReady, nil)
	require.Equal(t, lifecycle.StateRunning, m.State())

	require.NoError(t, m.Dispatch(lifecycle.EventServiceDeleted, nil))
	assert.Equal(t, lifecycle.StateShuttingDown, m.State())

	require.NoError(t, m.Dispatch(lifecycle.EventStopGroupDone, nil))
	assert.Equal(t, lifecycle.StateDone, m.State())
}

func TestShutdownEventIsIdempotentFromAnyState(t *testing.T) {
	actions := &recordingActions{}
	m := lifecycle.New(actions, func() bool { return true })
	m.Dispatch(lifecycle.EventBoot, nil)

	require.NoError(t, m.Dispatch(lifecycle.EventShutdown, nil))
	assert.Equal(t, lifecycle.StateShuttingDown, m.State())

	require.NoError(t, m.Dispatch(lifecycle.EventShutdown, nil))
	assert.Equal(t, lifecycle.StateShuttingDown, m.State())
	assert.Equal(t, 1, countOccurrences(actions.entered, lifecycle.StateShuttingDown))
}

func TestErrorEventFromAnyStateCarriesCause(t *testing.T) {
	actions := &recordingActions{}
	m := lifecycle.New(actions, func() bool { return true })
	m.Dispatch(lifecycle.EventBoot, nil)

	cause := errors.New("main process exited unexpectedly")
	require.NoError(t, m.Dispatch(lifecycle.EventError, cause))
	assert.Equal(t, lifecycle.StateError, m.State())
	assert.Equal(t, cause, actions.cause)
}

func countOccurrences(states []lifecycle.State, target lifecycle.State) int {
	n := 0
	for _, s := range states {
		if s == target {
			n++
		}
	}
	return n
}
