package events_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denlap007/fidelio/internal/events"
)

func TestRecorderKeepsBoundedRecentHistory(t *testing.T) {
	r := events.NewRecorder(2)
	r.Emit("webapp", events.ReasonContainerClaimed, "claimed container node")
	r.Emit("webapp", events.ReasonConfigReceived, "received configuration")
	r.Emit("webapp", events.ReasonContainerRunning, "main process ready")

	recent := r.Recent()
	require.Len(t, recent, 2)
	assert.Equal(t, events.ReasonConfigReceived, recent[0].Reason)
	assert.Equal(t, events.ReasonContainerRunning, recent[1].Reason)
}

func TestEmitFormatsMessage(t *testing.T) {
	r := events.NewRecorder(10)
	r.Emit("db", events.ReasonDependencyLost, "dependency %s vanished after %d retries", "cache", 3)

	recent := r.Recent()
	require.Len(t, recent, 1)
	assert.Equal(t, "dependency cache vanished after 3 retries", recent[0].Message)
}
