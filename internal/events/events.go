// Package events generates structured lifecycle events for container
// state transitions, naming-status changes, and shutdown milestones.
// Unlike the dependency pack's events package — which publishes
// Kubernetes Event API objects through a cluster client — Fidelio has no
// Kubernetes API server to publish to, so events here are realized purely
// as structured log lines (pkg/logging) plus a bounded in-memory ring
// buffer the Broker exposes through Broker.Events (no CLI command reads
// it), the closest in-process
// analogue available without that cluster dependency.
package events

import (
	"fmt"
	"sync"
	"time"

	"github.com/denlap007/fidelio/pkg/logging"
)

const subsystem = "Events"

// Reason is a short, machine-stable identifier for why an event fired,
// mirroring Kubernetes Event reasons without requiring the Kubernetes API.
type Reason string

const (
	ReasonContainerClaimed   Reason = "ContainerClaimed"
	ReasonConfigReceived     Reason = "ConfigReceived"
	ReasonDependencyReady    Reason = "DependencyReady"
	ReasonDependencyLost     Reason = "DependencyLost"
	ReasonStartGroupFailed   Reason = "StartGroupFailed"
	ReasonContainerRunning   Reason = "ContainerRunning"
	ReasonShutdownRequested  Reason = "ShutdownRequested"
	ReasonShutdownComplete   Reason = "ShutdownComplete"
	ReasonSessionExpired     Reason = "SessionExpired"
	ReasonSessionRecovered   Reason = "SessionRecovered"
)

// Event is one recorded lifecycle event.
type Event struct {
	Time        time.Time
	ServiceName string
	Reason      Reason
	Message     string
}

// Recorder generates events for one or more containers and keeps the most
// recent ones in memory for inspection.
type Recorder struct {
	mu      sync.Mutex
	maxKept int
	recent  []Event
}

// NewRecorder returns a Recorder retaining up to maxKept events.
func NewRecorder(maxKept int) *Recorder {
	if maxKept <= 0 {
		maxKept = 256
	}
	return &Recorder{maxKept: maxKept}
}

// Emit records an event and logs it at info level, tagged with the
// service name and reason the way the dependency pack tags its own
// generated events with kind/name/namespace.
func (r *Recorder) Emit(serviceName string, reason Reason, format string, args ...interface{}) {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	ev := Event{Time: time.Now(), ServiceName: serviceName, Reason: reason, Message: msg}

	r.mu.Lock()
	r.recent = append(r.recent, ev)
	if len(r.recent) > r.maxKept {
		r.recent = r.recent[len(r.recent)-r.maxKept:]
	}
	r.mu.Unlock()

	logging.Info(subsystem, "%s: %s [%s]", serviceName, msg, reason)
}

// Recent returns a snapshot of the most recently emitted events, oldest
// first.
func (r *Recorder) Recent() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.recent))
	copy(out, r.recent)
	return out
}
