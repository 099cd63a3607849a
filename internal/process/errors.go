package process

import "fmt"

// FailureError reports a start-group failure per spec §7's ProcessFailure
// kind: a preMain/postMain resource exiting non-zero, or main not reaching
// readiness within its probe budget. It never propagates as a thrown
// error past internal/broker's startGroup — the Broker converts it into a
// naming-node status update (NOT_RUNNING or NOT_INITIALIZED) instead, but
// keeping it as a distinct type lets tests and logs tell a process
// failure apart from a coordination-store failure with errors.As.
type FailureError struct {
	Resource string
	Err      error
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("process: resource %s failed: %v", e.Resource, e.Err)
}

func (e *FailureError) Unwrap() error { return e.Err }
