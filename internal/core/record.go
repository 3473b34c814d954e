package core

import "time"

// RequestState tracks a review request through its lifecycle. Done and failed
// are terminal; a new request key is required to review again.
type RequestState string

const (
	StatePending  RequestState = "pending"
	StateInFlight RequestState = "in-flight"
	StateDone     RequestState = "done"
	StateFailed   RequestState = "failed"
)

// RequestRecord is the registry entry for one request key. It carries the
// idempotency state and the Slack thread linkage that lets follow-up triggers
// for the same key reply into the original thread.
type RequestRecord struct {
	RequestKey string
	Source     TriggerSource
	State      RequestState
	Target     SlackTarget

	// Result is set when State is StateDone.
	Result *ReviewResult

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Terminal reports whether the record can no longer change state.
func (r *RequestRecord) Terminal() bool {
	return r.State == StateDone || r.State == StateFailed
}
