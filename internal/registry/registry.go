// Package registry tracks in-flight and completed review requests. It is the
// single shared mutable resource in the orchestrator: the atomic claim of a
// request key is what guarantees at most one provider call per logical review,
// no matter how many times Slack or the CI runner re-delivers a trigger.
package registry

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mergemate/mergemate/internal/core"
)

// Registry is an in-memory keyed store of RequestRecords. All state
// transitions happen under one mutex whose scope never includes a network
// call; reads hand out copies so callers can never mutate shared state.
type Registry struct {
	mu      sync.Mutex
	records map[string]*core.RequestRecord

	retention  time.Duration // how long terminal records are kept
	liveness   time.Duration // in-flight older than this is treated as failed
	maxRecords int

	logger *slog.Logger
	now    func() time.Time
}

// New creates a Registry. Terminal records are evicted once older than
// retention or when the store exceeds maxRecords; in-flight records older
// than liveness are considered abandoned and may be reclaimed.
func New(retention, liveness time.Duration, maxRecords int, logger *slog.Logger) *Registry {
	if maxRecords <= 0 {
		maxRecords = 10000
	}
	return &Registry{
		records:    make(map[string]*core.RequestRecord),
		retention:  retention,
		liveness:   liveness,
		maxRecords: maxRecords,
		logger:     logger,
		now:        time.Now,
	}
}

// Begin atomically claims the request key for dispatch, transitioning it from
// absent/pending to in-flight. If the key is already claimed, it returns a
// snapshot of the existing record and core.ErrDuplicateRequest; the caller
// decides whether to absorb the duplicate or resolve it to the cached result.
// A stale in-flight record whose age exceeds the liveness threshold is
// treated as failed and reclaimed.
func (r *Registry) Begin(key string, source core.TriggerSource, target core.SlackTarget) (*core.RequestRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if rec, ok := r.records[key]; ok {
		stale := rec.State == core.StateInFlight && r.liveness > 0 && now.Sub(rec.UpdatedAt) > r.liveness
		if !stale {
			snap := *rec
			return &snap, core.ErrDuplicateRequest
		}
		r.logger.Warn("reclaiming stale in-flight request",
			"request_key", key,
			"age", now.Sub(rec.UpdatedAt),
		)
		// Reclaim: the previous attempt is presumed dead. Keep the original
		// thread linkage so follow-up output lands in the same thread.
		if target.ThreadTS == "" {
			target.ThreadTS = rec.Target.ThreadTS
		}
	}

	if len(r.records) >= r.maxRecords {
		r.evictLocked()
	}

	rec := &core.RequestRecord{
		RequestKey: key,
		Source:     source,
		State:      core.StateInFlight,
		Target:     target,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	r.records[key] = rec
	snap := *rec
	return &snap, nil
}

// Complete transitions the record to done and attaches the result.
func (r *Registry) Complete(key string, result *core.ReviewResult) {
	r.transition(key, core.StateDone, result)
}

// Fail transitions the record to failed.
func (r *Registry) Fail(key string) {
	r.transition(key, core.StateFailed, nil)
}

func (r *Registry) transition(key string, state core.RequestState, result *core.ReviewResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[key]
	if !ok {
		r.logger.Warn("state transition for unknown request key", "request_key", key, "state", state)
		return
	}
	if rec.Terminal() {
		r.logger.Warn("ignoring transition on terminal record",
			"request_key", key, "from", rec.State, "to", state)
		return
	}
	rec.State = state
	rec.Result = result
	rec.UpdatedAt = r.now()
}

// SetThread records the Slack thread a review was posted to, so follow-up
// triggers for the same key reply into that thread.
func (r *Registry) SetThread(key, threadTS string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.records[key]; ok {
		rec.Target.ThreadTS = threadTS
		rec.UpdatedAt = r.now()
	}
}

// Get returns a snapshot of the record for key, if present.
func (r *Registry) Get(key string) (*core.RequestRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[key]
	if !ok {
		return nil, false
	}
	snap := *rec
	return &snap, true
}

// Len returns the number of records currently held.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// Sweep drops terminal records older than the retention window. The app runs
// it periodically so memory stays bounded across process lifetime.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for key, rec := range r.records {
		if rec.Terminal() && r.retention > 0 && now.Sub(rec.UpdatedAt) > r.retention {
			delete(r.records, key)
			removed++
		}
	}
	if removed > 0 {
		r.logger.Debug("swept expired registry records", "removed", removed, "remaining", len(r.records))
	}
	return removed
}

// evictLocked makes room by dropping the oldest terminal records first.
// Callers must hold the mutex.
func (r *Registry) evictLocked() {
	type aged struct {
		key string
		at  time.Time
	}
	var terminal []aged
	for key, rec := range r.records {
		if rec.Terminal() {
			terminal = append(terminal, aged{key, rec.UpdatedAt})
		}
	}
	sort.Slice(terminal, func(i, j int) bool { return terminal[i].at.Before(terminal[j].at) })

	// Free a tenth of the capacity so eviction does not run on every insert.
	toFree := r.maxRecords / 10
	if toFree < 1 {
		toFree = 1
	}
	for i := 0; i < len(terminal) && i < toFree; i++ {
		delete(r.records, terminal[i].key)
	}
	r.logger.Info("evicted registry records at capacity",
		"evicted", min(toFree, len(terminal)),
		"remaining", len(r.records),
	)
}
