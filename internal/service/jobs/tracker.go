package jobs

import (
	"context"

	"github.com/ignite/deduply/internal/domain"
)

// Tracker drives one job run from inside a runner. It owns the in-memory
// counters (counters only grow; the DB row is write-only from here) and
// handles the per-unit persist/cancel protocol so runners stay focused on
// their domain work.
//
// Usage:
//
//	t := jobs.NewTracker(svc, job.ID, total)
//	if err := t.Begin(ctx); err != nil { ... }
//	for each unit {
//	    if err := t.UnitStart(ctx, item); err != nil { break } // ErrCancelled
//	    work()
//	    t.UnitDone(ctx, func(c *domain.JobCounters) { c.Imported++ })
//	}
type Tracker struct {
	svc      *Service
	id       string
	counters domain.JobCounters
	current  string
}

// NewTracker creates a tracker for a job that will process total units.
func NewTracker(svc *Service, id string, total int) *Tracker {
	t := &Tracker{svc: svc, id: id}
	t.counters.Total = total
	return t
}

// SetTotal records and persists the unit count once the runner knows it.
// For CSV imports that is only after the file has been parsed.
func (t *Tracker) SetTotal(ctx context.Context, total int) error {
	t.counters.Total = total
	return t.svc.Progress(ctx, t.id, t.counters, t.current)
}

// Begin claims the job and writes the initial total.
func (t *Tracker) Begin(ctx context.Context) error {
	if err := t.svc.Claim(ctx, t.id); err != nil {
		return err
	}
	return t.svc.Progress(ctx, t.id, t.counters, "")
}

// UnitStart checks for cooperative cancellation before a unit is processed
// and records the current item. Returns ErrCancelled when the runner should
// stop; counters stay frozen at their last persisted values.
func (t *Tracker) UnitStart(ctx context.Context, item string) error {
	cancelled, err := t.svc.CancelRequested(ctx, t.id)
	if err != nil {
		return err
	}
	if cancelled {
		return ErrCancelled
	}
	t.current = item
	return nil
}

// UnitDone applies the unit's outcome to the counters, bumps processed, and
// persists. mutate may be nil when only processed advances.
func (t *Tracker) UnitDone(ctx context.Context, mutate func(*domain.JobCounters)) error {
	if mutate != nil {
		mutate(&t.counters)
	}
	t.counters.Processed++
	return t.svc.Progress(ctx, t.id, t.counters, t.current)
}

// Counters returns a copy of the current counters.
func (t *Tracker) Counters() domain.JobCounters { return t.counters }

// Complete finishes the job as completed.
func (t *Tracker) Complete(ctx context.Context) error {
	return t.svc.Finish(ctx, t.id, domain.JobCompleted, "")
}

// Cancelled finishes the job as cancelled, counters frozen where they were.
func (t *Tracker) Cancelled(ctx context.Context) error {
	return t.svc.Finish(ctx, t.id, domain.JobCancelled, "")
}

// Failed finishes the job as failed with the fatal error message.
func (t *Tracker) Failed(ctx context.Context, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return t.svc.Finish(ctx, t.id, domain.JobFailed, msg)
}
