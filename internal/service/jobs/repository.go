package jobs

import (
	"context"
	"time"

	"github.com/ignite/deduply/internal/domain"
)

// Repository defines the data access contract for one job table.
// Implementations must be safe for concurrent use. The import and
// verification runners each get their own Repository instance bound to
// their own table; the columns are identical.
type Repository interface {
	// Create inserts a new job row in pending status.
	Create(ctx context.Context, j *domain.Job) error

	// Get returns a single job. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.Job, error)

	// Claim atomically transitions the job from pending to running and
	// stamps started_at. Returns ErrAlreadyClaimed if the job is not
	// pending (already claimed, or terminal).
	Claim(ctx context.Context, id string) error

	// UpdateProgress persists the counters and current item of a running
	// job. Counters are written as-is; callers only ever grow them.
	// Terminal rows are never touched (guarded in the implementation).
	UpdateProgress(ctx context.Context, id string, c domain.JobCounters, currentItem string) error

	// Finish transitions a running job to a terminal status and stamps
	// completed_at. errMsg is stored for failed jobs. A job already in a
	// terminal state is left untouched and ErrTerminal is returned.
	Finish(ctx context.Context, id string, status domain.JobStatus, errMsg string) error

	// RequestCancel sets the cancel_requested flag on a non-terminal job.
	// Returns ErrTerminal if the job has already finished.
	RequestCancel(ctx context.Context, id string) error

	// CancelRequested reports whether cancellation has been requested.
	CancelRequested(ctx context.Context, id string) (bool, error)

	// ListActive returns pending and running jobs, newest first.
	ListActive(ctx context.Context) ([]domain.Job, error)

	// FailStale marks running jobs whose last progress update is older than
	// staleAfter as failed with the given message. Returns the ids of the
	// jobs it failed so callers can invalidate cached progress views.
	FailStale(ctx context.Context, staleAfter time.Duration, message string) ([]string, error)
}
