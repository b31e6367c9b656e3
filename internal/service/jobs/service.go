package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/deduply/internal/domain"
	"github.com/ignite/deduply/internal/pkg/logger"
)

// Service implements the job state machine over one job table.
// All public methods are safe for concurrent use if the underlying
// repository is concurrency-safe.
type Service struct {
	repo   Repository
	kind   domain.JobKind
	mirror *progressMirror
}

// NewService creates a job service for one kind. rdb may be nil; progress
// is then mirrored in memory only.
func NewService(repo Repository, kind domain.JobKind, rdb *redis.Client) *Service {
	return &Service{
		repo:   repo,
		kind:   kind,
		mirror: newProgressMirror(rdb, kind),
	}
}

// Kind returns the job kind this service manages.
func (s *Service) Kind() domain.JobKind { return s.kind }

// Create persists a new pending job and returns it.
func (s *Service) Create(ctx context.Context, total int) (*domain.Job, error) {
	j := &domain.Job{
		ID:     uuid.New().String(),
		Kind:   s.kind,
		Status: domain.JobPending,
	}
	j.Total = total
	if err := s.repo.Create(ctx, j); err != nil {
		return nil, fmt.Errorf("create %s job: %w", s.kind, err)
	}
	s.mirror.set(ctx, &ProgressSnapshot{JobID: j.ID, Status: j.Status, Counters: j.JobCounters})
	return j, nil
}

// Get returns the durable job row.
func (s *Service) Get(ctx context.Context, id string) (*domain.Job, error) {
	j, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	j.Kind = s.kind
	return j, nil
}

// Snapshot returns the cheap live progress view when one exists, falling
// back to the durable row.
func (s *Service) Snapshot(ctx context.Context, id string) (*ProgressSnapshot, error) {
	if snap := s.mirror.get(ctx, id); snap != nil {
		return snap, nil
	}
	j, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ProgressSnapshot{
		JobID:       j.ID,
		Kind:        s.kind,
		Status:      j.Status,
		Counters:    j.JobCounters,
		CurrentItem: j.CurrentItem,
		UpdatedAt:   j.UpdatedAt,
	}, nil
}

// Claim transitions a pending job to running. Exactly one caller wins.
func (s *Service) Claim(ctx context.Context, id string) error {
	if err := s.repo.Claim(ctx, id); err != nil {
		return err
	}
	logger.Info("job claimed", "kind", string(s.kind), "job_id", id)
	return nil
}

// Progress persists the counters after one unit of work and mirrors the
// snapshot for pollers.
func (s *Service) Progress(ctx context.Context, id string, c domain.JobCounters, currentItem string) error {
	if err := s.repo.UpdateProgress(ctx, id, c, currentItem); err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	s.mirror.set(ctx, &ProgressSnapshot{
		JobID:       id,
		Status:      domain.JobRunning,
		Counters:    c,
		CurrentItem: currentItem,
	})
	return nil
}

// Finish moves the job to a terminal status and freezes it.
func (s *Service) Finish(ctx context.Context, id string, status domain.JobStatus, errMsg string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("finish with non-terminal status %q", status)
	}
	if err := s.repo.Finish(ctx, id, status, errMsg); err != nil {
		return err
	}
	// Terminal rows answer polls from the database; drop the live mirror.
	s.mirror.drop(ctx, id)
	logger.Info("job finished", "kind", string(s.kind), "job_id", id, "status", string(status))
	return nil
}

// RequestCancel flags a non-terminal job for cooperative cancellation.
// The runner notices at its next unit boundary.
func (s *Service) RequestCancel(ctx context.Context, id string) error {
	if err := s.repo.RequestCancel(ctx, id); err != nil {
		return err
	}
	logger.Info("job cancel requested", "kind", string(s.kind), "job_id", id)
	return nil
}

// CancelRequested reports whether cancellation has been requested.
func (s *Service) CancelRequested(ctx context.Context, id string) (bool, error) {
	return s.repo.CancelRequested(ctx, id)
}

// ListActive returns pending and running jobs, newest first.
func (s *Service) ListActive(ctx context.Context) ([]domain.Job, error) {
	active, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	for i := range active {
		active[i].Kind = s.kind
	}
	return active, nil
}

// FailStale fails running jobs that stopped reporting progress. Used by the
// watchdog worker.
func (s *Service) FailStale(ctx context.Context, staleAfter time.Duration) (int, error) {
	msg := fmt.Sprintf("stalled: no progress for %s", staleAfter)
	ids, err := s.repo.FailStale(ctx, staleAfter, msg)
	if err != nil {
		return 0, err
	}
	// The runner that fed the mirror is gone; without this drop, pollers
	// would keep seeing a running snapshot for a failed job.
	for _, id := range ids {
		s.mirror.drop(ctx, id)
	}
	if len(ids) > 0 {
		logger.Warn("stale jobs failed by watchdog", "kind", string(s.kind), "count", len(ids))
	}
	return len(ids), nil
}
