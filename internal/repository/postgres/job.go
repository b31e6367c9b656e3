package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/deduply/internal/domain"
	"github.com/ignite/deduply/internal/service/jobs"
)

// JobRepo implements jobs.Repository over one job table. The import and
// verification pipelines each get their own instance ("import_jobs" and
// "verification_jobs") so their histories stay separate.
type JobRepo struct {
	db    *sql.DB
	table string
}

// NewJobRepo creates a job repository bound to the given table.
func NewJobRepo(db *sql.DB, table string) *JobRepo {
	return &JobRepo{db: db, table: table}
}

const jobColumns = `
	id, status, COALESCE(current_item,''), COALESCE(error_message,''),
	cancel_requested, total_count, processed_count, failed_count,
	imported_count, merged_count, valid_count, invalid_count, unknown_count,
	skipped_count, created_at, started_at, completed_at, updated_at`

// terminalGuard keeps completed, failed and cancelled rows frozen. Every
// mutating statement carries it.
const terminalGuard = `status NOT IN ('completed', 'failed', 'cancelled')`

func scanJob(row interface{ Scan(...interface{}) error }) (*domain.Job, error) {
	j := &domain.Job{}
	err := row.Scan(
		&j.ID, &j.Status, &j.CurrentItem, &j.ErrorMessage,
		&j.CancelRequested, &j.Total, &j.Processed, &j.Failed,
		&j.Imported, &j.Merged, &j.Valid, &j.Invalid, &j.Unknown,
		&j.Skipped, &j.CreatedAt, &j.StartedAt, &j.CompletedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return j, nil
}

func (r *JobRepo) Create(ctx context.Context, j *domain.Job) error {
	_, err := r.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, status, total_count, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
	`, r.table), j.ID, j.Status, j.Total)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *JobRepo) Get(ctx context.Context, id string) (*domain.Job, error) {
	j, err := scanJob(r.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT %s FROM %s WHERE id = $1`, jobColumns, r.table), id))
	if err == sql.ErrNoRows {
		return nil, jobs.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

// Claim is the atomic pending-to-running transition. The conditional UPDATE
// guarantees exactly one claimer wins even with concurrent runners.
func (r *JobRepo) Claim(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s
		SET status = 'running', started_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, r.table), id)
	if err != nil {
		return fmt.Errorf("claim job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return jobs.ErrAlreadyClaimed
	}
	return nil
}

func (r *JobRepo) UpdateProgress(ctx context.Context, id string, c domain.JobCounters, currentItem string) error {
	_, err := r.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s
		SET total_count = $1, processed_count = $2, failed_count = $3,
		    imported_count = $4, merged_count = $5, valid_count = $6,
		    invalid_count = $7, unknown_count = $8, skipped_count = $9,
		    current_item = $10, updated_at = NOW()
		WHERE id = $11 AND %s
	`, r.table, terminalGuard),
		c.Total, c.Processed, c.Failed, c.Imported, c.Merged,
		c.Valid, c.Invalid, c.Unknown, c.Skipped, currentItem, id)
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	return nil
}

func (r *JobRepo) Finish(ctx context.Context, id string, status domain.JobStatus, errMsg string) error {
	res, err := r.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s
		SET status = $1, error_message = $2, completed_at = NOW(), updated_at = NOW()
		WHERE id = $3 AND %s
	`, r.table, terminalGuard), status, errMsg, id)
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return jobs.ErrTerminal
	}
	return nil
}

func (r *JobRepo) RequestCancel(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s
		SET cancel_requested = TRUE, updated_at = NOW()
		WHERE id = $1 AND %s
	`, r.table, terminalGuard), id)
	if err != nil {
		return fmt.Errorf("request cancel: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return jobs.ErrTerminal
	}
	return nil
}

func (r *JobRepo) CancelRequested(ctx context.Context, id string) (bool, error) {
	var cancelled bool
	err := r.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT cancel_requested FROM %s WHERE id = $1`, r.table), id).Scan(&cancelled)
	if err == sql.ErrNoRows {
		return false, jobs.ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("cancel requested: %w", err)
	}
	return cancelled, nil
}

func (r *JobRepo) ListActive(ctx context.Context) ([]domain.Job, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE status IN ('pending', 'running')
		ORDER BY created_at DESC
	`, jobColumns, r.table))
	if err != nil {
		return nil, fmt.Errorf("list active jobs: %w", err)
	}
	defer rows.Close()

	var out []domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

// FailStale fails running jobs whose updated_at fell behind, which happens
// when a process died mid-run and could never finish its row.
func (r *JobRepo) FailStale(ctx context.Context, staleAfter time.Duration, message string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		UPDATE %s
		SET status = 'failed', error_message = $1, completed_at = NOW(), updated_at = NOW()
		WHERE status = 'running' AND updated_at < NOW() - $2::interval
		RETURNING id
	`, r.table), message, fmt.Sprintf("%d seconds", int(staleAfter.Seconds())))
	if err != nil {
		return nil, fmt.Errorf("fail stale jobs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stale job id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
