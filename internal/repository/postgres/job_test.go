package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/ignite/deduply/internal/domain"
	"github.com/ignite/deduply/internal/service/jobs"
)

func jobRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "status", "current_item", "error_message", "cancel_requested",
		"total_count", "processed_count", "failed_count", "imported_count",
		"merged_count", "valid_count", "invalid_count", "unknown_count",
		"skipped_count", "created_at", "started_at", "completed_at", "updated_at",
	})
}

func TestJobRepo_Claim(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock: %v", err)
	}
	defer db.Close()

	repo := NewJobRepo(db, "import_jobs")
	now := time.Now()

	t.Run("pending job is claimed", func(t *testing.T) {
		mock.ExpectExec("UPDATE import_jobs").
			WithArgs("job-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		if err := repo.Claim(context.Background(), "job-1"); err != nil {
			t.Errorf("Claim() error = %v", err)
		}
	})

	t.Run("second claim loses", func(t *testing.T) {
		mock.ExpectExec("UPDATE import_jobs").
			WithArgs("job-1").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT").
			WithArgs("job-1").
			WillReturnRows(jobRows().AddRow(
				"job-1", domain.JobRunning, "", "", false,
				10, 0, 0, 0, 0, 0, 0, 0, 0, now, now, nil, now))

		if err := repo.Claim(context.Background(), "job-1"); err != jobs.ErrAlreadyClaimed {
			t.Errorf("Claim() error = %v, want ErrAlreadyClaimed", err)
		}
	})

	t.Run("missing job", func(t *testing.T) {
		mock.ExpectExec("UPDATE import_jobs").
			WithArgs("nope").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT").
			WithArgs("nope").
			WillReturnRows(jobRows())

		if err := repo.Claim(context.Background(), "nope"); err != jobs.ErrNotFound {
			t.Errorf("Claim() error = %v, want ErrNotFound", err)
		}
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %s", err)
	}
}

func TestJobRepo_FinishGuardsTerminalRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock: %v", err)
	}
	defer db.Close()

	repo := NewJobRepo(db, "verification_jobs")
	now := time.Now()

	mock.ExpectExec("UPDATE verification_jobs").
		WithArgs(domain.JobCompleted, "", "job-2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Finish(context.Background(), "job-2", domain.JobCompleted, ""); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	// Re-finish hits the terminal guard and affects zero rows.
	mock.ExpectExec("UPDATE verification_jobs").
		WithArgs(domain.JobFailed, "late", "job-2").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT").
		WithArgs("job-2").
		WillReturnRows(jobRows().AddRow(
			"job-2", domain.JobCompleted, "", "", false,
			5, 5, 0, 0, 0, 5, 0, 0, 0, now, now, now, now))

	if err := repo.Finish(context.Background(), "job-2", domain.JobFailed, "late"); err != jobs.ErrTerminal {
		t.Errorf("Finish() error = %v, want ErrTerminal", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %s", err)
	}
}

func TestJobRepo_UpdateProgress(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock: %v", err)
	}
	defer db.Close()

	repo := NewJobRepo(db, "import_jobs")

	c := domain.JobCounters{Total: 10, Processed: 4, Imported: 3, Merged: 1}
	mock.ExpectExec("UPDATE import_jobs").
		WithArgs(10, 4, 0, 3, 1, 0, 0, 0, 0, "d@x.com", "job-3").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdateProgress(context.Background(), "job-3", c, "d@x.com"); err != nil {
		t.Errorf("UpdateProgress() error = %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %s", err)
	}
}

func TestJobRepo_ListActive(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock: %v", err)
	}
	defer db.Close()

	repo := NewJobRepo(db, "import_jobs")
	now := time.Now()

	mock.ExpectQuery("WHERE status IN").
		WillReturnRows(jobRows().
			AddRow("job-b", domain.JobRunning, "c@x.com", "", false,
				100, 40, 1, 38, 1, 0, 0, 0, 0, now, now, nil, now).
			AddRow("job-a", domain.JobPending, "", "", false,
				50, 0, 0, 0, 0, 0, 0, 0, 0, now.Add(-time.Hour), nil, nil, now))

	active, err := repo.ListActive(context.Background())
	if err != nil {
		t.Fatalf("ListActive() error = %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("ListActive() len = %d, want 2", len(active))
	}
	if active[0].ID != "job-b" || active[0].Processed != 40 {
		t.Errorf("first job = %+v", active[0])
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %s", err)
	}
}

func TestJobRepo_FailStale(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock: %v", err)
	}
	defer db.Close()

	repo := NewJobRepo(db, "verification_jobs")

	mock.ExpectQuery("status = 'failed'").
		WithArgs("stalled", "600 seconds").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("job-7").AddRow("job-9"))

	ids, err := repo.FailStale(context.Background(), 10*time.Minute, "stalled")
	if err != nil {
		t.Fatalf("FailStale() error = %v", err)
	}
	if len(ids) != 2 || ids[0] != "job-7" || ids[1] != "job-9" {
		t.Errorf("FailStale() = %v, want [job-7 job-9]", ids)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %s", err)
	}
}
