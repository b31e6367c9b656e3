package domain

import "time"

// JobStatus enumerates the states of a background job.
//
// Transitions: pending → running → completed | failed | cancelled.
// Terminal states never transition again.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether a job in this status is frozen.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}

// JobKind identifies which runner owns a job.
type JobKind string

const (
	JobKindImport JobKind = "import"
	JobKindVerify JobKind = "verification"
)

// JobCounters holds the per-unit progress counters of a job. Counters only
// ever increase while a job is running and are frozen once it reaches a
// terminal state.
type JobCounters struct {
	Total     int `json:"total" db:"total_count"`
	Processed int `json:"processed" db:"processed_count"`
	Failed    int `json:"failed" db:"failed_count"`

	// Import counters.
	Imported int `json:"imported" db:"imported_count"`
	Merged   int `json:"merged" db:"merged_count"`

	// Verification counters.
	Valid   int `json:"valid" db:"valid_count"`
	Invalid int `json:"invalid" db:"invalid_count"`
	Unknown int `json:"unknown" db:"unknown_count"`
	Skipped int `json:"skipped" db:"skipped_count"`
}

// Job is a durable background job row. One table per kind, same columns.
type Job struct {
	ID     string    `json:"id" db:"id"`
	Kind   JobKind   `json:"kind" db:"-"`
	Status JobStatus `json:"status" db:"status"`

	JobCounters

	// CurrentItem is the unit being processed right now, for live progress
	// display. Overwritten on every unit; meaningless once terminal.
	CurrentItem string `json:"current_item" db:"current_item"`

	ErrorMessage    string `json:"error_message,omitempty" db:"error_message"`
	CancelRequested bool   `json:"cancel_requested" db:"cancel_requested"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	StartedAt   *time.Time `json:"started_at" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at" db:"completed_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// Progress returns completion as a 0 to 100 percentage.
func (j Job) Progress() float64 {
	if j.Total <= 0 {
		return 0
	}
	return float64(j.Processed) / float64(j.Total) * 100
}
