package jobs

import "errors"

// Sentinel errors for the jobs service layer.
var (
	ErrNotFound       = errors.New("job not found")
	ErrAlreadyClaimed = errors.New("job already claimed or not pending")
	ErrTerminal       = errors.New("job is in a terminal state")
	ErrCancelled      = errors.New("job cancellation requested")
)
