// Package jobs implements the durable background-job state machine shared by
// the CSV import and bulk verification runners.
//
// A job is a database row first: status, counters, current item, and
// timestamps are persisted after every processed unit so progress survives a
// crash and is visible to pollers. Redis only mirrors the latest progress
// snapshot for cheap polling; the database remains the source of truth.
//
// Transitions: pending -> running -> completed | failed | cancelled.
// Claiming is a conditional update, so two runners can never both own a job.
// Cancellation is cooperative: the API sets cancel_requested and the runner
// honors it at the next unit boundary.
package jobs
