// Package dedup implements duplicate contact detection and merging.
//
// The service layer contains all business logic for grouping active contacts
// by normalized email, computing merge plans, and applying them atomically.
// It depends on the repository interface defined in this package and should
// never import from api/.
//
// Repository implementations live in repository/postgres/.
package dedup
