package dedup

import "errors"

// Sentinel errors for the dedup service layer.
var (
	ErrNotFound     = errors.New("contact not found")
	ErrGroupGone    = errors.New("duplicate group no longer exists")
	ErrMergeLocked  = errors.New("group is being merged by another request")
	ErrNotDuplicate = errors.New("contact is not marked as a duplicate")
)
