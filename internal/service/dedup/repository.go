package dedup

import (
	"context"

	"github.com/ignite/deduply/internal/domain"
)

// Repository defines the data access contract for duplicate detection and
// merging. Implementations must be safe for concurrent use.
type Repository interface {
	// DuplicateGroups returns all groups of active contacts sharing a
	// normalized email, with members loaded oldest-first. Groups are ordered
	// by size descending, then email ascending. limit <= 0 means no limit.
	DuplicateGroups(ctx context.Context, limit int) ([]domain.DuplicateGroup, error)

	// GroupByEmail returns the current group for one normalized email.
	// Members are loaded oldest-first (created_at asc, id asc). A group with
	// fewer than two members is still returned; the caller decides whether
	// that makes a merge a no-op.
	GroupByEmail(ctx context.Context, email string) (*domain.DuplicateGroup, error)

	// GroupCounts returns (total_groups, total_duplicates) across all
	// active contacts, where total_duplicates is sum(count-1) per group.
	GroupCounts(ctx context.Context) (int, int, error)

	// MergedCount returns how many contacts are currently flagged as
	// duplicates of a survivor.
	MergedCount(ctx context.Context) (int, error)

	// ApplyMerge applies a merge plan in a single transaction: updates the
	// survivor and flags the duplicates. Rows already in a merged state are
	// left untouched by the duplicate update's guard.
	ApplyMerge(ctx context.Context, plan MergePlan) error

	// Unmerge clears is_duplicate/duplicate_of on one contact. Returns
	// ErrNotFound if the contact doesn't exist and ErrNotDuplicate if it
	// isn't flagged.
	Unmerge(ctx context.Context, id int64) error
}

// SurvivorUpdate holds the fields written to the surviving contact during a
// merge. List fields replace the stored value (they're already unioned);
// scalar fields are only present when backfilled from a duplicate.
type SurvivorUpdate struct {
	OutreachLists     []string
	CampaignsAssigned []string

	FirstName         *string
	LastName          *string
	Title             *string
	Company           *string
	FirstPhone        *string
	CorporatePhone    *string
	PersonLinkedinURL *string
	Website           *string

	TimesContacted int
	MeetingsBooked int
	Opportunities  int
}

// MergePlan is the resolved outcome of merging one duplicate group,
// computed by the service from a freshly loaded group and applied by the
// repository atomically.
type MergePlan struct {
	Email        string
	SurvivorID   int64
	Update       SurvivorUpdate
	DuplicateIDs []int64
}
