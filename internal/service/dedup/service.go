package dedup

import (
	"context"
	"fmt"

	"github.com/ignite/deduply/internal/domain"
	"github.com/ignite/deduply/internal/pkg/distlock"
	"github.com/ignite/deduply/internal/pkg/logger"
)

// LockFactory builds a distributed lock for a key. Wired to distlock.NewLock
// in production; nil disables cross-process merge serialization (tests,
// single-instance deployments without Redis).
type LockFactory func(key string) distlock.DistLock

// Service implements duplicate detection and merge business logic.
// All public methods are safe for concurrent use if the underlying
// repository is concurrency-safe.
type Service struct {
	repo  Repository
	locks LockFactory
}

// NewService creates a dedup service backed by the given repository.
func NewService(repo Repository, locks LockFactory) *Service {
	return &Service{repo: repo, locks: locks}
}

// Groups returns the current duplicate groups, largest first.
func (s *Service) Groups(ctx context.Context, limit int) ([]domain.DuplicateGroup, error) {
	return s.repo.DuplicateGroups(ctx, limit)
}

// Stats summarizes the duplicate situation across all active contacts.
type Stats struct {
	TotalGroups      int `json:"total_groups"`
	TotalDuplicates  int `json:"total_duplicates"`
	MergedCount      int `json:"merged_count"`
	PotentialSavings int `json:"potential_savings"`
}

// GetStats computes duplicate statistics. PotentialSavings is the number of
// rows a full auto-merge would flag (one survivor kept per group).
func (s *Service) GetStats(ctx context.Context) (Stats, error) {
	groups, dups, err := s.repo.GroupCounts(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("group counts: %w", err)
	}
	merged, err := s.repo.MergedCount(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("merged count: %w", err)
	}
	return Stats{
		TotalGroups:      groups,
		TotalDuplicates:  dups,
		MergedCount:      merged,
		PotentialSavings: dups,
	}, nil
}

// MergeOutcome reports the result of merging one group.
type MergeOutcome struct {
	Message   string  `json:"message"`
	Email     string  `json:"email"`
	PrimaryID int64   `json:"primary_id"`
	MergedIDs []int64 `json:"merged_ids"`
}

// MergeGroup merges every active contact sharing the given email into the
// oldest one. The group is re-fetched fresh under a per-email lock, so a
// stale caller view can never merge contacts that no longer qualify.
// A group that has shrunk below two members is a successful no-op.
func (s *Service) MergeGroup(ctx context.Context, email string) (MergeOutcome, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return MergeOutcome{}, ErrGroupGone
	}

	if s.locks != nil {
		lock := s.locks("merge:" + email)
		acquired, err := lock.Acquire(ctx)
		if err != nil {
			return MergeOutcome{}, fmt.Errorf("acquire merge lock: %w", err)
		}
		if !acquired {
			return MergeOutcome{}, ErrMergeLocked
		}
		defer lock.Release(ctx)
	}

	group, err := s.repo.GroupByEmail(ctx, email)
	if err != nil {
		return MergeOutcome{}, err
	}

	outcome := MergeOutcome{Email: email}
	if len(group.Members) > 0 {
		outcome.PrimaryID = group.Members[0].ID
	}
	if len(group.Members) < 2 {
		outcome.Message = "nothing to merge"
		return outcome, nil
	}

	plan := buildMergePlan(email, group.Members)
	if err := s.repo.ApplyMerge(ctx, plan); err != nil {
		return MergeOutcome{}, fmt.Errorf("apply merge: %w", err)
	}

	outcome.PrimaryID = plan.SurvivorID
	outcome.MergedIDs = plan.DuplicateIDs
	outcome.Message = fmt.Sprintf("merged %d duplicates into contact %d", len(plan.DuplicateIDs), plan.SurvivorID)
	logger.Info("merged duplicate group",
		"email", email,
		"survivor_id", plan.SurvivorID,
		"merged", len(plan.DuplicateIDs))
	return outcome, nil
}

// GroupFailure records a group that could not be merged during auto-merge.
type GroupFailure struct {
	Email string `json:"email"`
	Error string `json:"error"`
}

// AutoMergeResult aggregates an auto-merge run.
type AutoMergeResult struct {
	Message        string         `json:"message"`
	GroupsMerged   int            `json:"groups_merged"`
	ContactsMerged int            `json:"contacts_merged"`
	Failures       []GroupFailure `json:"failures,omitempty"`
}

// MergeAll merges every duplicate group. The group list is snapshotted once;
// each group is merged independently against fresh state, and a failing
// group never aborts the rest.
func (s *Service) MergeAll(ctx context.Context) (AutoMergeResult, error) {
	groups, err := s.repo.DuplicateGroups(ctx, 0)
	if err != nil {
		return AutoMergeResult{}, fmt.Errorf("snapshot groups: %w", err)
	}

	var res AutoMergeResult
	for _, g := range groups {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		outcome, err := s.MergeGroup(ctx, g.Email)
		if err != nil {
			logger.Warn("auto-merge group failed", "email", g.Email, "error", err)
			res.Failures = append(res.Failures, GroupFailure{Email: g.Email, Error: err.Error()})
			continue
		}
		if len(outcome.MergedIDs) > 0 {
			res.GroupsMerged++
			res.ContactsMerged += len(outcome.MergedIDs)
		}
	}
	res.Message = fmt.Sprintf("merged %d groups (%d contacts)", res.GroupsMerged, res.ContactsMerged)
	return res, nil
}

// Unmerge clears the duplicate flag on one contact, restoring it to the
// active set. The inverse of a single flagging, not of a whole merge: list
// unions and backfills on the survivor are not rolled back.
func (s *Service) Unmerge(ctx context.Context, id int64) error {
	return s.repo.Unmerge(ctx, id)
}

// buildMergePlan resolves a group (members oldest-first) into a merge plan.
// Survivor is the first member. Memberships are set-unioned; scalar fields
// keep the survivor's value and are backfilled from the oldest duplicate
// that has one; engagement counters are summed.
func buildMergePlan(email string, members []domain.Contact) MergePlan {
	survivor := members[0]
	plan := MergePlan{Email: email, SurvivorID: survivor.ID}

	lists := survivor.OutreachLists
	camps := survivor.CampaignsAssigned
	times, meetings, opps := survivor.TimesContacted, survivor.MeetingsBooked, survivor.Opportunities

	u := &plan.Update
	scalars := []struct {
		get func(domain.Contact) string
		dst **string
	}{
		{func(c domain.Contact) string { return c.FirstName }, &u.FirstName},
		{func(c domain.Contact) string { return c.LastName }, &u.LastName},
		{func(c domain.Contact) string { return c.Title }, &u.Title},
		{func(c domain.Contact) string { return c.Company }, &u.Company},
		{func(c domain.Contact) string { return c.FirstPhone }, &u.FirstPhone},
		{func(c domain.Contact) string { return c.CorporatePhone }, &u.CorporatePhone},
		{func(c domain.Contact) string { return c.PersonLinkedinURL }, &u.PersonLinkedinURL},
		{func(c domain.Contact) string { return c.Website }, &u.Website},
	}

	for _, dup := range members[1:] {
		plan.DuplicateIDs = append(plan.DuplicateIDs, dup.ID)
		lists = domain.UnionLists(lists, dup.OutreachLists)
		camps = domain.UnionLists(camps, dup.CampaignsAssigned)
		times += dup.TimesContacted
		meetings += dup.MeetingsBooked
		opps += dup.Opportunities

		for _, sc := range scalars {
			if sc.get(survivor) == "" && *sc.dst == nil {
				if v := sc.get(dup); v != "" {
					val := v
					*sc.dst = &val
				}
			}
		}
	}

	u.OutreachLists = lists
	u.CampaignsAssigned = camps
	u.TimesContacted = times
	u.MeetingsBooked = meetings
	u.Opportunities = opps
	return plan
}
