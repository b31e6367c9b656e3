package domain

import (
	"sort"
	"strings"
	"time"
)

// EmailStatus values recorded by the verification runner.
const (
	EmailStatusVerified   = "verified"
	EmailStatusInvalid    = "invalid"
	EmailStatusUnverified = "unverified"
	EmailStatusUnknown    = "unknown"
)

// Contact represents a single outreach contact. Contacts marked as duplicates
// stay in the table with is_duplicate=true and duplicate_of pointing at the
// surviving record; active contacts have is_duplicate=false.
type Contact struct {
	ID                int64      `json:"id" db:"id"`
	Email             string     `json:"email" db:"email"`
	FirstName         string     `json:"first_name" db:"first_name"`
	LastName          string     `json:"last_name" db:"last_name"`
	Title             string     `json:"title" db:"title"`
	Company           string     `json:"company" db:"company"`
	FirstPhone        string     `json:"first_phone" db:"first_phone"`
	CorporatePhone    string     `json:"corporate_phone" db:"corporate_phone"`
	PersonLinkedinURL string     `json:"person_linkedin_url" db:"person_linkedin_url"`
	Website           string     `json:"website" db:"website"`
	OutreachLists     []string   `json:"outreach_lists" db:"outreach_lists"`
	CampaignsAssigned []string   `json:"campaigns_assigned" db:"campaigns_assigned"`
	EmailStatus       string     `json:"email_status" db:"email_status"`
	TimesContacted    int        `json:"times_contacted" db:"times_contacted"`
	MeetingsBooked    int        `json:"meetings_booked" db:"meetings_booked"`
	Opportunities     int        `json:"opportunities" db:"opportunities"`
	IsDuplicate       bool       `json:"is_duplicate" db:"is_duplicate"`
	DuplicateOf       *int64     `json:"duplicate_of" db:"duplicate_of"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
	VerifiedAt        *time.Time `json:"verified_at" db:"verified_at"`
}

// NormalizedEmail returns the grouping key for this contact: the email
// trimmed and lowercased. An empty result means the contact has no usable
// email and is excluded from duplicate detection.
func (c Contact) NormalizedEmail() string {
	return NormalizeEmail(c.Email)
}

// NormalizeEmail canonicalizes an email address for duplicate grouping.
// Only case and surrounding whitespace are normalized; plus-addressing and
// dots are preserved (a+b@x.com and ab@x.com are different contacts).
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// DuplicateGroup is a set of active contacts sharing one normalized email.
// Members are ordered oldest-first (created_at asc, id asc), so Members[0]
// is the merge survivor.
type DuplicateGroup struct {
	Email   string    `json:"email"`
	Count   int       `json:"count"`
	Members []Contact `json:"members"`
}

// Survivor returns the contact that a merge of this group keeps active.
func (g DuplicateGroup) Survivor() *Contact {
	if len(g.Members) == 0 {
		return nil
	}
	return &g.Members[0]
}

// ParseList splits a comma-separated membership string into its elements.
// Empty elements are dropped; surrounding whitespace is trimmed.
func ParseList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// JoinList serializes a membership slice back to its comma-separated form.
// Elements are sorted so serialization is deterministic regardless of the
// order merges happened in.
func JoinList(items []string) string {
	if len(items) == 0 {
		return ""
	}
	sorted := make([]string, len(items))
	copy(sorted, items)
	sort.Strings(sorted)
	return strings.Join(sorted, ", ")
}

// UnionLists returns the set union of two membership slices, sorted.
// Comparison is exact (case-sensitive), matching how list names are stored.
func UnionLists(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, s := range a {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range b {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
