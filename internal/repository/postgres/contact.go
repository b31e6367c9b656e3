package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/ignite/deduply/internal/domain"
	"github.com/ignite/deduply/internal/service/dedup"
)

// ContactRepo implements dedup.Repository and the contact stores used by
// the import and verification workers against PostgreSQL.
type ContactRepo struct{ db *sql.DB }

// NewContactRepo creates a Postgres-backed contact repository.
func NewContactRepo(db *sql.DB) *ContactRepo { return &ContactRepo{db: db} }

const contactColumns = `
	id, COALESCE(email,''), COALESCE(first_name,''), COALESCE(last_name,''),
	COALESCE(title,''), COALESCE(company,''), COALESCE(first_phone,''),
	COALESCE(corporate_phone,''), COALESCE(person_linkedin_url,''),
	COALESCE(website,''), COALESCE(outreach_lists,''), COALESCE(campaigns_assigned,''),
	COALESCE(email_status,'unverified'), times_contacted, meetings_booked,
	opportunities, is_duplicate, duplicate_of, created_at, updated_at, verified_at`

func scanContact(row interface{ Scan(...interface{}) error }) (*domain.Contact, error) {
	c := &domain.Contact{}
	var lists, camps string
	err := row.Scan(
		&c.ID, &c.Email, &c.FirstName, &c.LastName,
		&c.Title, &c.Company, &c.FirstPhone,
		&c.CorporatePhone, &c.PersonLinkedinURL,
		&c.Website, &lists, &camps,
		&c.EmailStatus, &c.TimesContacted, &c.MeetingsBooked,
		&c.Opportunities, &c.IsDuplicate, &c.DuplicateOf, &c.CreatedAt, &c.UpdatedAt, &c.VerifiedAt,
	)
	if err != nil {
		return nil, err
	}
	c.OutreachLists = domain.ParseList(lists)
	c.CampaignsAssigned = domain.ParseList(camps)
	return c, nil
}

// activeGroupFilter selects contacts that participate in duplicate grouping.
const activeGroupFilter = `email IS NOT NULL AND TRIM(email) <> '' AND is_duplicate = FALSE`

func (r *ContactRepo) DuplicateGroups(ctx context.Context, limit int) ([]domain.DuplicateGroup, error) {
	q := `
		SELECT LOWER(TRIM(email)) AS norm, COUNT(*) AS cnt
		FROM contacts
		WHERE ` + activeGroupFilter + `
		GROUP BY LOWER(TRIM(email))
		HAVING COUNT(*) > 1
		ORDER BY cnt DESC, norm ASC`
	args := []interface{}{}
	if limit > 0 {
		q += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list duplicate groups: %w", err)
	}
	defer rows.Close()

	type head struct {
		email string
		count int
	}
	var heads []head
	for rows.Next() {
		var h head
		if err := rows.Scan(&h.email, &h.count); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		heads = append(heads, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate groups: %w", err)
	}

	out := make([]domain.DuplicateGroup, 0, len(heads))
	for _, h := range heads {
		members, err := r.groupMembers(ctx, h.email)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.DuplicateGroup{Email: h.email, Count: len(members), Members: members})
	}
	return out, nil
}

func (r *ContactRepo) GroupByEmail(ctx context.Context, email string) (*domain.DuplicateGroup, error) {
	members, err := r.groupMembers(ctx, email)
	if err != nil {
		return nil, err
	}
	return &domain.DuplicateGroup{Email: email, Count: len(members), Members: members}, nil
}

func (r *ContactRepo) groupMembers(ctx context.Context, email string) ([]domain.Contact, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+contactColumns+`
		FROM contacts
		WHERE LOWER(TRIM(email)) = $1 AND is_duplicate = FALSE
		ORDER BY created_at ASC, id ASC
	`, email)
	if err != nil {
		return nil, fmt.Errorf("load group members: %w", err)
	}
	defer rows.Close()

	var out []domain.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *ContactRepo) GroupCounts(ctx context.Context) (int, int, error) {
	var groups, dups int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(cnt - 1), 0) FROM (
			SELECT COUNT(*) AS cnt
			FROM contacts
			WHERE `+activeGroupFilter+`
			GROUP BY LOWER(TRIM(email))
			HAVING COUNT(*) > 1
		) g
	`).Scan(&groups, &dups)
	if err != nil {
		return 0, 0, fmt.Errorf("group counts: %w", err)
	}
	return groups, dups, nil
}

func (r *ContactRepo) MergedCount(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM contacts WHERE is_duplicate = TRUE`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("merged count: %w", err)
	}
	return n, nil
}

// ApplyMerge runs the whole group resolution in one transaction so a crash
// can never leave duplicates flagged without the survivor updated.
func (r *ContactRepo) ApplyMerge(ctx context.Context, plan dedup.MergePlan) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin merge tx: %w", err)
	}
	defer tx.Rollback()

	if err := mergeFields(ctx, tx, plan.SurvivorID, plan.Update); err != nil {
		return err
	}

	// The is_duplicate guard keeps already-merged rows frozen and prevents
	// chains: a contact can only ever point at a still-active survivor.
	res, err := tx.ExecContext(ctx, `
		UPDATE contacts
		SET is_duplicate = TRUE, duplicate_of = $1, updated_at = NOW()
		WHERE id = ANY($2) AND is_duplicate = FALSE
	`, plan.SurvivorID, pq.Array(plan.DuplicateIDs))
	if err != nil {
		return fmt.Errorf("flag duplicates: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return dedup.ErrGroupGone
	}

	return tx.Commit()
}

// execer lets mergeFields run inside or outside a transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// mergeFields writes a SurvivorUpdate to one active contact: list columns
// replaced with the unioned value, scalars backfilled only when provided,
// engagement counters replaced with the summed value.
func mergeFields(ctx context.Context, db execer, id int64, u dedup.SurvivorUpdate) error {
	sets := []string{}
	args := []interface{}{}
	idx := 1
	add := func(col string, val interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, idx))
		args = append(args, val)
		idx++
	}

	add("outreach_lists", domain.JoinList(u.OutreachLists))
	add("campaigns_assigned", domain.JoinList(u.CampaignsAssigned))
	add("times_contacted", u.TimesContacted)
	add("meetings_booked", u.MeetingsBooked)
	add("opportunities", u.Opportunities)

	if u.FirstName != nil {
		add("first_name", *u.FirstName)
	}
	if u.LastName != nil {
		add("last_name", *u.LastName)
	}
	if u.Title != nil {
		add("title", *u.Title)
	}
	if u.Company != nil {
		add("company", *u.Company)
	}
	if u.FirstPhone != nil {
		add("first_phone", *u.FirstPhone)
	}
	if u.CorporatePhone != nil {
		add("corporate_phone", *u.CorporatePhone)
	}
	if u.PersonLinkedinURL != nil {
		add("person_linkedin_url", *u.PersonLinkedinURL)
	}
	if u.Website != nil {
		add("website", *u.Website)
	}

	q := fmt.Sprintf(
		"UPDATE contacts SET %s, updated_at = NOW() WHERE id = $%d AND is_duplicate = FALSE",
		joinComma(sets), idx)
	args = append(args, id)

	res, err := db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update survivor: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return dedup.ErrGroupGone
	}
	return nil
}

func (r *ContactRepo) Unmerge(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE contacts
		SET is_duplicate = FALSE, duplicate_of = NULL, updated_at = NOW()
		WHERE id = $1 AND is_duplicate = TRUE
	`, id)
	if err != nil {
		return fmt.Errorf("unmerge contact: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM contacts WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("unmerge lookup: %w", err)
	}
	if !exists {
		return dedup.ErrNotFound
	}
	return dedup.ErrNotDuplicate
}

// ---------------------------------------------------------------------------
// Import worker store
// ---------------------------------------------------------------------------

// FindActiveByEmail returns the oldest active contact with the given
// normalized email, or dedup.ErrNotFound.
func (r *ContactRepo) FindActiveByEmail(ctx context.Context, email string) (*domain.Contact, error) {
	c, err := scanContact(r.db.QueryRowContext(ctx, `
		SELECT `+contactColumns+`
		FROM contacts
		WHERE LOWER(TRIM(email)) = $1 AND is_duplicate = FALSE
		ORDER BY created_at ASC, id ASC
		LIMIT 1
	`, email))
	if err == sql.ErrNoRows {
		return nil, dedup.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find contact by email: %w", err)
	}
	return c, nil
}

// Insert creates a new active contact and returns its id.
func (r *ContactRepo) Insert(ctx context.Context, c *domain.Contact) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO contacts
			(email, first_name, last_name, title, company, first_phone,
			 corporate_phone, person_linkedin_url, website, outreach_lists,
			 campaigns_assigned, email_status, is_duplicate, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, FALSE, NOW(), NOW())
		RETURNING id
	`, c.Email, c.FirstName, c.LastName, c.Title, c.Company, c.FirstPhone,
		c.CorporatePhone, c.PersonLinkedinURL, c.Website,
		domain.JoinList(c.OutreachLists), domain.JoinList(c.CampaignsAssigned),
		c.EmailStatus).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert contact: %w", err)
	}
	return id, nil
}

// MergeFields merges incoming row data into an existing active contact
// (merge-on-import: no new row, no duplicate flag).
func (r *ContactRepo) MergeFields(ctx context.Context, id int64, u dedup.SurvivorUpdate) error {
	return mergeFields(ctx, r.db, id, u)
}

// ---------------------------------------------------------------------------
// Verification worker store
// ---------------------------------------------------------------------------

// ContactsByIDs returns the requested contacts in the given id order.
// Missing ids are skipped.
func (r *ContactRepo) ContactsByIDs(ctx context.Context, ids []int64) ([]domain.Contact, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+contactColumns+`
		FROM contacts
		WHERE id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("contacts by ids: %w", err)
	}
	defer rows.Close()

	byID := make(map[int64]domain.Contact, len(ids))
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		byID[c.ID] = *c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]domain.Contact, 0, len(ids))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// UnverifiedActiveIDs returns ids of active contacts that have never been
// verified, oldest first.
func (r *ContactRepo) UnverifiedActiveIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM contacts
		WHERE is_duplicate = FALSE
		  AND COALESCE(email_status, 'unverified') = 'unverified'
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("unverified ids: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// SetEmailStatus records a verification outcome and stamps verified_at.
func (r *ContactRepo) SetEmailStatus(ctx context.Context, id int64, status string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE contacts
		SET email_status = $1, verified_at = NOW(), updated_at = NOW()
		WHERE id = $2
	`, status, id)
	if err != nil {
		return fmt.Errorf("set email status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return dedup.ErrNotFound
	}
	return nil
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}
