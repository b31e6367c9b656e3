package worker

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/ignite/deduply/internal/datanorm"
	"github.com/ignite/deduply/internal/domain"
	"github.com/ignite/deduply/internal/pkg/logger"
	"github.com/ignite/deduply/internal/service/dedup"
	"github.com/ignite/deduply/internal/service/jobs"
)

// ContactStore is the contact persistence the importer needs.
type ContactStore interface {
	FindActiveByEmail(ctx context.Context, email string) (*domain.Contact, error)
	Insert(ctx context.Context, c *domain.Contact) (int64, error)
	MergeFields(ctx context.Context, id int64, u dedup.SurvivorUpdate) error
}

// Importer runs CSV import jobs. Each row either becomes a new contact,
// merges into the existing active contact with the same normalized email,
// or counts as failed when it carries no usable email.
type Importer struct {
	store ContactStore
	jobs  *jobs.Service
	clean bool
}

// NewImporter creates an importer. clean enables name and company cleanup
// on incoming values.
func NewImporter(store ContactStore, jobSvc *jobs.Service, clean bool) *Importer {
	return &Importer{store: store, jobs: jobSvc, clean: clean}
}

// newCSVReader applies the lenient parsing settings used for user uploads.
// Exported contact lists routinely have ragged rows and sloppy quoting.
func newCSVReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	return cr
}

// Run drives one import job to a terminal status. Row-level problems are
// counted and never abort the run; only an unusable file fails the job.
func (im *Importer) Run(ctx context.Context, jobID string, r io.Reader) error {
	records, err := newCSVReader(r).ReadAll()
	tr := jobs.NewTracker(im.jobs, jobID, 0)
	if err := tr.Begin(ctx); err != nil {
		return err
	}
	if err != nil {
		return tr.Failed(ctx, fmt.Errorf("read csv: %w", err))
	}
	if len(records) == 0 {
		return tr.Failed(ctx, errors.New("empty file"))
	}

	mapping := datanorm.MapColumns(records[0])
	rows := records[1:]
	if mapping == nil {
		// No header row: fall back to positional detection.
		mapping = datanorm.MapColumnsHeaderless(records[0])
		rows = records
	}
	if mapping == nil {
		return tr.Failed(ctx, errors.New("no email column detected"))
	}

	if err := tr.SetTotal(ctx, len(rows)); err != nil {
		return err
	}
	for _, row := range rows {
		nc := datanorm.NormalizeRow(row, mapping, im.clean)

		if err := tr.UnitStart(ctx, nc.Email); err != nil {
			if errors.Is(err, jobs.ErrCancelled) {
				logger.Info("import cancelled", "job_id", jobID)
				return tr.Cancelled(ctx)
			}
			return err
		}

		outcome := im.importRow(ctx, nc)
		if err := tr.UnitDone(ctx, outcome); err != nil {
			return err
		}
	}

	logger.Info("import finished",
		"job_id", jobID,
		"imported", tr.Counters().Imported,
		"merged", tr.Counters().Merged,
		"failed", tr.Counters().Failed)
	return tr.Complete(ctx)
}

// importRow processes one normalized row and returns the counter mutation
// describing its outcome.
func (im *Importer) importRow(ctx context.Context, nc *datanorm.NormalizedContact) func(*domain.JobCounters) {
	if nc.Email == "" || !datanorm.LooksLikeEmail(nc.Email) {
		return func(c *domain.JobCounters) { c.Failed++ }
	}

	existing, err := im.store.FindActiveByEmail(ctx, nc.Email)
	switch {
	case err == nil:
		if err := im.store.MergeFields(ctx, existing.ID, mergeUpdate(existing, nc)); err != nil {
			logger.Warn("row merge failed", "email", logger.RedactEmail(nc.Email), "error", err.Error())
			return func(c *domain.JobCounters) { c.Failed++ }
		}
		return func(c *domain.JobCounters) { c.Merged++ }

	case errors.Is(err, dedup.ErrNotFound):
		contact := &domain.Contact{
			Email:             nc.Email,
			FirstName:         nc.FirstName,
			LastName:          nc.LastName,
			Title:             nc.Title,
			Company:           nc.Company,
			FirstPhone:        nc.FirstPhone,
			CorporatePhone:    nc.CorporatePhone,
			PersonLinkedinURL: nc.PersonLinkedinURL,
			Website:           nc.Website,
			OutreachLists:     nc.OutreachLists,
			CampaignsAssigned: nc.CampaignsAssigned,
			EmailStatus:       nc.EmailStatus,
		}
		if contact.EmailStatus == "" {
			contact.EmailStatus = domain.EmailStatusUnverified
		}
		if _, err := im.store.Insert(ctx, contact); err != nil {
			logger.Warn("row insert failed", "email", logger.RedactEmail(nc.Email), "error", err.Error())
			return func(c *domain.JobCounters) { c.Failed++ }
		}
		return func(c *domain.JobCounters) { c.Imported++ }

	default:
		logger.Warn("row lookup failed", "email", logger.RedactEmail(nc.Email), "error", err.Error())
		return func(c *domain.JobCounters) { c.Failed++ }
	}
}

// mergeUpdate folds an incoming row into an existing active contact:
// lists are unioned, empty scalars backfilled, existing values never
// overwritten.
func mergeUpdate(existing *domain.Contact, nc *datanorm.NormalizedContact) dedup.SurvivorUpdate {
	u := dedup.SurvivorUpdate{
		OutreachLists:     domain.UnionLists(existing.OutreachLists, nc.OutreachLists),
		CampaignsAssigned: domain.UnionLists(existing.CampaignsAssigned, nc.CampaignsAssigned),
		TimesContacted:    existing.TimesContacted,
		MeetingsBooked:    existing.MeetingsBooked,
		Opportunities:     existing.Opportunities,
	}

	backfill := func(have string, incoming string, dst **string) {
		if have == "" && incoming != "" {
			v := incoming
			*dst = &v
		}
	}
	backfill(existing.FirstName, nc.FirstName, &u.FirstName)
	backfill(existing.LastName, nc.LastName, &u.LastName)
	backfill(existing.Title, nc.Title, &u.Title)
	backfill(existing.Company, nc.Company, &u.Company)
	backfill(existing.FirstPhone, nc.FirstPhone, &u.FirstPhone)
	backfill(existing.CorporatePhone, nc.CorporatePhone, &u.CorporatePhone)
	backfill(existing.PersonLinkedinURL, nc.PersonLinkedinURL, &u.PersonLinkedinURL)
	backfill(existing.Website, nc.Website, &u.Website)
	return u
}

// ImportPreview is the dry-run view of an upload's first rows.
type ImportPreview struct {
	Headers     []string                      `json:"headers"`
	Suggestions map[string]string             `json:"suggestions"`
	Rows        []*datanorm.NormalizedContact `json:"rows"`
	TotalRows   int                           `json:"total_rows"`
}

// PreviewCSV maps the header and normalizes up to limit rows without
// writing anything.
func PreviewCSV(r io.Reader, limit int, clean bool) (*ImportPreview, error) {
	records, err := newCSVReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("empty file")
	}

	mapping := datanorm.MapColumns(records[0])
	if mapping == nil {
		return nil, errors.New("no email column detected")
	}

	p := &ImportPreview{
		Headers:     records[0],
		Suggestions: mapping.Suggestions(),
		TotalRows:   len(records) - 1,
	}
	for _, row := range records[1:] {
		if len(p.Rows) >= limit {
			break
		}
		p.Rows = append(p.Rows, datanorm.NormalizeRow(row, mapping, clean))
	}
	return p, nil
}
