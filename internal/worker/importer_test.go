package worker

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ignite/deduply/internal/domain"
	"github.com/ignite/deduply/internal/service/dedup"
	"github.com/ignite/deduply/internal/service/jobs"
)

// fakeJobRepo is a minimal in-memory jobs.Repository for runner tests.
type fakeJobRepo struct {
	mu   sync.Mutex
	rows map[string]*domain.Job
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{rows: make(map[string]*domain.Job)}
}

func (f *fakeJobRepo) Create(_ context.Context, j *domain.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *j
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	f.rows[cp.ID] = &cp
	return nil
}

func (f *fakeJobRepo) Get(_ context.Context, id string) (*domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.rows[id]
	if !ok {
		return nil, jobs.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (f *fakeJobRepo) Claim(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.rows[id]
	if !ok {
		return jobs.ErrNotFound
	}
	if j.Status != domain.JobPending {
		return jobs.ErrAlreadyClaimed
	}
	now := time.Now()
	j.Status = domain.JobRunning
	j.StartedAt = &now
	return nil
}

func (f *fakeJobRepo) UpdateProgress(_ context.Context, id string, c domain.JobCounters, currentItem string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if j, ok := f.rows[id]; ok && !j.Status.IsTerminal() {
		j.JobCounters = c
		j.CurrentItem = currentItem
		j.UpdatedAt = time.Now()
	}
	return nil
}

func (f *fakeJobRepo) Finish(_ context.Context, id string, status domain.JobStatus, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.rows[id]
	if !ok {
		return jobs.ErrNotFound
	}
	if j.Status.IsTerminal() {
		return jobs.ErrTerminal
	}
	now := time.Now()
	j.Status = status
	j.ErrorMessage = errMsg
	j.CompletedAt = &now
	return nil
}

func (f *fakeJobRepo) RequestCancel(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.rows[id]
	if !ok {
		return jobs.ErrNotFound
	}
	if j.Status.IsTerminal() {
		return jobs.ErrTerminal
	}
	j.CancelRequested = true
	return nil
}

func (f *fakeJobRepo) CancelRequested(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.rows[id]
	if !ok {
		return false, jobs.ErrNotFound
	}
	return j.CancelRequested, nil
}

func (f *fakeJobRepo) ListActive(_ context.Context) ([]domain.Job, error) { return nil, nil }

func (f *fakeJobRepo) FailStale(_ context.Context, staleAfter time.Duration, message string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cutoff := time.Now().Add(-staleAfter)
	var ids []string
	for _, j := range f.rows {
		if j.Status == domain.JobRunning && j.UpdatedAt.Before(cutoff) {
			j.Status = domain.JobFailed
			j.ErrorMessage = message
			ids = append(ids, j.ID)
		}
	}
	return ids, nil
}

// fakeContactStore keeps contacts keyed by normalized email.
type fakeContactStore struct {
	mu     sync.Mutex
	nextID int64
	byMail map[string]*domain.Contact
}

func newFakeContactStore() *fakeContactStore {
	return &fakeContactStore{nextID: 1, byMail: make(map[string]*domain.Contact)}
}

func (s *fakeContactStore) FindActiveByEmail(_ context.Context, email string) (*domain.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byMail[email]
	if !ok {
		return nil, dedup.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *fakeContactStore) Insert(_ context.Context, c *domain.Contact) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	cp.ID = s.nextID
	s.nextID++
	s.byMail[domain.NormalizeEmail(cp.Email)] = &cp
	return cp.ID, nil
}

func (s *fakeContactStore) MergeFields(_ context.Context, id int64, u dedup.SurvivorUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.byMail {
		if c.ID != id {
			continue
		}
		c.OutreachLists = u.OutreachLists
		c.CampaignsAssigned = u.CampaignsAssigned
		if u.FirstName != nil {
			c.FirstName = *u.FirstName
		}
		if u.Company != nil {
			c.Company = *u.Company
		}
		return nil
	}
	return dedup.ErrNotFound
}

func newImportJobService() (*jobs.Service, *fakeJobRepo) {
	repo := newFakeJobRepo()
	return jobs.NewService(repo, domain.JobKindImport, nil), repo
}

const sampleCSV = `Email,First Name,Last Name,Company,Outreach List
jane@acme.com,JANE,SMITH,Acme Widgets Inc.,Q1
Jane@Acme.com ,,,"Acme Widgets, Inc.",Q2
bob@globex.com,Bob,Jones,Globex Corp,Q1
,Missing,Email,,
not-an-email,Bad,Row,,
`

func TestImporterRun(t *testing.T) {
	store := newFakeContactStore()
	svc, _ := newImportJobService()
	im := NewImporter(store, svc, true)

	j, err := svc.Create(context.Background(), 0)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if err := im.Run(context.Background(), j.ID, strings.NewReader(sampleCSV)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got, _ := svc.Get(context.Background(), j.ID)
	if got.Status != domain.JobCompleted {
		t.Fatalf("status = %s, want completed (%s)", got.Status, got.ErrorMessage)
	}
	if got.Total != 5 || got.Processed != 5 {
		t.Errorf("total/processed = %d/%d, want 5/5", got.Total, got.Processed)
	}
	if got.Imported != 2 || got.Merged != 1 || got.Failed != 2 {
		t.Errorf("counters = %+v", got.JobCounters)
	}

	jane, err := store.FindActiveByEmail(context.Background(), "jane@acme.com")
	if err != nil {
		t.Fatalf("jane not stored: %v", err)
	}
	if jane.FirstName != "Jane" {
		t.Errorf("cleaned first name = %q, want Jane", jane.FirstName)
	}
	if jane.Company != "Acme Widgets" {
		t.Errorf("cleaned company = %q, want Acme Widgets", jane.Company)
	}
	if len(jane.OutreachLists) != 2 {
		t.Errorf("merged lists = %v, want Q1 and Q2", jane.OutreachLists)
	}
}

func TestImporterCountsBadEmailRowsAsFailed(t *testing.T) {
	store := newFakeContactStore()
	svc, _ := newImportJobService()
	im := NewImporter(store, svc, false)

	var b strings.Builder
	b.WriteString("Email,First Name\n")
	for i := 0; i < 8; i++ {
		b.WriteString(strings.ToLower(string(rune('a'+i))) + "@example.com,Contact\n")
	}
	b.WriteString(",NoEmail\n")
	b.WriteString("not-an-email,BadEmail\n")

	j, _ := svc.Create(context.Background(), 0)
	if err := im.Run(context.Background(), j.ID, strings.NewReader(b.String())); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got, _ := svc.Get(context.Background(), j.ID)
	if got.Status != domain.JobCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	if got.Processed != 10 {
		t.Errorf("processed = %d, want 10", got.Processed)
	}
	if got.Failed != 2 {
		t.Errorf("failed = %d, want 2", got.Failed)
	}
	if got.Imported != 8 {
		t.Errorf("imported = %d, want 8", got.Imported)
	}
}

func TestImporterNoEmailColumn(t *testing.T) {
	store := newFakeContactStore()
	svc, _ := newImportJobService()
	im := NewImporter(store, svc, false)

	j, _ := svc.Create(context.Background(), 0)
	csv := "Name,Company\nJane,Acme\n"
	if err := im.Run(context.Background(), j.ID, strings.NewReader(csv)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got, _ := svc.Get(context.Background(), j.ID)
	if got.Status != domain.JobFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if got.ErrorMessage == "" {
		t.Error("expected error message on failed job")
	}
}

func TestImporterHeaderlessFile(t *testing.T) {
	store := newFakeContactStore()
	svc, _ := newImportJobService()
	im := NewImporter(store, svc, false)

	j, _ := svc.Create(context.Background(), 0)
	csv := "jane@acme.com,Jane\nbob@globex.com,Bob\n"
	if err := im.Run(context.Background(), j.ID, strings.NewReader(csv)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got, _ := svc.Get(context.Background(), j.ID)
	if got.Status != domain.JobCompleted || got.Imported != 2 {
		t.Fatalf("job = %+v", got)
	}
}

func TestImporterCancelledBeforeFirstRow(t *testing.T) {
	store := newFakeContactStore()
	svc, _ := newImportJobService()
	im := NewImporter(store, svc, false)

	j, _ := svc.Create(context.Background(), 0)
	if err := svc.RequestCancel(context.Background(), j.ID); err != nil {
		t.Fatalf("request cancel: %v", err)
	}

	if err := im.Run(context.Background(), j.ID, strings.NewReader(sampleCSV)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got, _ := svc.Get(context.Background(), j.ID)
	if got.Status != domain.JobCancelled {
		t.Fatalf("status = %s, want cancelled", got.Status)
	}
	if got.Processed != 0 {
		t.Errorf("processed = %d, want 0", got.Processed)
	}
	if _, err := store.FindActiveByEmail(context.Background(), "jane@acme.com"); err != dedup.ErrNotFound {
		t.Error("no rows should be written after cancellation")
	}
}

func TestPreviewCSV(t *testing.T) {
	p, err := PreviewCSV(strings.NewReader(sampleCSV), 2, true)
	if err != nil {
		t.Fatalf("PreviewCSV() error = %v", err)
	}
	if p.TotalRows != 5 {
		t.Errorf("total rows = %d, want 5", p.TotalRows)
	}
	if len(p.Rows) != 2 {
		t.Fatalf("preview rows = %d, want 2", len(p.Rows))
	}
	if p.Rows[0].Email != "jane@acme.com" || p.Rows[0].FirstName != "Jane" {
		t.Errorf("first preview row = %+v", p.Rows[0])
	}
	if p.Suggestions["Email"] == "" {
		t.Errorf("suggestions missing email mapping: %v", p.Suggestions)
	}

	if _, err := PreviewCSV(strings.NewReader("Name\nJane\n"), 5, false); err == nil {
		t.Error("expected error for file without email column")
	}
}
