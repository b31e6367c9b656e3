package worker

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ignite/deduply/internal/domain"
	"github.com/ignite/deduply/internal/service/jobs"
)

// fakeProvider answers from a canned table and errors for unlisted emails.
type fakeProvider struct {
	verdicts map[string]string
	err      error
}

func (p *fakeProvider) Verify(_ context.Context, email string) (VerificationResult, error) {
	if v, ok := p.verdicts[email]; ok {
		return VerificationResult{Status: v}, nil
	}
	if p.err != nil {
		return VerificationResult{}, p.err
	}
	return VerificationResult{Status: "unknown"}, nil
}

type fakeVerifierStore struct {
	mu       sync.Mutex
	contacts []domain.Contact
	statuses map[int64]string
}

func newFakeVerifierStore(contacts ...domain.Contact) *fakeVerifierStore {
	return &fakeVerifierStore{contacts: contacts, statuses: make(map[int64]string)}
}

func (s *fakeVerifierStore) ContactsByIDs(_ context.Context, ids []int64) ([]domain.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Contact
	for _, id := range ids {
		for _, c := range s.contacts {
			if c.ID == id {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func (s *fakeVerifierStore) UnverifiedActiveIDs(_ context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int64
	for _, c := range s.contacts {
		if !c.IsDuplicate && c.EmailStatus == domain.EmailStatusUnverified {
			out = append(out, c.ID)
		}
	}
	return out, nil
}

func (s *fakeVerifierStore) SetEmailStatus(_ context.Context, id int64, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[id] = status
	return nil
}

func newVerifyJobService() *jobs.Service {
	return jobs.NewService(newFakeJobRepo(), domain.JobKindVerify, nil)
}

func TestVerifierRun(t *testing.T) {
	store := newFakeVerifierStore(
		domain.Contact{ID: 1, Email: "good@acme.com", EmailStatus: domain.EmailStatusUnverified},
		domain.Contact{ID: 2, Email: "dead@gone.com", EmailStatus: domain.EmailStatusUnverified},
		domain.Contact{ID: 3, Email: "risky@maybe.com", EmailStatus: domain.EmailStatusUnverified},
		domain.Contact{ID: 4, Email: "merged@acme.com", IsDuplicate: true},
	)
	provider := &fakeProvider{verdicts: map[string]string{
		"good@acme.com":   "valid",
		"dead@gone.com":   "invalid",
		"risky@maybe.com": "catch-all",
	}}

	svc := newVerifyJobService()
	v := NewVerifier(store, svc, provider, true)

	j, _ := svc.Create(context.Background(), 0)
	if err := v.Run(context.Background(), j.ID, []int64{1, 2, 3, 4}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got, _ := svc.Get(context.Background(), j.ID)
	if got.Status != domain.JobCompleted {
		t.Fatalf("status = %s (%s)", got.Status, got.ErrorMessage)
	}
	if got.Valid != 1 || got.Invalid != 1 || got.Unknown != 1 || got.Skipped != 1 {
		t.Errorf("counters = %+v", got.JobCounters)
	}

	if store.statuses[1] != domain.EmailStatusVerified {
		t.Errorf("contact 1 status = %q", store.statuses[1])
	}
	if store.statuses[2] != domain.EmailStatusInvalid {
		t.Errorf("contact 2 status = %q", store.statuses[2])
	}
	if store.statuses[3] != domain.EmailStatusUnknown {
		t.Errorf("contact 3 status = %q", store.statuses[3])
	}
	if _, wrote := store.statuses[4]; wrote {
		t.Error("merged contact must not be touched")
	}
}

func TestVerifierDefaultsToUnverifiedBacklog(t *testing.T) {
	store := newFakeVerifierStore(
		domain.Contact{ID: 1, Email: "a@x.com", EmailStatus: domain.EmailStatusUnverified},
		domain.Contact{ID: 2, Email: "b@x.com", EmailStatus: domain.EmailStatusVerified},
	)
	provider := &fakeProvider{verdicts: map[string]string{"a@x.com": "valid"}}

	svc := newVerifyJobService()
	v := NewVerifier(store, svc, provider, true)

	j, _ := svc.Create(context.Background(), 0)
	if err := v.Run(context.Background(), j.ID, nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got, _ := svc.Get(context.Background(), j.ID)
	if got.Total != 1 || got.Valid != 1 {
		t.Errorf("job = %+v", got.JobCounters)
	}
	if _, wrote := store.statuses[2]; wrote {
		t.Error("already verified contact must not be rechecked")
	}
}

func TestVerifierProviderErrors(t *testing.T) {
	contact := domain.Contact{ID: 1, Email: "flaky@x.com", EmailStatus: domain.EmailStatusUnverified}
	provider := &fakeProvider{err: errors.New("dns timeout")}

	t.Run("recorded as unknown", func(t *testing.T) {
		store := newFakeVerifierStore(contact)
		svc := newVerifyJobService()
		v := NewVerifier(store, svc, provider, true)

		j, _ := svc.Create(context.Background(), 0)
		if err := v.Run(context.Background(), j.ID, []int64{1}); err != nil {
			t.Fatalf("Run() error = %v", err)
		}

		got, _ := svc.Get(context.Background(), j.ID)
		if got.Unknown != 1 || got.Failed != 0 {
			t.Errorf("counters = %+v", got.JobCounters)
		}
		if store.statuses[1] != domain.EmailStatusUnknown {
			t.Errorf("status = %q, want unknown", store.statuses[1])
		}
	})

	t.Run("counted as failed", func(t *testing.T) {
		store := newFakeVerifierStore(contact)
		svc := newVerifyJobService()
		v := NewVerifier(store, svc, provider, false)

		j, _ := svc.Create(context.Background(), 0)
		if err := v.Run(context.Background(), j.ID, []int64{1}); err != nil {
			t.Fatalf("Run() error = %v", err)
		}

		got, _ := svc.Get(context.Background(), j.ID)
		if got.Failed != 1 || got.Unknown != 0 {
			t.Errorf("counters = %+v", got.JobCounters)
		}
		if _, wrote := store.statuses[1]; wrote {
			t.Error("no status should be written on a failed unit")
		}
	})
}

func TestMXProviderRejectsMalformedAddress(t *testing.T) {
	p := NewMXProvider(0)

	for _, email := range []string{"no-at-sign", "trailing@"} {
		result, err := p.Verify(context.Background(), email)
		if err != nil {
			t.Fatalf("Verify(%q) error = %v", email, err)
		}
		if result.Status != "invalid" {
			t.Errorf("Verify(%q) = %q, want invalid", email, result.Status)
		}
	}
}
