package worker

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/ignite/deduply/internal/domain"
	"github.com/ignite/deduply/internal/pkg/logger"
	"github.com/ignite/deduply/internal/service/jobs"
)

// VerificationProvider abstracts an email verification backend.
type VerificationProvider interface {
	Verify(ctx context.Context, email string) (VerificationResult, error)
}

// VerificationResult is a provider's verdict for one address.
type VerificationResult struct {
	Status string // "valid", "invalid", "catch-all", "unknown"
}

// MXProvider verifies deliverability by MX lookup only. Free, fast, and
// good enough to weed out dead domains before spending on an API provider.
type MXProvider struct {
	Timeout time.Duration
}

func NewMXProvider(timeout time.Duration) *MXProvider {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &MXProvider{Timeout: timeout}
}

func (p *MXProvider) Verify(ctx context.Context, email string) (VerificationResult, error) {
	parts := strings.SplitN(email, "@", 2)
	if len(parts) != 2 || parts[1] == "" {
		return VerificationResult{Status: "invalid"}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	resolver := &net.Resolver{}
	records, err := resolver.LookupMX(ctx, parts[1])
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			return VerificationResult{Status: "invalid"}, nil
		}
		return VerificationResult{}, err
	}
	if len(records) == 0 {
		return VerificationResult{Status: "invalid"}, nil
	}
	return VerificationResult{Status: "valid"}, nil
}

// VerifierStore is the contact persistence the verifier needs.
type VerifierStore interface {
	ContactsByIDs(ctx context.Context, ids []int64) ([]domain.Contact, error)
	UnverifiedActiveIDs(ctx context.Context) ([]int64, error)
	SetEmailStatus(ctx context.Context, id int64, status string) error
}

// Verifier runs verification jobs over a set of contacts.
type Verifier struct {
	store    VerifierStore
	jobs     *jobs.Service
	provider VerificationProvider

	// errorsAsUnknown records provider errors as unknown instead of failed,
	// so transient DNS trouble doesn't poison the run's failure count.
	errorsAsUnknown bool
}

// NewVerifier creates a verifier backed by the given provider.
func NewVerifier(store VerifierStore, jobSvc *jobs.Service, provider VerificationProvider, errorsAsUnknown bool) *Verifier {
	return &Verifier{store: store, jobs: jobSvc, provider: provider, errorsAsUnknown: errorsAsUnknown}
}

// Run drives one verification job over ids. When ids is empty every
// never-verified active contact is checked.
func (v *Verifier) Run(ctx context.Context, jobID string, ids []int64) error {
	tr := jobs.NewTracker(v.jobs, jobID, 0)
	if err := tr.Begin(ctx); err != nil {
		return err
	}

	if len(ids) == 0 {
		all, err := v.store.UnverifiedActiveIDs(ctx)
		if err != nil {
			return tr.Failed(ctx, err)
		}
		ids = all
	}

	contacts, err := v.store.ContactsByIDs(ctx, ids)
	if err != nil {
		return tr.Failed(ctx, err)
	}
	if err := tr.SetTotal(ctx, len(contacts)); err != nil {
		return err
	}

	for i := range contacts {
		c := &contacts[i]

		if err := tr.UnitStart(ctx, c.Email); err != nil {
			if errors.Is(err, jobs.ErrCancelled) {
				logger.Info("verification cancelled", "job_id", jobID)
				return tr.Cancelled(ctx)
			}
			return err
		}

		outcome := v.verifyContact(ctx, c)
		if err := tr.UnitDone(ctx, outcome); err != nil {
			return err
		}
	}

	logger.Info("verification finished",
		"job_id", jobID,
		"valid", tr.Counters().Valid,
		"invalid", tr.Counters().Invalid,
		"unknown", tr.Counters().Unknown,
		"skipped", tr.Counters().Skipped)
	return tr.Complete(ctx)
}

func (v *Verifier) verifyContact(ctx context.Context, c *domain.Contact) func(*domain.JobCounters) {
	if c.IsDuplicate || strings.TrimSpace(c.Email) == "" {
		return func(jc *domain.JobCounters) { jc.Skipped++ }
	}

	result, err := v.provider.Verify(ctx, c.NormalizedEmail())
	if err != nil {
		logger.Warn("verification error",
			"email", logger.RedactEmail(c.Email), "error", err.Error())
		if v.errorsAsUnknown {
			result = VerificationResult{Status: "unknown"}
		} else {
			return func(jc *domain.JobCounters) { jc.Failed++ }
		}
	}

	status, bump := mapVerdict(result.Status)
	if err := v.store.SetEmailStatus(ctx, c.ID, status); err != nil {
		logger.Warn("status update failed",
			"email", logger.RedactEmail(c.Email), "error", err.Error())
		return func(jc *domain.JobCounters) { jc.Failed++ }
	}
	return bump
}

// mapVerdict folds provider vocabulary onto the contact email_status values
// and picks the counter to bump.
func mapVerdict(verdict string) (string, func(*domain.JobCounters)) {
	switch verdict {
	case "valid", "deliverable":
		return domain.EmailStatusVerified, func(c *domain.JobCounters) { c.Valid++ }
	case "invalid", "undeliverable":
		return domain.EmailStatusInvalid, func(c *domain.JobCounters) { c.Invalid++ }
	default:
		// catch-all, risky, unknown
		return domain.EmailStatusUnknown, func(c *domain.JobCounters) { c.Unknown++ }
	}
}
