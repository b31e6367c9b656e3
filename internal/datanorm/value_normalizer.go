package datanorm

import (
	"strings"

	"github.com/ignite/deduply/internal/domain"
)

// NormalizedContact is the fully normalized output of one CSV row,
// ready for insertion into the contacts table.
type NormalizedContact struct {
	Email             string
	FirstName         string
	LastName          string
	Title             string
	Company           string
	CompanyCleanedBy  string // reason when company cleaning changed the value
	FirstPhone        string
	CorporatePhone    string
	PersonLinkedinURL string
	Website           string
	OutreachLists     []string
	CampaignsAssigned []string
	EmailStatus       string

	// Anything that doesn't map to a canonical field
	Extra map[string]string
}

// NormalizeRow takes a CSV row and a column mapping and produces a
// NormalizedContact. When clean is true, name and company values are
// repaired via CleanName/CleanCompanyName; otherwise values are only
// trimmed.
func NormalizeRow(row []string, mapping *ColumnMapping, clean bool) *NormalizedContact {
	rec := &NormalizedContact{Extra: make(map[string]string)}

	for i, val := range row {
		val = strings.TrimSpace(val)
		if val == "" {
			continue
		}

		field, mapped := mapping.FieldMap[i]
		if !mapped {
			rawHeader := ""
			if i < len(mapping.RawNames) {
				rawHeader = strings.TrimSpace(mapping.RawNames[i])
			}
			if rawHeader != "" {
				rec.Extra[rawHeader] = val
			}
			continue
		}

		switch field {
		case FieldEmail:
			rec.Email = domain.NormalizeEmail(val)
		case FieldFirstName:
			rec.FirstName = val
		case FieldLastName:
			rec.LastName = val
		case FieldTitle:
			rec.Title = val
		case FieldCompany:
			rec.Company = val
		case FieldFirstPhone:
			if rec.FirstPhone == "" {
				rec.FirstPhone = NormalizePhone(val)
			}
		case FieldCorporatePhone:
			if rec.CorporatePhone == "" {
				rec.CorporatePhone = NormalizePhone(val)
			}
		case FieldLinkedinURL:
			rec.PersonLinkedinURL = val
		case FieldWebsite:
			rec.Website = val
		case FieldOutreachList:
			rec.OutreachLists = domain.UnionLists(rec.OutreachLists, domain.ParseList(val))
		case FieldCampaign:
			rec.CampaignsAssigned = domain.UnionLists(rec.CampaignsAssigned, domain.ParseList(val))
		case FieldEmailStatus:
			rec.EmailStatus = normalizeEmailStatus(val)
		}
	}

	if clean {
		rec.FirstName = CleanName(rec.FirstName, true)
		rec.LastName = CleanName(rec.LastName, true)
		if cleaned, reason := CleanCompanyName(rec.Company, rec.Website); reason != "" {
			rec.Company = cleaned
			rec.CompanyCleanedBy = reason
		}
	}

	return rec
}

// normalizeEmailStatus maps vendor-specific verification labels to the
// canonical email_status set.
func normalizeEmailStatus(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "verified", "valid", "deliverable", "ok":
		return domain.EmailStatusVerified
	case "invalid", "undeliverable", "bad", "bounced":
		return domain.EmailStatusInvalid
	case "unknown", "risky", "catch-all", "catch_all", "accept-all":
		return domain.EmailStatusUnknown
	default:
		return domain.EmailStatusUnverified
	}
}
