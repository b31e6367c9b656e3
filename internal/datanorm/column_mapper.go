package datanorm

import "strings"

// CanonicalField is a normalized field name used across all import sources.
type CanonicalField string

const (
	FieldEmail          CanonicalField = "email"
	FieldFirstName      CanonicalField = "first_name"
	FieldLastName       CanonicalField = "last_name"
	FieldTitle          CanonicalField = "title"
	FieldCompany        CanonicalField = "company"
	FieldFirstPhone     CanonicalField = "first_phone"
	FieldCorporatePhone CanonicalField = "corporate_phone"
	FieldLinkedinURL    CanonicalField = "person_linkedin_url"
	FieldWebsite        CanonicalField = "website"
	FieldOutreachList   CanonicalField = "outreach_lists"
	FieldCampaign       CanonicalField = "campaigns_assigned"
	FieldEmailStatus    CanonicalField = "email_status"
)

// columnAliases maps lowercase header names to canonical fields.
// When multiple raw headers mean the same thing, they all map here.
var columnAliases = map[string]CanonicalField{
	// Email
	"email":         FieldEmail,
	"email_address": FieldEmail,
	"emailaddress":  FieldEmail,
	"e-mail":        FieldEmail,
	"mail":          FieldEmail,
	"work email":    FieldEmail,

	// First name
	"first_name": FieldFirstName,
	"firstname":  FieldFirstName,
	"fname":      FieldFirstName,
	"first":      FieldFirstName,
	"first name": FieldFirstName,

	// Last name
	"last_name": FieldLastName,
	"lastname":  FieldLastName,
	"lname":     FieldLastName,
	"last":      FieldLastName,
	"last name": FieldLastName,

	// Title / role
	"title":     FieldTitle,
	"job title": FieldTitle,
	"job_title": FieldTitle,
	"position":  FieldTitle,
	"role":      FieldTitle,

	// Company
	"company":      FieldCompany,
	"company name": FieldCompany,
	"company_name": FieldCompany,
	"organization": FieldCompany,
	"account":      FieldCompany, // CRM exports

	// Phones
	"phone":           FieldFirstPhone,
	"first phone":     FieldFirstPhone,
	"first_phone":     FieldFirstPhone,
	"mobile":          FieldFirstPhone,
	"mobile phone":    FieldFirstPhone,
	"direct phone":    FieldFirstPhone,
	"corporate phone": FieldCorporatePhone,
	"corporate_phone": FieldCorporatePhone,
	"company phone":   FieldCorporatePhone,
	"work phone":      FieldCorporatePhone,

	// LinkedIn
	"linkedin":            FieldLinkedinURL,
	"linkedin url":        FieldLinkedinURL,
	"linkedin_url":        FieldLinkedinURL,
	"person linkedin url": FieldLinkedinURL,
	"person_linkedin_url": FieldLinkedinURL,

	// Website
	"website":     FieldWebsite,
	"web site":    FieldWebsite,
	"company url": FieldWebsite,
	"domain":      FieldWebsite,
	"url":         FieldWebsite,

	// Membership columns
	"outreach_lists": FieldOutreachList,
	"outreach lists": FieldOutreachList,
	"outreach_list":  FieldOutreachList,
	"outreach list":  FieldOutreachList,
	"list":           FieldOutreachList,
	"lists":          FieldOutreachList,
	"list name":      FieldOutreachList,

	"campaigns_assigned": FieldCampaign,
	"campaigns assigned": FieldCampaign,
	"campaign":           FieldCampaign,
	"campaigns":          FieldCampaign,

	// Verification status from validated exports
	"email_status":  FieldEmailStatus,
	"email status":  FieldEmailStatus,
	"email_quality": FieldEmailStatus,
	"verification":  FieldEmailStatus,
}

// ColumnMapping holds the resolved mapping from CSV column indices to canonical fields.
type ColumnMapping struct {
	EmailIdx int
	FieldMap map[int]CanonicalField // column index -> canonical field
	RawNames []string               // original header names
}

// MapColumns takes a raw CSV header row and returns a resolved mapping.
// Returns nil if no email column is found.
func MapColumns(header []string) *ColumnMapping {
	m := &ColumnMapping{
		EmailIdx: -1,
		FieldMap: make(map[int]CanonicalField, len(header)),
		RawNames: header,
	}

	for i, h := range header {
		normalized := strings.ToLower(strings.TrimSpace(h))
		// Remove surrounding quotes and a UTF-8 BOM on the first column
		normalized = strings.Trim(normalized, "\"'")
		normalized = strings.TrimPrefix(normalized, "\ufeff")

		if field, ok := columnAliases[normalized]; ok {
			m.FieldMap[i] = field
			if field == FieldEmail {
				m.EmailIdx = i
			}
		}
	}

	// Fallback: scan for any header containing "email" if no exact match
	if m.EmailIdx < 0 {
		for i, h := range header {
			if strings.Contains(strings.ToLower(h), "email") {
				m.FieldMap[i] = FieldEmail
				m.EmailIdx = i
				break
			}
		}
	}

	if m.EmailIdx < 0 {
		return nil
	}

	return m
}

// Suggestions returns the mapping as header-name -> canonical-field pairs,
// used by the import preview endpoint.
func (m *ColumnMapping) Suggestions() map[string]string {
	out := make(map[string]string, len(m.FieldMap))
	for idx, field := range m.FieldMap {
		name := ""
		if idx < len(m.RawNames) {
			name = strings.TrimSpace(m.RawNames[idx])
		}
		if name == "" {
			continue
		}
		out[name] = string(field)
	}
	return out
}

// LooksLikeEmail returns true if the value appears to be an email address.
// Used to detect headerless CSVs where the first row is data, not column names.
func LooksLikeEmail(val string) bool {
	v := strings.TrimSpace(val)
	if len(v) < 5 || len(v) > 254 {
		return false
	}
	at := strings.LastIndex(v, "@")
	if at < 1 || at >= len(v)-1 {
		return false
	}
	domain := v[at+1:]
	return strings.Contains(domain, ".") && len(domain) >= 3
}

// MapColumnsHeaderless builds a ColumnMapping for a CSV with no header row
// by scanning the first data row for a cell that looks like an email address.
// Returns nil if no email-shaped value is found.
func MapColumnsHeaderless(firstRow []string) *ColumnMapping {
	m := &ColumnMapping{
		EmailIdx: -1,
		FieldMap: make(map[int]CanonicalField),
	}
	for i, val := range firstRow {
		if m.EmailIdx < 0 && LooksLikeEmail(val) {
			m.EmailIdx = i
			m.FieldMap[i] = FieldEmail
		}
	}
	if m.EmailIdx < 0 {
		return nil
	}
	return m
}
