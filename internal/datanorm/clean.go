package datanorm

import (
	"regexp"
	"strings"
	"unicode"
)

// nameParticles are name components that stay lowercase when not leading
// (van der Berg, de la Cruz).
var nameParticles = map[string]bool{
	"van": true, "von": true, "der": true, "de": true, "del": true,
	"della": true, "di": true, "da": true, "le": true, "la": true,
	"du": true, "des": true, "el": true, "al": true,
}

// companySuffixes match trailing business designators for removal.
var companySuffixes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\s*,?\s*Inc\.?$`),
	regexp.MustCompile(`(?i)\s*,?\s*L\.?L\.?C\.?$`),
	regexp.MustCompile(`(?i)\s*,?\s*Corp\.?$`),
	regexp.MustCompile(`(?i)\s*,?\s*Corporation$`),
	regexp.MustCompile(`(?i)\s*,?\s*Co\.?$`),
	regexp.MustCompile(`(?i)\s*,?\s*Company$`),
	regexp.MustCompile(`(?i)\s*,?\s*Ltd\.?$`),
	regexp.MustCompile(`(?i)\s*,?\s*Limited$`),
	regexp.MustCompile(`(?i)\s*,?\s*L\.?L\.?P\.?$`),
	regexp.MustCompile(`(?i)\s*,?\s*L\.?P\.?$`),
	regexp.MustCompile(`(?i)\s*,?\s*P\.?C\.?$`),
	regexp.MustCompile(`(?i)\s*,?\s*PLLC\.?$`),
	regexp.MustCompile(`(?i)\s*,?\s*N\.?A\.?$`),
}

var (
	parenRe      = regexp.MustCompile(`\(([^)]+)\)`)
	multiSpaceRe = regexp.MustCompile(`\s+`)
	protocolRe   = regexp.MustCompile(`^https?://`)
	macPrefixRe  = regexp.MustCompile(`^mac[aeiou]`)
)

// CleanName repairs name capitalization. ALL-CAPS and all-lowercase names
// become title case with Mc/Mac/O'/D' prefixes and lowercase particles
// handled (MCDONALD -> McDonald, VAN DER BERG -> Van der Berg). When
// preserveMixed is true, names that already contain both cases are
// returned untouched.
func CleanName(name string, preserveMixed bool) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	if preserveMixed && hasUpper(name) && hasLower(name) {
		return name
	}

	if !hasLower(name) || !hasUpper(name) {
		name = titleCase(name)
	}

	words := strings.Fields(name)
	for i, word := range words {
		lower := strings.ToLower(word)

		if i > 0 && nameParticles[lower] {
			words[i] = lower
			continue
		}

		words[i] = fixNamePrefix(word, lower)
	}
	return strings.Join(words, " ")
}

// fixNamePrefix applies Mc/Mac/O'/D' capitalization to a single word.
func fixNamePrefix(word, lower string) string {
	type prefix struct {
		match string
		repl  string
	}
	var p *prefix
	switch {
	case strings.HasPrefix(lower, "mc"):
		p = &prefix{"mc", "Mc"}
	case macPrefixRe.MatchString(lower):
		p = &prefix{"mac", "Mac"}
	case strings.HasPrefix(lower, "o'"):
		p = &prefix{"o'", "O'"}
	case strings.HasPrefix(lower, "d'"):
		p = &prefix{"d'", "D'"}
	}
	if p == nil || len(word) <= len(p.match) {
		return word
	}
	rest := lower[len(p.match):]
	return p.repl + strings.ToUpper(rest[:1]) + rest[1:]
}

// CleanCompanyName standardizes a company name. It resolves parenthetical
// patterns ("Acme Corp (ACME)", "(formerly XYZ)") using the contact's
// website domain as a hint, then strips trailing business suffixes.
// Returns the cleaned name and a human-readable reason, or the original
// name and "" when nothing changed.
func CleanCompanyName(company, domain string) (string, string) {
	original := strings.TrimSpace(company)
	if original == "" {
		return "", ""
	}

	cleaned := original
	reason := ""

	if m := parenRe.FindStringSubmatchIndex(cleaned); m != nil {
		parenContent := strings.TrimSpace(cleaned[m[2]:m[3]])
		beforeParen := strings.TrimSpace(cleaned[:m[0]])

		domainName := ExtractDomainName(domain)
		parenClean := strings.NewReplacer(" ", "", "&", "").Replace(strings.ToLower(parenContent))
		domainClean := strings.ToLower(domainName)

		switch {
		case strings.Contains(strings.ToLower(parenContent), "formerly"):
			cleaned = beforeParen
			reason = "removed 'formerly' reference"
		case domainName != "" && parenClean == domainClean:
			cleaned = parenContent
			reason = "matched domain '" + domain + "'"
		case domainName != "" && len(parenClean) >= 2 && strings.HasPrefix(domainClean, parenClean):
			cleaned = parenContent
			reason = "matched domain prefix '" + domain + "'"
		case domainName != "" && len(domainClean) >= 3 && strings.HasPrefix(parenClean, domainClean):
			cleaned = parenContent
			reason = "matched domain '" + domain + "'"
		case beforeParen != "":
			cleaned = beforeParen
			reason = "removed parenthetical abbreviation"
		}
	}

	// Suffix stripping only applies when the parenthetical pass left the
	// name untouched, matching how operators expect "Acme Corp (ACME)" to
	// resolve to "ACME" rather than "Acme".
	if cleaned == original {
		for _, re := range companySuffixes {
			if stripped := re.ReplaceAllString(cleaned, ""); stripped != cleaned {
				cleaned = strings.TrimSpace(stripped)
				if reason == "" {
					reason = "removed business suffix"
				}
			}
		}
	}

	cleaned = multiSpaceRe.ReplaceAllString(cleaned, " ")
	cleaned = strings.Trim(cleaned, "[]() ")

	if cleaned == original || cleaned == "" {
		return original, ""
	}
	return cleaned, reason
}

// ExtractDomainName returns the company portion of a domain or URL:
// "https://www.acmewidgets.com" -> "acmewidgets".
func ExtractDomainName(domain string) string {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return ""
	}
	domain = protocolRe.ReplaceAllString(domain, "")
	domain = strings.TrimPrefix(domain, "www.")
	if idx := strings.IndexByte(domain, '/'); idx >= 0 {
		domain = domain[:idx]
	}
	if idx := strings.IndexByte(domain, '.'); idx >= 0 {
		domain = domain[:idx]
	}
	return domain
}

// SuggestCompanyFromDomain proposes a display name from a bare domain:
// "acme-widgets.com" -> "Acme Widgets".
func SuggestCompanyFromDomain(domain string) string {
	name := ExtractDomainName(domain)
	if name == "" {
		return ""
	}
	name = strings.NewReplacer("-", " ", "_", " ").Replace(name)
	return titleCase(name)
}

// NormalizePhone keeps only digits and a leading plus sign.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for i, r := range raw {
		if r == '+' && i == 0 {
			b.WriteRune(r)
		} else if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		if len(runes) > 0 {
			runes[0] = unicode.ToUpper(runes[0])
		}
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

func hasUpper(s string) bool {
	for _, r := range s {
		if unicode.IsUpper(r) {
			return true
		}
	}
	return false
}

func hasLower(s string) bool {
	for _, r := range s {
		if unicode.IsLower(r) {
			return true
		}
	}
	return false
}
