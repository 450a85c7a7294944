// Package validate holds the stateless input validators consulted before
// any network call: email domain classification and international phone
// number rules. The domain and country tables are data, not behavior.
package validate

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DomainType classifies the provider behind an email domain.
type DomainType string

// Domain classes.
const (
	DomainEducational  DomainType = "educational"
	DomainGovernmental DomainType = "governmental"
	DomainCommercial   DomainType = "commercial"
	DomainPersonal     DomainType = "personal"
)

// EmailResult is the outcome of a full email validation.
type EmailResult struct {
	Valid  bool
	Err    string
	Domain string
	Type   DomainType
}

var educationalDomains = map[string]bool{
	// México
	"uthh.edu.mx": true, "unam.mx": true, "itesm.mx": true, "ipn.mx": true,
	"uam.mx": true, "udg.mx": true, "uanl.mx": true, "buap.mx": true,
	"uach.mx": true, "uat.edu.mx": true, "uabc.mx": true, "uaslp.mx": true,
	"uas.edu.mx": true, "ugto.mx": true, "unison.mx": true,
	"uach.edu.mx": true, "ujat.mx": true,
	// Internationals
	"harvard.edu": true, "mit.edu": true, "stanford.edu": true,
	"berkeley.edu": true, "yale.edu": true, "oxford.ac.uk": true,
	"cambridge.ac.uk": true, "sorbonne.fr": true, "mcgill.ca": true,
}

var governmentalDomains = map[string]bool{
	// México
	"gob.mx": true, "sep.gob.mx": true, "imss.gob.mx": true,
	"issste.gob.mx": true, "sat.gob.mx": true, "inegi.gob.mx": true,
	"conacyt.mx": true, "salud.gob.mx": true, "semarnat.gob.mx": true,
	"energia.gob.mx": true, "hacienda.gob.mx": true,
	// Internationals
	"gov": true, "state.gov": true, "nih.gov": true, "cdc.gov": true,
	"nasa.gov": true,
}

var trustedProviders = map[string]bool{
	"gmail.com": true, "yahoo.com": true, "hotmail.com": true,
	"outlook.com": true, "live.com": true, "icloud.com": true,
	"me.com": true, "mac.com": true,
	"protonmail.com": true, "tutanota.com": true, "zoho.com": true,
	"yandex.com": true, "mail.com": true, "gmx.com": true, "aol.com": true,
	"fastmail.com": true,
	"microsoft.com": true, "google.com": true, "apple.com": true,
	"amazon.com": true, "facebook.com": true, "meta.com": true,
	"twitter.com": true, "x.com": true, "linkedin.com": true,
	"adobe.com": true, "salesforce.com": true, "dropbox.com": true,
}

var personalProviders = map[string]bool{
	"gmail.com": true, "yahoo.com": true, "hotmail.com": true,
	"outlook.com": true, "icloud.com": true,
}

var (
	emailFormatRe   = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	domainCharsRe   = regexp.MustCompile(`^[a-zA-Z0-9.-]+$`)
	institutionalRe = regexp.MustCompile(`^\d{8}@uthh\.edu\.mx$`)

	suspiciousLocalRes = []*regexp.Regexp{
		regexp.MustCompile(`^test`),
		regexp.MustCompile(`^admin`),
		regexp.MustCompile(`^noreply`),
		regexp.MustCompile(`\+.*\+`),
		regexp.MustCompile(`\.{2,}`),
	}

	trustedSuffixes = []string{
		".edu", ".edu.mx", ".ac.uk", ".gov", ".gob.mx", ".org", ".mil",
	}
)

// ValidEmailFormat checks the basic user@domain.tld shape.
func ValidEmailFormat(email string) bool {
	return emailFormatRe.MatchString(email)
}

// ExtractDomain returns the lowercased domain part, or "" for a malformed
// address.
func ExtractDomain(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return ""
	}
	return strings.ToLower(parts[1])
}

// ClassifyDomain determines the domain class.
func ClassifyDomain(domain string) DomainType {
	if educationalDomains[domain] || strings.HasSuffix(domain, ".edu") || strings.HasSuffix(domain, ".edu.mx") {
		return DomainEducational
	}
	if governmentalDomains[domain] || strings.HasSuffix(domain, ".gov") || strings.HasSuffix(domain, ".gob.mx") {
		return DomainGovernmental
	}
	if trustedProviders[domain] {
		if personalProviders[domain] {
			return DomainPersonal
		}
		return DomainCommercial
	}
	return DomainCommercial
}

// TrustedDomain reports whether the domain is on an allow list or matches
// a trusted suffix pattern.
func TrustedDomain(domain string) bool {
	if educationalDomains[domain] || governmentalDomains[domain] || trustedProviders[domain] {
		return true
	}
	for _, suffix := range trustedSuffixes {
		if strings.HasSuffix(domain, suffix) {
			return true
		}
	}
	return false
}

// checkDomainStructure applies the structural rules: at least two labels,
// TLD and SLD of two or more characters, valid characters, no leading or
// trailing hyphen.
func checkDomainStructure(domain string) string {
	parts := strings.Split(domain, ".")
	if len(parts) < 2 {
		return "incomplete domain"
	}
	tld := parts[len(parts)-1]
	sld := parts[len(parts)-2]
	if len(tld) < 2 {
		return "invalid domain extension"
	}
	if len(sld) < 2 {
		return "domain too short"
	}
	if !domainCharsRe.MatchString(domain) {
		return "invalid characters in domain"
	}
	if strings.HasPrefix(domain, "-") || strings.HasSuffix(domain, "-") {
		return "invalid domain format"
	}
	return ""
}

// Email runs the full validation pipeline: format, domain structure,
// institutional pattern, trust classification and local-part rules.
func Email(email string) EmailResult {
	cleaned := strings.ToLower(strings.TrimSpace(norm.NFC.String(email)))
	if cleaned == "" {
		return EmailResult{Err: "email is required"}
	}

	if !ValidEmailFormat(cleaned) {
		return EmailResult{Err: "invalid email format"}
	}

	domain := ExtractDomain(cleaned)
	if domain == "" {
		return EmailResult{Err: "invalid email domain"}
	}

	if structErr := checkDomainStructure(domain); structErr != "" {
		return EmailResult{Err: structErr}
	}

	// Institutional addresses must follow the enrollment-number pattern.
	if domain == "uthh.edu.mx" && !institutionalRe.MatchString(cleaned) {
		return EmailResult{
			Err:    "institutional email must look like 12345678@uthh.edu.mx",
			Domain: domain,
			Type:   DomainEducational,
		}
	}

	if !TrustedDomain(domain) {
		return EmailResult{
			Err:    "unrecognized email domain, use a trusted provider",
			Domain: domain,
		}
	}

	local := strings.SplitN(cleaned, "@", 2)[0]
	if len(local) < 2 {
		return EmailResult{Err: "mailbox name too short"}
	}
	for _, re := range suspiciousLocalRes {
		if re.MatchString(local) {
			return EmailResult{Err: "invalid email format"}
		}
	}

	return EmailResult{
		Valid:  true,
		Domain: domain,
		Type:   ClassifyDomain(domain),
	}
}
