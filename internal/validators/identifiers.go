// Package validators provides validation functions for bibliographic identifiers.
package validators

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	orcidBaseURL = "https://orcid.org/"
	maxDOILength = 2048
)

var (
	// DOI: "10." followed by a dotted numeric registrant code, a slash and a non-empty suffix
	doiPattern = regexp.MustCompile(`^10\.[0-9]+(\.[0-9]+)*/\S+$`)

	// DOI prefix: the registrant part only, without suffix
	doiPrefixPattern = regexp.MustCompile(`^10\.[0-9]+(\.[0-9]+)*$`)

	issnPattern  = regexp.MustCompile(`^[0-9]{4}-[0-9]{3}[0-9X]$`)
	orcidPattern = regexp.MustCompile(`^[0-9]{4}-[0-9]{4}-[0-9]{4}-[0-9]{3}[0-9X]$`)
)

// ValidateDOI validates a DOI such as "10.12345/article-42".
// Returns the trimmed DOI and an error if validation fails.
//
// Resolver URLs (https://doi.org/...) and the "doi:" scheme are not accepted;
// articles store the bare DOI.
func ValidateDOI(doi string) (string, error) {
	doi = strings.TrimSpace(doi)
	if doi == "" {
		return "", fmt.Errorf("DOI cannot be empty")
	}
	if len(doi) > maxDOILength {
		return "", fmt.Errorf("DOI exceeds maximum length of %d characters", maxDOILength)
	}
	if !doiPattern.MatchString(doi) {
		return "", fmt.Errorf("DOI '%s' is invalid. A DOI must look like '10.<registrant>/<suffix>'", doi)
	}
	return doi, nil
}

// IsValidDOI reports whether doi passes ValidateDOI
func IsValidDOI(doi string) bool {
	_, err := ValidateDOI(doi)
	return err == nil
}

// ValidateDOIPrefix validates a depositor prefix such as "10.12345".
// A single trailing slash is tolerated and removed.
func ValidateDOIPrefix(prefix string) (string, error) {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), "/")
	if !doiPrefixPattern.MatchString(prefix) {
		return "", fmt.Errorf("DOI prefix '%s' is invalid. A prefix must look like '10.<registrant>'", prefix)
	}
	return prefix, nil
}

// ValidateISSN validates an ISSN in its hyphenated form, including the
// mod 11 check digit. A lowercase 'x' check digit is normalized to 'X'.
func ValidateISSN(issn string) (string, error) {
	issn = strings.ToUpper(strings.TrimSpace(issn))
	if !issnPattern.MatchString(issn) {
		return "", fmt.Errorf("ISSN '%s' is invalid. An ISSN must look like 'NNNN-NNNC'", issn)
	}

	digits := strings.ReplaceAll(issn, "-", "")
	sum := 0
	for i := 0; i < 7; i++ {
		sum += int(digits[i]-'0') * (8 - i)
	}
	check := (11 - sum%11) % 11
	if checkChar(check) != digits[7] {
		return "", fmt.Errorf("ISSN '%s' has an invalid check digit", issn)
	}
	return issn, nil
}

// IsValidISSN reports whether issn passes ValidateISSN
func IsValidISSN(issn string) bool {
	_, err := ValidateISSN(issn)
	return err == nil
}

// NormalizeORCID accepts an ORCID iD either bare ("0000-0002-1825-0097")
// or as an orcid.org URL and returns the canonical https URL form.
// The ISO 7064 mod 11-2 checksum is verified.
func NormalizeORCID(orcid string) (string, error) {
	id := strings.TrimSpace(orcid)
	for _, prefix := range []string{orcidBaseURL, "http://orcid.org/", "orcid.org/"} {
		if strings.HasPrefix(id, prefix) {
			id = strings.TrimPrefix(id, prefix)
			break
		}
	}
	id = strings.ToUpper(id)

	if id == "" {
		return "", fmt.Errorf("ORCID cannot be empty")
	}
	if !orcidPattern.MatchString(id) {
		return "", fmt.Errorf("ORCID '%s' is invalid. An ORCID must look like 'NNNN-NNNN-NNNN-NNNC'", orcid)
	}

	digits := strings.ReplaceAll(id, "-", "")
	total := 0
	for i := 0; i < 15; i++ {
		total = (total + int(digits[i]-'0')) * 2
	}
	check := (12 - total%11) % 11
	if checkChar(check) != digits[15] {
		return "", fmt.Errorf("ORCID '%s' has an invalid check digit", orcid)
	}
	return orcidBaseURL + id, nil
}

// IsValidORCID reports whether orcid passes NormalizeORCID
func IsValidORCID(orcid string) bool {
	_, err := NormalizeORCID(orcid)
	return err == nil
}

func checkChar(v int) byte {
	if v == 10 {
		return 'X'
	}
	return byte('0' + v)
}
