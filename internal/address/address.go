// Package address splits free-text Australian addresses into the structured
// components carrier APIs expect. Parsing is best-effort: a field that cannot
// be recovered degrades to the empty string so dispatch is never blocked on a
// malformed address.
package address

import (
	"regexp"
	"strings"
)

var (
	stateRe    = regexp.MustCompile(`\b(NSW|VIC|QLD|SA|WA|TAS|NT|ACT)\b`)
	postcodeRe = regexp.MustCompile(`\b\d{4}\b`)
)

// Parts is the structured decomposition of a one-line address.
type Parts struct {
	Street   string
	Suburb   string
	State    string
	Postcode string
}

// Parse decomposes a comma-delimited address line. The first segment is the
// street, the second the suburb; the state abbreviation and 4-digit postcode
// are matched anywhere in the string. Missing segments come back empty.
func Parse(raw string) Parts {
	var p Parts
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return p
	}

	segments := strings.Split(raw, ",")
	p.Street = strings.TrimSpace(segments[0])
	if len(segments) > 1 {
		p.Suburb = strings.TrimSpace(segments[1])
	}
	p.State = stateRe.FindString(raw)
	p.Postcode = postcodeRe.FindString(raw)
	return p
}

// Postcode extracts the first 4-digit postcode from an address line, or ""
// when none is present.
func Postcode(raw string) string {
	return postcodeRe.FindString(raw)
}
