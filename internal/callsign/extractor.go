// Package callsign extracts aircraft callsigns from transcribed ATC text.
// Extraction is lexical only; tokens are not validated against any
// registry.
package callsign

import (
	"regexp"
	"sort"
	"strings"

	"github.com/atcscribe/atcscribe-core/internal/vocab"
)

var (
	// Airline style: three-letter designator, optional whitespace, one to
	// four digits, optional trailing letter. Emitted without the space.
	airlineRe = regexp.MustCompile(`\b([A-Z]{3})\s?(\d{1,4})([A-Z]?)\b`)

	// General aviation style: national prefix, optional hyphen, exactly
	// three letters. Emitted with the hyphen always present.
	registrationRe = buildRegistrationRe()
)

func buildRegistrationRe() *regexp.Regexp {
	prefixes := append([]string(nil), vocab.RegistrationPrefixes...)
	// Longest prefixes first so "OO" wins over a bare "O"-like fallback.
	sort.Slice(prefixes, func(i, j int) bool { return len(prefixes[i]) > len(prefixes[j]) })
	return regexp.MustCompile(`\b(` + strings.Join(prefixes, "|") + `)-?([A-Z]{3})\b`)
}

type match struct {
	pos   int
	token string
}

// Extract returns the callsigns found in text, de-duplicated by exact
// string, ordered by the position of each callsign's first occurrence.
func Extract(text string) []string {
	upper := strings.ToUpper(text)

	var found []match
	for _, m := range airlineRe.FindAllStringSubmatchIndex(upper, -1) {
		token := upper[m[2]:m[3]] + upper[m[4]:m[5]] + upper[m[6]:m[7]]
		found = append(found, match{pos: m[0], token: token})
	}
	for _, m := range registrationRe.FindAllStringSubmatchIndex(upper, -1) {
		token := upper[m[2]:m[3]] + "-" + upper[m[4]:m[5]]
		found = append(found, match{pos: m[0], token: token})
	}

	sort.SliceStable(found, func(i, j int) bool { return found[i].pos < found[j].pos })

	seen := make(map[string]struct{}, len(found))
	out := make([]string, 0, len(found))
	for _, m := range found {
		if _, ok := seen[m.token]; ok {
			continue
		}
		seen[m.token] = struct{}{}
		out = append(out, m.token)
	}
	return out
}
