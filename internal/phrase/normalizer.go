// Package phrase implements the deterministic ATC text normalization
// pipeline applied to every recognizer hypothesis before it becomes a
// transcription.
package phrase

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/atcscribe/atcscribe-core/internal/vocab"
)

// The rules run in a fixed order, each one rescanning the full output of
// the previous rule.
var (
	flightLevelRe = regexp.MustCompile(`(?i)(flight\s+level\s+)(\d{3})\b`)
	runwayRe      = regexp.MustCompile(`(?i)(runway\s+)(\d{2})\b`)

	correctionRes = buildCorrections()
)

type correction struct {
	re *regexp.Regexp
	to string
}

func buildCorrections() []correction {
	out := make([]correction, 0, len(vocab.LexicalCorrections))
	for _, c := range vocab.LexicalCorrections {
		pattern := fmt.Sprintf(`(?i)\b%s\b`, strings.ReplaceAll(regexp.QuoteMeta(c.From), ` `, `\s+`))
		out = append(out, correction{re: regexp.MustCompile(pattern), to: c.To})
	}
	return out
}

// Normalize rewrites a raw recognizer hypothesis into standard ATC
// phraseology. It is pure and idempotent; an input that is empty after
// trimming yields an empty string, which callers treat as "no utterance"
// rather than as an error.
func Normalize(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}
	text = spaceDigits(flightLevelRe, text)
	text = spaceDigits(runwayRe, text)
	for _, c := range correctionRes {
		text = c.re.ReplaceAllString(text, c.to)
	}
	return text
}

// spaceDigits rewrites the digit group of each match with the digits
// space-separated, keeping the matched prefix (and its case) intact.
func spaceDigits(re *regexp.Regexp, text string) string {
	return re.ReplaceAllStringFunc(text, func(m string) string {
		sub := re.FindStringSubmatch(m)
		digits := strings.Split(sub[2], "")
		return sub[1] + strings.Join(digits, " ")
	})
}
