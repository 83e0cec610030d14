// Package correlate pairs requirement artifacts with scraped pages by fuzzy
// name matching and builds the combined artifacts handed to generation.
package correlate

import (
	"regexp"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/Jojodayolo/testforge/internal/urlcodec"
)

// DefaultCutoff is the minimum similarity accepted as a match.
const DefaultCutoff = 0.6

var (
	schemePrefix = regexp.MustCompile(`^(https?_+)?`)
	nonWord      = regexp.MustCompile(`[^a-zA-Z0-9_]`)
	underscores  = regexp.MustCompile(`_+`)
)

// Normalize reduces an artifact name to a comparable key: extension and
// leading scheme token removed, every non-alphanumeric rune turned into a
// single underscore, lowercase.
func Normalize(name string) string {
	name = urlcodec.StripExtension(name)
	name = schemePrefix.ReplaceAllString(name, "")
	name = strings.ReplaceAll(name, ":", "_")
	name = nonWord.ReplaceAllString(name, "_")
	name = underscores.ReplaceAllString(name, "_")
	return strings.ToLower(strings.Trim(name, "_"))
}

// Similarity returns the SequenceMatcher ratio of a and b, in [0,1].
func Similarity(a, b string) float64 {
	return difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, "")).Ratio()
}

// Match is a scored candidate.
type Match struct {
	Name  string
	Score float64
}

// BestMatch returns the candidate most similar to query. ok is false when no
// candidate reaches cutoff; the returned Match then carries the best score
// seen. Equal scores go to the lexically larger candidate.
func BestMatch(query string, candidates []string, cutoff float64) (best Match, ok bool) {
	q := strings.Split(query, "")
	m := difflib.NewMatcher(nil, q)
	for _, c := range candidates {
		m.SetSeq1(strings.Split(c, ""))
		score := m.Ratio()
		if score > best.Score || (score == best.Score && c > best.Name) {
			best = Match{Name: c, Score: score}
		}
	}
	return best, best.Name != "" && best.Score >= cutoff
}
