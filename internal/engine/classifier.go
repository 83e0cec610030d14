package engine

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/Jojodayolo/testforge/internal/model"
)

// classifyWindow is how many trailing runes of a turn are inspected.
const classifyWindow = 400

var (
	stopPatterns = []*regexp.Regexp{
		regexp.MustCompile(`end of (the )?(analysis|tests|test suite|output|response)`),
		regexp.MustCompile(`analysis (is )?complete`),
		regexp.MustCompile(`this concludes`),
		regexp.MustCompile(`no further (tests|output|steps)`),
		regexp.MustCompile(`all tests (have been |are )?(generated|written|complete)`),
	}
	continuePatterns = []*regexp.Regexp{
		regexp.MustCompile(`to be continued`),
		regexp.MustCompile(`continu(e|ed|ing) in the next (message|response|part|turn)`),
		regexp.MustCompile(`(shall|should) i continue`),
		regexp.MustCompile(`(reply|type|say) ['"]?continue`),
		continueToken,
	}
	// continueToken is a bare trailing "continue", optionally bracketed.
	continueToken = regexp.MustCompile(`(?:^|\s)\[?continue\]?[.!…]*$`)
)

// PatternClassifier decides by matching phrases near the end of a turn.
// Stop phrases win over continue phrases; with neither, the turn stops.
type PatternClassifier struct{}

// Classify implements Classifier.
func (PatternClassifier) Classify(text string) model.Signal {
	tail := strings.ToLower(strings.TrimSpace(lastRunes(text, classifyWindow)))
	for _, p := range stopPatterns {
		if p.MatchString(tail) {
			return model.SignalStop
		}
	}
	for _, p := range continuePatterns {
		if p.MatchString(tail) {
			return model.SignalContinue
		}
	}
	return model.SignalStop
}

func lastRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[len(r)-n:])
}

var trailingContinue = regexp.MustCompile(`(?i)(?:^|\s)\[?continue\]?[.!…]*\s*$`)

// StripContinuation removes a trailing continuation token from a turn.
func StripContinuation(text string) string {
	return strings.TrimSpace(trailingContinue.ReplaceAllString(text, ""))
}

// JoinTurns concatenates responder turns with a blank line between them.
func JoinTurns(turns []model.Turn) string {
	parts := make([]string, 0, len(turns))
	for _, t := range turns {
		if s := StripContinuation(t.RawContent); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}
