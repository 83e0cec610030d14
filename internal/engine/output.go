package engine

import (
	"regexp"
	"strings"
)

// fencedBlock matches a fenced code block whose opening fence carries a
// language tag.
var fencedBlock = regexp.MustCompile("(?s)```[A-Za-z0-9_+.-]+[^\\n]*\\n(.*?)```")

// ExtractCode returns the contents of all language-tagged fenced code blocks
// joined by a blank line, or the trimmed text when there are none.
func ExtractCode(text string) string {
	matches := fencedBlock.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return strings.TrimSpace(text)
	}
	blocks := make([]string, 0, len(matches))
	for _, m := range matches {
		blocks = append(blocks, strings.TrimSpace(m[1]))
	}
	return strings.Join(blocks, "\n\n")
}
