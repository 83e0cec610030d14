package crawler

import (
	"bytes"
	"fmt"
	nurl "net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-shiori/go-readability"
)

// maxReadableLength is the maximum number of runes kept from readable text.
const maxReadableLength = 15000

// Readable extracts the main article text of a stored page with
// go-readability. It is used when combined artifacts should carry page text
// instead of raw HTML.
func Readable(rawHTML []byte, pageURL string) (string, error) {
	parsedURL, err := nurl.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	article, err := readability.FromReader(bytes.NewReader(rawHTML), parsedURL)
	if err != nil {
		return "", fmt.Errorf("readability: %w", err)
	}

	text := normalizeText(article.TextContent)
	if text == "" {
		return "", fmt.Errorf("readability: no text extracted from %s", pageURL)
	}
	if article.Title != "" {
		text = article.Title + "\n\n" + text
	}

	if utf8.RuneCountInString(text) > maxReadableLength {
		runes := []rune(text)
		text = string(runes[:maxReadableLength]) + "\n... [truncated]"
	}
	return text, nil
}

var multiSpace = regexp.MustCompile(`[ \t]+`)
var multiNewline = regexp.MustCompile(`\n{3,}`)

func normalizeText(s string) string {
	s = strings.TrimSpace(s)
	s = multiSpace.ReplaceAllString(s, " ")
	s = multiNewline.ReplaceAllString(s, "\n\n")
	return s
}
