// Package urlcodec maps page URLs to filesystem-safe artifact names and back.
//
// The on-disk convention is `scheme_host_port_path_segments.html`: the scheme
// separator, every path separator and the host/port colon collapse to a single
// underscore. Decoding is exact for URLs of the form scheme://host:port/path and
// best-effort for anything else.
package urlcodec

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Extension is appended to every encoded name.
const Extension = ".html"

var encoder = strings.NewReplacer("://", "_", "/", "_", ":", "_")

// knownExtensions are stripped before decoding. Anything else is kept so that a
// bare host such as "http_example.com" is not mistaken for a file extension.
var knownExtensions = map[string]bool{
	".html": true,
	".htm":  true,
	".txt":  true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
}

// Encode returns the artifact name for rawURL.
func Encode(rawURL string) string {
	return encoder.Replace(rawURL) + Extension
}

// Decode reverses Encode. The token after the host is read as a port when it
// is all digits and at most 65535, so a URL with no port whose first path
// segment is numeric does not round-trip: "http://example.com/2024/news"
// decodes as "http://example.com:2024/news".
func Decode(name string) string {
	name = StripExtension(name)

	scheme := "http"
	switch {
	case strings.HasPrefix(name, "https_"):
		scheme, name = "https", strings.TrimPrefix(name, "https_")
	case strings.HasPrefix(name, "http_"):
		name = strings.TrimPrefix(name, "http_")
	}

	// Screenshot-derived names keep the host:port colon.
	name = strings.ReplaceAll(name, ":", "_")

	segs := strings.Split(name, "_")
	host := segs[0]
	rest := segs[1:]
	if len(rest) > 0 && isPort(rest[0]) {
		host += ":" + rest[0]
		rest = rest[1:]
	}

	u := scheme + "://" + host
	if len(rest) > 0 {
		u += "/" + strings.Join(rest, "/")
	}
	return u
}

// StripExtension removes a known artifact extension from name.
func StripExtension(name string) string {
	ext := filepath.Ext(name)
	if knownExtensions[strings.ToLower(ext)] {
		return strings.TrimSuffix(name, ext)
	}
	return name
}

func isPort(s string) bool {
	if s == "" || len(s) > 5 {
		return false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return false
	}
	return n >= 0 && n <= 65535 && strings.Trim(s, "0123456789") == ""
}

var encodedName = regexp.MustCompile(`\bhttps?_[\w\-.]+\.html\b`)

// ReplaceNames rewrites every encoded artifact name found in text back into
// its URL.
func ReplaceNames(text string) string {
	return encodedName.ReplaceAllStringFunc(text, Decode)
}
