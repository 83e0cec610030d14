package crawler

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Jojodayolo/testforge/internal/model"
)

// nonContentSelectors lists elements dropped before reading body text.
const nonContentSelectors = "script, style, noscript, template"

// ParsePage builds a PageRecord from raw HTML. A page without a title or
// without body text yields a *model.ValidationError.
func ParsePage(pageURL string, body []byte) (*model.PageRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &model.ValidationError{URL: pageURL, Reason: fmt.Sprintf("parse html: %v", err)}
	}

	rec := &model.PageRecord{
		URL:             pageURL,
		Title:           strings.TrimSpace(doc.Find("title").First().Text()),
		MetaDescription: metaDescription(doc),
		Headings: model.Headings{
			H1: headingTexts(doc, "h1"),
			H2: headingTexts(doc, "h2"),
			H3: headingTexts(doc, "h3"),
		},
		Links:   hrefs(doc),
		Images:  images(doc),
		RawHTML: string(body),
	}
	rec.Text = bodyText(doc)

	switch {
	case rec.Title == "":
		return nil, &model.ValidationError{URL: pageURL, Reason: "title not found"}
	case rec.Text == "":
		return nil, &model.ValidationError{URL: pageURL, Reason: "no body text"}
	}
	return rec, nil
}

func metaDescription(doc *goquery.Document) string {
	if desc, ok := doc.Find("meta[name='description']").Attr("content"); ok {
		return strings.TrimSpace(desc)
	}
	return ""
}

func headingTexts(doc *goquery.Document, tag string) []string {
	var out []string
	doc.Find(tag).Each(func(_ int, s *goquery.Selection) {
		out = append(out, collapse(s.Text()))
	})
	return out
}

func hrefs(doc *goquery.Document) []string {
	var out []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		out = append(out, href)
	})
	return out
}

func images(doc *goquery.Document) []model.Image {
	var out []model.Image
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		alt, _ := s.Attr("alt")
		out = append(out, model.Image{Src: src, Alt: alt})
	})
	return out
}

// bodyText returns the visible body text with whitespace collapsed.
func bodyText(doc *goquery.Document) string {
	body := doc.Find("body").First()
	body.Find(nonContentSelectors).Remove()
	return collapse(body.Text())
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Normalize puts u in the form used as the visited key: no fragment and a
// root path of "/" when the path is empty.
func Normalize(u *url.URL) string {
	n := *u
	n.Fragment = ""
	n.RawFragment = ""
	if n.Path == "" && n.Opaque == "" {
		n.Path = "/"
		n.RawPath = ""
	}
	return n.String()
}

// ScopedLinks resolves every href against base, normalizes the results and
// returns the in-scope targets in document order without duplicates.
func ScopedLinks(base *url.URL, hrefs []string, authority string) []string {
	seen := make(map[string]bool, len(hrefs))
	var out []string
	for _, href := range hrefs {
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			continue
		}
		target := base.ResolveReference(ref)
		if !InScope(target, authority) {
			continue
		}
		s := Normalize(target)
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// InScope reports whether u is an http(s) URL on exactly the given host:port.
func InScope(u *url.URL, authority string) bool {
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host == authority
}
