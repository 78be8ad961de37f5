// Package extract pulls the title, publish date and main text out of fetched HTML.
package extract

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// Document is the readable content of a page.
type Document struct {
	Title       string
	Description string
	Text        string
	PublishedAt *time.Time
}

var (
	whitespace   = regexp.MustCompile(`\s+`)
	jsonLDDate   = regexp.MustCompile(`"datePublished"\s*:\s*"([^"]+)"`)
	noiseNodes   = "script, style, noscript, nav, header, footer, aside, form, iframe, svg, [aria-hidden=true]"
	contentNodes = []string{"article", "main", "[role=main]", ".post-content", ".entry-content", "#content"}
	dateMeta     = []string{
		`meta[property="article:published_time"]`,
		`meta[name="article:published_time"]`,
		`meta[property="og:published_time"]`,
		`meta[name="pubdate"]`,
		`meta[name="publish-date"]`,
		`meta[name="date"]`,
		`meta[itemprop="datePublished"]`,
	}
	dateLayouts = []string{
		time.RFC3339,
		"2006-01-02T15:04:05Z0700",
		"2006-01-02T15:04:05",
		time.DateOnly,
		"January 2, 2006",
		"Jan 2, 2006",
	}
)

// HTML parses body and returns its readable content. maxRunes truncates Text
// when positive.
func HTML(body []byte, maxRunes int) (Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Document{}, fmt.Errorf("parse html: %w", err)
	}

	out := Document{
		Title:       title(doc),
		Description: attr(doc, `meta[name="description"]`, `meta[property="og:description"]`),
		PublishedAt: publishedAt(doc, body),
	}

	doc.Find(noiseNodes).Remove()
	root := doc.Find("body")
	for _, sel := range contentNodes {
		if s := doc.Find(sel).First(); s.Length() > 0 && len(strings.TrimSpace(s.Text())) > 200 {
			root = s
			break
		}
	}
	var parts []string
	root.Find("h1, h2, h3, p, li, blockquote").Each(func(_ int, s *goquery.Selection) {
		if t := Clean(s.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	text := strings.Join(parts, "\n")
	if text == "" {
		text = Clean(root.Text())
	}
	out.Text = Truncate(text, maxRunes)
	return out, nil
}

func title(doc *goquery.Document) string {
	if t := attr(doc, `meta[property="og:title"]`, `meta[name="twitter:title"]`); t != "" {
		return t
	}
	if t := Clean(doc.Find("h1").First().Text()); t != "" {
		return t
	}
	return Clean(doc.Find("title").First().Text())
}

func attr(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if v, ok := doc.Find(sel).First().Attr("content"); ok {
			if v = Clean(v); v != "" {
				return v
			}
		}
	}
	return ""
}

func publishedAt(doc *goquery.Document, body []byte) *time.Time {
	candidates := make([]string, 0, 4)
	for _, sel := range dateMeta {
		if v, ok := doc.Find(sel).First().Attr("content"); ok {
			candidates = append(candidates, v)
		}
	}
	if v, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok {
		candidates = append(candidates, v)
	}
	if m := jsonLDDate.FindSubmatch(body); m != nil {
		candidates = append(candidates, string(m[1]))
	}
	for _, c := range candidates {
		if t, ok := ParseTime(c); ok {
			return &t
		}
	}
	return nil
}

// ParseTime accepts the date formats commonly found in page metadata.
func ParseTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// Clean collapses whitespace.
func Clean(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// Truncate cuts s to at most n runes, preferring a word boundary.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	cut := string(runes[:n])
	if i := strings.LastIndexAny(cut, " \n"); i > n/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut) + "…"
}
