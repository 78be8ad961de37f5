// Package detector decides when a statically fetched page should be
// re-rendered in a headless browser.
package detector

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/JakeFAU/leadwatch/internal/lead"
)

const defaultThreshold = 4096

// Heuristic flags client-rendered shells: empty bodies, small script-heavy
// pages and documents carrying a known SPA mount point.
type Heuristic struct {
	BodyLengthThreshold int
}

// NewHeuristic creates a detector. A non-positive threshold uses 4 KiB.
func NewHeuristic(threshold int) *Heuristic {
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	return &Heuristic{BodyLengthThreshold: threshold}
}

var spaMarkers = [][]byte{
	[]byte(`id="__next"`),
	[]byte(`id="root"></div>`),
	[]byte(`id="app"></div>`),
	[]byte("data-reactroot"),
	[]byte("ng-version="),
	[]byte("window.__NUXT__"),
	[]byte("enable javascript to run this app"),
}

// ShouldPromote reports whether page looks like it needs JavaScript to
// render its content. Only successful HTML responses qualify.
func (h *Heuristic) ShouldPromote(page lead.Page) bool {
	if page.StatusCode != http.StatusOK || page.UsedHeadless {
		return false
	}
	if ct := page.Headers.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return false
	}
	body := page.Body
	if len(bytes.TrimSpace(body)) == 0 {
		return true
	}
	if len(body) < h.BodyLengthThreshold && scriptShare(body) >= 25 {
		return true
	}
	lower := bytes.ToLower(body)
	for _, marker := range spaMarkers {
		if bytes.Contains(lower, bytes.ToLower(marker)) {
			return true
		}
	}
	return false
}

// scriptShare returns the percentage of body bytes inside <script> elements.
// An unterminated tag or element counts to the end of the document.
func scriptShare(body []byte) int {
	lower := strings.ToLower(string(body))
	total := len(lower)
	if total == 0 {
		return 0
	}
	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	covered := 0
	pos := 0
	for {
		rel := strings.Index(lower[pos:], openTag)
		if rel == -1 {
			break
		}
		start := pos + rel
		tagEnd := strings.IndexByte(lower[start:], '>')
		if tagEnd == -1 {
			covered += total - start
			break
		}
		contentStart := start + tagEnd + 1
		next := total
		if end := strings.Index(lower[contentStart:], closeTag); end != -1 {
			next = contentStart + end + len(closeTag)
		}
		covered += next - start
		pos = next
	}
	return covered * 100 / total
}
