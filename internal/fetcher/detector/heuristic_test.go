package detector

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/leadwatch/internal/lead"
)

func htmlPage(status int, body string) lead.Page {
	return lead.Page{
		StatusCode: status,
		Headers:    http.Header{"Content-Type": {"text/html; charset=utf-8"}},
		Body:       []byte(body),
	}
}

func TestHeuristic_ShouldPromote(t *testing.T) {
	t.Parallel()

	article := "<html><body><article>" + strings.Repeat("Globex raised a Series B. ", 200) + "</article></body></html>"
	tests := []struct {
		name string
		page lead.Page
		want bool
	}{
		{name: "empty body", page: htmlPage(200, "  \n"), want: true},
		{name: "next.js mount", page: htmlPage(200, article+`<div id="__next"></div>`), want: true},
		{name: "noscript notice", page: htmlPage(200, article+"<noscript>Enable JavaScript to run this app.</noscript>"), want: true},
		{name: "small script heavy", page: htmlPage(200, `<html><script>var a=1;</script><p>t</p></html>`), want: true},
		{name: "server rendered article", page: htmlPage(200, article), want: false},
		{name: "non 200", page: htmlPage(404, "not found"), want: false},
		{name: "already rendered", page: lead.Page{StatusCode: 200, UsedHeadless: true}, want: false},
		{
			name: "non html",
			page: lead.Page{StatusCode: 200, Headers: http.Header{"Content-Type": {"application/pdf"}}},
			want: false,
		},
	}
	h := NewHeuristic(1000)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, h.ShouldPromote(tc.page))
		})
	}
}

func TestNewHeuristicDefaultThreshold(t *testing.T) {
	t.Parallel()

	require.Equal(t, defaultThreshold, NewHeuristic(0).BodyLengthThreshold)
	require.Equal(t, 10, NewHeuristic(10).BodyLengthThreshold)
}

func TestScriptShare(t *testing.T) {
	t.Parallel()

	require.Zero(t, scriptShare(nil))
	require.Zero(t, scriptShare([]byte("<p>plain</p>")))
	require.Equal(t, 100, scriptShare([]byte("<script src=x>")))
	require.Equal(t, 100, scriptShare([]byte("<script>never closed")))
	require.Equal(t, 50, scriptShare([]byte("<script></script>0123456789abcdefg")))
}
