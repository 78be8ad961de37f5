// Package search implements lead.SearchClient against a Serper-compatible JSON search API.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/JakeFAU/leadwatch/internal/lead"
	"github.com/JakeFAU/leadwatch/internal/resilience"
)

// Config configures the search client.
type Config struct {
	Endpoint string
	APIKey   string
	Country  string
	Language string
	Timeout  time.Duration
}

// Client calls the search API.
type Client struct {
	cfg  Config
	http *http.Client
	now  func() time.Time
}

// New creates a Client. httpClient may be nil.
func New(cfg Config, httpClient *http.Client) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://google.serper.dev"
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{cfg: cfg, http: httpClient, now: time.Now}
}

type request struct {
	Q   string `json:"q"`
	Num int    `json:"num,omitempty"`
	TBS string `json:"tbs,omitempty"`
	GL  string `json:"gl,omitempty"`
	HL  string `json:"hl,omitempty"`
}

type hit struct {
	Title    string `json:"title"`
	Link     string `json:"link"`
	Snippet  string `json:"snippet"`
	Date     string `json:"date"`
	Position int    `json:"position"`
}

type response struct {
	Organic []hit `json:"organic"`
	News    []hit `json:"news"`
}

// Search runs one query. 4xx responses other than 429 are permanent.
func (c *Client) Search(ctx context.Context, q lead.SearchQuery) ([]lead.SearchResult, error) {
	if strings.TrimSpace(q.Query) == "" {
		return nil, resilience.Permanent(fmt.Errorf("empty search query"))
	}
	body := request{Q: q.Query, Num: q.Num, GL: c.cfg.Country, HL: c.cfg.Language}
	if q.Recency != "" {
		body.TBS = "qdr:" + q.Recency
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, resilience.Permanent(fmt.Errorf("marshal search request: %w", err))
	}
	path := "/search"
	if q.News {
		path = "/news"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return nil, resilience.Permanent(fmt.Errorf("build search request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	if err := resilience.CheckStatus(resp); err != nil {
		return nil, fmt.Errorf("search %q: %w", q.Query, err)
	}
	var decoded response
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	hits := decoded.Organic
	if q.News || len(hits) == 0 {
		hits = append(hits, decoded.News...)
	}
	now := c.now().UTC()
	out := make([]lead.SearchResult, 0, len(hits))
	for i, h := range hits {
		if h.Link == "" {
			continue
		}
		pos := h.Position
		if pos == 0 {
			pos = i + 1
		}
		out = append(out, lead.SearchResult{
			Title:       strings.TrimSpace(h.Title),
			URL:         h.Link,
			Snippet:     strings.TrimSpace(h.Snippet),
			PublishedAt: ParseDate(h.Date, now),
			Position:    pos,
		})
	}
	return out, nil
}
