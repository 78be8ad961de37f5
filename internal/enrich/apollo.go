// Package enrich finds decision makers and their email addresses.
package enrich

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

// Contact sources.
const (
	SourceApollo        = "apollo"
	SourceAnymailfinder = "anymailfinder"
)

// ApolloConfig configures the Apollo people-search client.
type ApolloConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// Apollo searches people by company domain and job title.
type Apollo struct {
	cfg  ApolloConfig
	http *http.Client
}

// NewApollo creates an Apollo client. httpClient may be nil.
func NewApollo(cfg ApolloConfig, httpClient *http.Client) *Apollo {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.apollo.io/api/v1"
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	return &Apollo{cfg: cfg, http: defaultClient(httpClient, cfg.Timeout)}
}

type apolloRequest struct {
	Domains []string `json:"q_organization_domains_list"`
	Titles  []string `json:"person_titles,omitempty"`
	Page    int      `json:"page"`
	PerPage int      `json:"per_page"`
}

type apolloPerson struct {
	Name        string `json:"name"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Title       string `json:"title"`
	Email       string `json:"email"`
	EmailStatus string `json:"email_status"`
	LinkedInURL string `json:"linkedin_url"`
}

type apolloResponse struct {
	People []apolloPerson `json:"people"`
}

// SearchPeople returns up to limit people at domain holding one of titles.
func (a *Apollo) SearchPeople(ctx context.Context, domain string, titles []string, limit int) ([]lead.Contact, error) {
	if domain == "" {
		return nil, resilience.Permanent(fmt.Errorf("apollo search needs a domain"))
	}
	if limit <= 0 {
		limit = 5
	}
	payload, err := json.Marshal(apolloRequest{Domains: []string{domain}, Titles: titles, Page: 1, PerPage: limit})
	if err != nil {
		return nil, resilience.Permanent(fmt.Errorf("marshal apollo request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.Endpoint+"/mixed_people/search", bytes.NewReader(payload))
	if err != nil {
		return nil, resilience.Permanent(fmt.Errorf("build apollo request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("X-Api-Key", a.cfg.APIKey)

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("apollo request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	if err := resilience.CheckStatus(resp); err != nil {
		return nil, fmt.Errorf("apollo search %s: %w", domain, err)
	}
	var decoded apolloResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode apollo response: %w", err)
	}

	out := make([]lead.Contact, 0, len(decoded.People))
	for _, p := range decoded.People {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			name = strings.TrimSpace(p.FirstName + " " + p.LastName)
		}
		if name == "" {
			continue
		}
		email := p.Email
		// Apollo returns a placeholder for emails that are not unlocked.
		if strings.HasPrefix(email, "email_not_unlocked") {
			email = ""
		}
		out = append(out, lead.Contact{
			FullName:    name,
			FirstName:   p.FirstName,
			LastName:    p.LastName,
			Title:       p.Title,
			Email:       email,
			EmailStatus: p.EmailStatus,
			LinkedInURL: p.LinkedInURL,
			Source:      SourceApollo,
		})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func defaultClient(c *http.Client, timeout time.Duration) *http.Client {
	if c != nil {
		return c
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
