package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/JakeFAU/leadwatch/internal/resilience"
)

// AnymailfinderConfig configures the email lookup client.
type AnymailfinderConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// Anymailfinder finds a person's email from their name and company domain.
type Anymailfinder struct {
	cfg  AnymailfinderConfig
	http *http.Client
}

// NewAnymailfinder creates a client. httpClient may be nil.
func NewAnymailfinder(cfg AnymailfinderConfig, httpClient *http.Client) *Anymailfinder {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.anymailfinder.com/v5.0"
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	return &Anymailfinder{cfg: cfg, http: defaultClient(httpClient, cfg.Timeout)}
}

type anymailRequest struct {
	Domain   string `json:"domain"`
	FullName string `json:"full_name"`
}

type anymailResponse struct {
	Success bool `json:"success"`
	Results struct {
		Email      string `json:"email"`
		Validation string `json:"validation"`
	} `json:"results"`
}

// FindEmail returns the email and its validation status. An empty email
// with a nil error means no address was found.
func (a *Anymailfinder) FindEmail(ctx context.Context, domain, fullName string) (string, string, error) {
	if domain == "" || strings.TrimSpace(fullName) == "" {
		return "", "", resilience.Permanent(fmt.Errorf("email lookup needs domain and name"))
	}
	payload, err := json.Marshal(anymailRequest{Domain: domain, FullName: fullName})
	if err != nil {
		return "", "", resilience.Permanent(fmt.Errorf("marshal email lookup: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.Endpoint+"/search/person.json", bytes.NewReader(payload))
	if err != nil {
		return "", "", resilience.Permanent(fmt.Errorf("build email lookup: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)

	resp, err := a.http.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("email lookup request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	if resp.StatusCode == http.StatusNotFound {
		return "", "", nil
	}
	if err := resilience.CheckStatus(resp); err != nil {
		return "", "", fmt.Errorf("email lookup %s: %w", domain, err)
	}
	var decoded anymailResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", "", fmt.Errorf("decode email lookup: %w", err)
	}
	if !decoded.Success {
		return "", "", nil
	}
	return strings.TrimSpace(decoded.Results.Email), decoded.Results.Validation, nil
}
