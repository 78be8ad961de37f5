// Package ratelimit implements per-key token bucket limits for outbound services and fetched hosts.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/leadwatch/internal/telemetry"
)

// Rule is a rate and burst for one key.
type Rule struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// Config holds rate limiter configuration.
type Config struct {
	DefaultRPS   float64
	DefaultBurst int
	// PerHostRPS applies to WaitHost keys. Zero falls back to DefaultRPS.
	PerHostRPS float64
	Overrides  map[string]Rule
}

// Limiter manages per-key rate limits.
type Limiter struct {
	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	fallback  Rule
	host      Rule
	overrides map[string]Rule
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	fallback := Rule{RPS: cfg.DefaultRPS, Burst: cfg.DefaultBurst}
	host := fallback
	if cfg.PerHostRPS > 0 {
		host.RPS = cfg.PerHostRPS
	}
	overrides := make(map[string]Rule, len(cfg.Overrides))
	for k, v := range cfg.Overrides {
		overrides[strings.ToLower(k)] = v
	}
	return &Limiter{
		limiters:  make(map[string]*rate.Limiter),
		fallback:  fallback,
		host:      host,
		overrides: overrides,
	}
}

// Wait blocks until a token is available for key, respecting the context.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		key = "unknown"
	}
	return l.wait(ctx, key, l.ruleFor(key, l.fallback))
}

// WaitHost rate limits by the hostname of rawURL.
func (l *Limiter) WaitHost(ctx context.Context, rawURL string) error {
	host := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		host = strings.ToLower(u.Hostname())
	}
	key := "host:" + host
	return l.wait(ctx, key, l.ruleFor(key, l.host))
}

func (l *Limiter) ruleFor(key string, fallback Rule) Rule {
	if r, ok := l.overrides[key]; ok {
		return r
	}
	return fallback
}

func (l *Limiter) wait(ctx context.Context, key string, rule Rule) error {
	l.mu.Lock()
	limiter, exists := l.limiters[key]
	if !exists {
		limit := rate.Limit(rule.RPS)
		if rule.RPS <= 0 {
			limit = rate.Inf
		}
		burst := rule.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(limit, burst)
		l.limiters[key] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	// An immediately available token is not a delay worth recording.
	if d := time.Since(start); d > time.Millisecond {
		telemetry.ObserveRateLimitDelay(key, d)
	}
	return nil
}
