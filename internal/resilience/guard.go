// Package resilience wraps outbound calls with retry-with-backoff and a circuit breaker.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	cb "github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadwatch/internal/telemetry"
)

// ErrCircuitOpen is returned when the breaker rejects a call without trying it.
var ErrCircuitOpen = errors.New("circuit open")

// Outbound service names used as guard and limiter keys.
const (
	ServiceSearch     = "search"
	ServiceFetch      = "fetch"
	ServiceLLM        = "llm"
	ServiceEnrichment = "enrichment"
)

// BreakerConfig tunes the circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold uint32
	// MaxRequests is the number of probes admitted while half-open.
	MaxRequests uint32
	// Interval clears the closed-state counts periodically. Zero never clears.
	Interval time.Duration
	// Timeout is how long the breaker stays open before going half-open.
	Timeout time.Duration
}

// RetryConfig tunes the exponential backoff.
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// Config combines breaker and retry settings.
type Config struct {
	Breaker BreakerConfig
	Retry   RetryConfig
}

func (c Config) withDefaults() Config {
	if c.Breaker.FailureThreshold == 0 {
		c.Breaker.FailureThreshold = 5
	}
	if c.Breaker.MaxRequests == 0 {
		c.Breaker.MaxRequests = 1
	}
	if c.Breaker.Timeout <= 0 {
		c.Breaker.Timeout = 30 * time.Second
	}
	if c.Retry.MaxRetries < 0 {
		c.Retry.MaxRetries = 0
	}
	if c.Retry.InitialInterval <= 0 {
		c.Retry.InitialInterval = 250 * time.Millisecond
	}
	if c.Retry.MaxInterval <= 0 {
		c.Retry.MaxInterval = 5 * time.Second
	}
	if c.Retry.Multiplier < 1 {
		c.Retry.Multiplier = 2
	}
	return c
}

// Guard protects a single outbound service.
type Guard struct {
	name    string
	cfg     Config
	breaker *cb.CircuitBreaker
	logger  *zap.Logger
}

// NewGuard builds a Guard named after the service it protects.
func NewGuard(name string, cfg Config, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	g := &Guard{name: name, cfg: cfg, logger: logger.Named("resilience").With(zap.String("service", name))}
	g.breaker = cb.NewCircuitBreaker(cb.Settings{
		Name:        name,
		MaxRequests: cfg.Breaker.MaxRequests,
		Interval:    cfg.Breaker.Interval,
		Timeout:     cfg.Breaker.Timeout,
		ReadyToTrip: func(counts cb.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.Breaker.FailureThreshold
		},
		OnStateChange: func(name string, from, to cb.State) {
			g.logger.Warn("circuit breaker state change",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			telemetry.ObserveBreakerState(name, to.String())
		},
		IsSuccessful: isSuccessful,
	})
	telemetry.ObserveBreakerState(name, cb.StateClosed.String())
	return g
}

// Name returns the protected service name.
func (g *Guard) Name() string {
	return g.name
}

// State reports "closed", "half-open" or "open".
func (g *Guard) State() string {
	return g.breaker.State().String()
}

// Do runs op with retries. Every attempt passes through the breaker.
// Retries stop on success, permanent errors, an open breaker or context cancellation.
func (g *Guard) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempt := 0
	operation := func() error {
		attempt++
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		_, err := g.breaker.Execute(func() (interface{}, error) {
			return nil, op(ctx)
		})
		switch {
		case err == nil:
			return nil
		case errors.Is(err, cb.ErrOpenState), errors.Is(err, cb.ErrTooManyRequests):
			return backoff.Permanent(fmt.Errorf("%s: %w", g.name, ErrCircuitOpen))
		case ctx.Err() != nil:
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		g.logger.Debug("retrying outbound call",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(g.newBackOff(), ctx), notify)
	if err != nil {
		return fmt.Errorf("%s call failed after %d attempt(s): %w", g.name, attempt, err)
	}
	return nil
}

func (g *Guard) newBackOff() backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = g.cfg.Retry.InitialInterval
	exp.MaxInterval = g.cfg.Retry.MaxInterval
	exp.Multiplier = g.cfg.Retry.Multiplier
	exp.MaxElapsedTime = 0
	exp.Reset()
	return backoff.WithMaxRetries(exp, uint64(g.cfg.Retry.MaxRetries))
}

// Permanent marks err as not worth retrying. It also keeps the breaker closed,
// since the remote service answered.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var perm *backoff.PermanentError
	return errors.As(err, &perm)
}

func isSuccessful(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	return IsPermanent(err)
}

// Registry hands out one Guard per service name.
type Registry struct {
	mu        sync.Mutex
	guards    map[string]*Guard
	defaults  Config
	overrides map[string]Config
	logger    *zap.Logger
}

// NewRegistry creates a Registry. Services missing from overrides use defaults.
func NewRegistry(defaults Config, overrides map[string]Config, logger *zap.Logger) *Registry {
	return &Registry{
		guards:    make(map[string]*Guard),
		defaults:  defaults,
		overrides: overrides,
		logger:    logger,
	}
}

// Get returns the guard for service, creating it on first use.
func (r *Registry) Get(service string) *Guard {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.guards[service]; ok {
		return g
	}
	cfg := r.defaults
	if o, ok := r.overrides[service]; ok {
		cfg = o
	}
	g := NewGuard(service, cfg, r.logger)
	r.guards[service] = g
	return g
}

// States snapshots the breaker state of every guard created so far.
func (r *Registry) States() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.guards))
	for name, g := range r.guards {
		out[name] = g.State()
	}
	return out
}
