// Package budget enforces per-client daily caps on paid outbound calls.
package budget

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/leadwatch/internal/lead"
	"github.com/JakeFAU/leadwatch/internal/resilience"
	"github.com/JakeFAU/leadwatch/internal/telemetry"
)

// Budget reserves units against a client's daily allowance.
type Budget struct {
	counter lead.QuotaCounter
	clock   lead.Clock
	logger  *zap.Logger
}

// New creates a Budget over counter.
func New(counter lead.QuotaCounter, clock lead.Clock, logger *zap.Logger) *Budget {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Budget{counter: counter, clock: clock, logger: logger.Named("budget")}
}

// Limit returns the configured daily limit for service. Zero means unlimited.
func Limit(b lead.Budgets, service string) int {
	switch service {
	case resilience.ServiceSearch:
		return b.SearchCalls
	case resilience.ServiceLLM:
		return b.LLMCalls
	case resilience.ServiceEnrichment:
		return b.EnrichmentCalls
	default:
		return 0
	}
}

// Reserve consumes n units of service for the strategy's client.
// It returns lead.ErrBudgetExhausted when the reservation would pass the limit.
func (b *Budget) Reserve(ctx context.Context, strategy lead.ClientStrategy, service string, n int) error {
	limit := Limit(strategy.Budgets, service)
	if limit <= 0 || n <= 0 {
		return nil
	}
	now := b.clock.Now().UTC()
	key := Key(strategy.ClientID, service, now)
	total, err := b.counter.Increment(ctx, key, n, endOfDay(now))
	if err != nil {
		return fmt.Errorf("reserve %s budget: %w", service, err)
	}
	if total > limit {
		if err := b.counter.Decrement(ctx, key, n); err != nil {
			b.logger.Warn("release over-limit reservation", zap.String("key", key), zap.Error(err))
		}
		telemetry.ObserveBudgetExhausted(strategy.ClientID, service)
		return fmt.Errorf("%s for client %s: %w", service, strategy.ClientID, lead.ErrBudgetExhausted)
	}
	return nil
}

// Key is the counter key for a client, service and UTC day.
func Key(clientID, service string, now time.Time) string {
	return fmt.Sprintf("%s:%s:%s", clientID, service, now.UTC().Format(time.DateOnly))
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
}
