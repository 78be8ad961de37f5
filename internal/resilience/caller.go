package resilience

import (
	"context"
	"time"

	"github.com/JakeFAU/leadwatch/internal/telemetry"
)

// Waiter blocks until a call for key may proceed.
type Waiter interface {
	Wait(ctx context.Context, key string) error
}

// Caller combines a guard registry with a rate limiter. Every attempt waits
// for a limiter token before it reaches the breaker-protected operation.
type Caller struct {
	guards  *Registry
	limiter Waiter
}

// NewCaller builds a Caller. limiter may be nil.
func NewCaller(guards *Registry, limiter Waiter) *Caller {
	return &Caller{guards: guards, limiter: limiter}
}

// Call runs op against service with rate limiting, breaker and retries.
func (c *Caller) Call(ctx context.Context, service string, op func(ctx context.Context) error) error {
	start := time.Now()
	err := c.guards.Get(service).Do(ctx, func(ctx context.Context) error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx, service); err != nil {
				return Permanent(err)
			}
		}
		return op(ctx)
	})
	telemetry.ObserveExternalCall(service, err, time.Since(start))
	return err
}
