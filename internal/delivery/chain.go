package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/clienthq/followup-engine/internal/pkg/logger"
)

const backoffBase = 500 * time.Millisecond

// Chain walks an ordered list of providers. Each provider gets up to
// MaxAttempts tries with exponential backoff before the chain moves to
// the next one. The first accepted send wins.
type Chain struct {
	providers      []Provider
	maxAttempts    int
	attemptTimeout time.Duration

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewChain builds a chain over the given providers in priority order.
func NewChain(providers []Provider, maxAttempts int, attemptTimeout time.Duration) *Chain {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if attemptTimeout <= 0 {
		attemptTimeout = 10 * time.Second
	}
	return &Chain{
		providers:      providers,
		maxAttempts:    maxAttempts,
		attemptTimeout: attemptTimeout,
		sleep:          sleepCtx,
	}
}

// Send walks the chain. The returned result is never nil; on total
// exhaustion Success is false and Err carries the last provider error.
func (c *Chain) Send(ctx context.Context, msg *Message) *Result {
	if len(c.providers) == 0 {
		return &Result{Err: fmt.Errorf("no delivery providers configured")}
	}

	result := &Result{}
	for _, p := range c.providers {
		for attempt := 1; attempt <= c.maxAttempts; attempt++ {
			result.Attempts++

			attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
			pr, err := p.Send(attemptCtx, msg)
			cancel()

			if err == nil {
				result.Success = true
				result.ProviderUsed = p.Name()
				if pr != nil {
					result.MessageID = pr.MessageID
				}
				return result
			}
			result.Err = err
			logger.Warn("delivery attempt failed",
				"provider", p.Name(),
				"attempt", attempt,
				"recipient", msg.To,
				"error", err.Error())

			if ctx.Err() != nil {
				result.Err = ctx.Err()
				return result
			}
			if attempt < c.maxAttempts {
				if err := c.sleep(ctx, backoffBase*(1<<(attempt-1))); err != nil {
					result.Err = err
					return result
				}
			}
		}
	}
	return result
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
