// Package throttle provides throttle composition.
package throttle

import (
	"context"
)

// Chain evaluates throttles in order. The first rejection short-circuits;
// when every throttle admits, the most restrictive decision (fewest
// remaining units) is returned so callers report honest quota headers.
type Chain struct {
	throttles []Throttle
}

// NewChain composes throttles. Order matters: put cheap, broad gates first.
func NewChain(throttles ...Throttle) *Chain {
	return &Chain{throttles: throttles}
}

// Allow evaluates the chain for one request. Rejections are returned as a
// ThrottledError carrying the deciding throttle's Decision; a fail-closed
// store outage surfaces as a StoreUnavailableError instead.
func (c *Chain) Allow(ctx context.Context, id Identity) (*Decision, error) {
	var tightest *Decision
	for _, throttle := range c.throttles {
		decision, err := throttle.Allow(ctx, id)
		if err != nil {
			return nil, err
		}
		if !decision.Allowed {
			return decision, &ThrottledError{Decision: decision}
		}
		if tightest == nil || decision.Remaining < tightest.Remaining {
			tightest = decision
		}
	}
	if tightest == nil {
		tightest = &Decision{Allowed: true}
	}
	return tightest, nil
}
