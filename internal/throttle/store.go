// Package throttle defines the counter store contract.
package throttle

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
)

// Store is the shared atomic counter store backing all throttles. Get
// returns (nil, nil) when the key is absent. IncrBy must apply the delta and
// the expiry together.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)
}

// BreakerStore wraps a Store with a circuit breaker so a flapping backend
// trips fast instead of timing out on every request.
type BreakerStore struct {
	store   Store
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerStore wraps store with a breaker named name.
func NewBreakerStore(name string, store Store) *BreakerStore {
	settings := gobreaker.Settings{
		Name:    name,
		Timeout: 5 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &BreakerStore{
		store:   store,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Get reads a key through the breaker.
func (s *BreakerStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.breaker.Execute(func() (any, error) {
		return s.store.Get(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, nil
	}
	return value.([]byte), nil
}

// Set writes a key through the breaker.
func (s *BreakerStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := s.breaker.Execute(func() (any, error) {
		return nil, s.store.Set(ctx, key, value, ttl)
	})
	return err
}

// IncrBy increments a key through the breaker.
func (s *BreakerStore) IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	value, err := s.breaker.Execute(func() (any, error) {
		return s.store.IncrBy(ctx, key, delta, ttl)
	})
	if err != nil {
		return 0, err
	}
	return value.(int64), nil
}
