package throttle

import (
	"context"
	"errors"
	"time"
)

// fakeClock drives throttle time in tests.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}

// failingStore fails every operation, simulating a store outage.
type failingStore struct{}

var errStoreDown = errors.New("store down")

func (failingStore) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, errStoreDown
}

func (failingStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return errStoreDown
}

func (failingStore) IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	return 0, errStoreDown
}
