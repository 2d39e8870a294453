// Package throttle defines core identity and decision models.
package throttle

import (
	"context"
	"time"
)

// Identity describes who is making a request. Exactly one of UserID or IP
// acts as the primary key axis per throttle; TenantID is an optional
// secondary axis. Constructed once per inbound request and read-only.
type Identity struct {
	UserID   string
	TenantID string
	IP       string
}

// Decision reports the outcome of a single throttle evaluation.
type Decision struct {
	Allowed    bool
	Scope      string
	Limit      int64
	Remaining  int64
	Reset      time.Time
	RetryAfter time.Duration
}

// FailurePolicy controls behavior when the counter store is unreachable.
type FailurePolicy int

const (
	// FailOpen logs the outage and admits the request.
	FailOpen FailurePolicy = iota
	// FailClosed rejects with a distinct degraded-service error.
	FailClosed
)

// KeyMode selects the identity axis used to derive throttle keys.
type KeyMode int

const (
	// KeyByIdentity keys by user id when present, otherwise by IP.
	KeyByIdentity KeyMode = iota
	// KeyByIP always keys by IP, even for authenticated requests.
	KeyByIP
	// KeyByTenant keys by tenant id only.
	KeyByTenant
)

// Throttle decides whether a request identified by id is admitted.
type Throttle interface {
	Allow(ctx context.Context, id Identity) (*Decision, error)
	Scope() string
}
