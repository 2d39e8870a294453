// Package throttle provides the HTTP admission middleware.
package throttle

import (
	"encoding/json"
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// IdentityFunc extracts the request identity from transport details. The
// engine core never parses cookies or proxy chains itself.
type IdentityFunc func(*http.Request) Identity

// MiddlewareConfig wires the admission gates into an HTTP handler chain.
type MiddlewareConfig struct {
	Chain    *Chain
	Meter    *UsageMeter
	Identify IdentityFunc
	Logger   zerolog.Logger
}

// Middleware returns an http.Handler wrapper that admits, throttles, or
// rejects each request and attaches quota headers either way.
func Middleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	if cfg.Identify == nil {
		cfg.Identify = HeaderIdentity
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", requestID)

			id := cfg.Identify(r)
			decision, err := cfg.Chain.Allow(r.Context(), id)
			if err != nil {
				writeRejection(w, cfg.Logger, requestID, err)
				return
			}
			if cfg.Meter != nil {
				if _, meterErr := cfg.Meter.Check(r.Context(), id); meterErr != nil {
					writeRejection(w, cfg.Logger, requestID, meterErr)
					return
				}
			}
			setRateHeaders(w, decision)
			next.ServeHTTP(w, r)
		})
	}
}

func writeRejection(w http.ResponseWriter, logger zerolog.Logger, requestID string, err error) {
	var throttled *ThrottledError
	var secondary *SecondaryLimitError
	var unavailable *StoreUnavailableError

	switch {
	case errors.As(err, &throttled):
		setRateHeaders(w, throttled.Decision)
		logger.Info().Str("request_id", requestID).Str("scope", throttled.Decision.Scope).Msg("request throttled")
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":       "rate limit exceeded",
			"scope":       throttled.Decision.Scope,
			"retry_after": throttled.Decision.RetryAfter.Seconds(),
		})
	case errors.As(err, &secondary):
		setRateHeaders(w, secondary.Decision)
		logger.Info().Str("request_id", requestID).Str("scope", secondary.Scope).Msg("usage budget exceeded")
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error": "usage budget exceeded",
			"scope": secondary.Scope,
			"used":  secondary.Used,
			"cap":   secondary.Cap,
		})
	case errors.As(err, &unavailable):
		logger.Error().Str("request_id", requestID).Str("scope", unavailable.Scope).Err(err).Msg("admission degraded")
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error": "service degraded",
			"scope": unavailable.Scope,
		})
	default:
		logger.Error().Str("request_id", requestID).Err(err).Msg("admission check failed")
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": "internal error",
		})
	}
}

func setRateHeaders(w http.ResponseWriter, d *Decision) {
	if d == nil {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(d.Limit, 10))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))
	if !d.Allowed && d.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.FormatInt(int64(math.Ceil(d.RetryAfter.Seconds())), 10))
	}
}

func writeJSON(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// HeaderIdentity derives the identity from X-User-ID and X-Tenant-ID headers
// plus the client IP. Real deployments substitute their own extraction;
// this default serves the demo server and tests.
func HeaderIdentity(r *http.Request) Identity {
	return Identity{
		UserID:   r.Header.Get("X-User-ID"),
		TenantID: r.Header.Get("X-Tenant-ID"),
		IP:       ClientIP(r),
	}
}

// ClientIP resolves the client address, preferring the first valid hop of
// X-Forwarded-For over the socket peer.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, part := range strings.Split(xff, ",") {
			if ip := normalizeIP(strings.TrimSpace(part)); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return normalizeIP(host)
}

func normalizeIP(raw string) string {
	if i := strings.IndexByte(raw, '%'); i >= 0 {
		raw = raw[:i]
	}
	ip := net.ParseIP(raw)
	if ip == nil {
		return ""
	}
	if v4 := ip.To4(); v4 != nil {
		return v4.String()
	}
	return ip.String()
}
