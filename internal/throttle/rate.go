// Package throttle provides rate expression parsing.
package throttle

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Rate is a parsed rate expression: Count requests per Window.
type Rate struct {
	Count  int64
	Window time.Duration
}

var rateUnits = map[string]time.Duration{
	"second": time.Second,
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
}

// ParseRate parses expressions of the form "<positive int>/<unit>" where
// unit is second, minute, hour, or day (plurals accepted).
func ParseRate(spec string) (Rate, error) {
	parts := strings.SplitN(spec, "/", 2)
	if len(parts) != 2 {
		return Rate{}, fmt.Errorf("%w: %q is not of the form N/unit", ErrInvalidRateSpec, spec)
	}
	count, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return Rate{}, fmt.Errorf("%w: %q has a non-integer count", ErrInvalidRateSpec, spec)
	}
	if count <= 0 {
		return Rate{}, fmt.Errorf("%w: %q has a non-positive count", ErrInvalidRateSpec, spec)
	}
	unit := strings.TrimSpace(strings.ToLower(parts[1]))
	unit = strings.TrimSuffix(unit, "s")
	window, ok := rateUnits[unit]
	if !ok {
		return Rate{}, fmt.Errorf("%w: %q has an unknown unit", ErrInvalidRateSpec, spec)
	}
	return Rate{Count: count, Window: window}, nil
}

// MustParseRate parses spec and panics on error. For fixed defaults only.
func MustParseRate(spec string) Rate {
	rate, err := ParseRate(spec)
	if err != nil {
		panic(err)
	}
	return rate
}

// String renders the rate back in N/unit form.
func (r Rate) String() string {
	for unit, window := range rateUnits {
		if window == r.Window {
			return fmt.Sprintf("%d/%s", r.Count, unit)
		}
	}
	return fmt.Sprintf("%d per %s", r.Count, r.Window)
}

// PerSecond reports the sustained fill rate in units per second.
func (r Rate) PerSecond() float64 {
	if r.Window <= 0 {
		return 0
	}
	return float64(r.Count) / r.Window.Seconds()
}
