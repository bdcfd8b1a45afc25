package querier

import (
	"net"
	"time"

	mdnserrors "github.com/beacon-mdns/beacon/internal/errors"
)

// Option configures a Querier at construction time.
type Option func(*Querier) error

// WithTimeout sets the default timeout applied to GetServiceInfo and
// EnumerateServices calls that don't carry their own context deadline.
func WithTimeout(d time.Duration) Option {
	return func(q *Querier) error {
		if d <= 0 {
			return &mdnserrors.ValidationError{Field: "timeout", Value: d, Message: "must be positive"}
		}
		q.defaultTimeout = d
		return nil
	}
}

// WithInterfaces restricts the Querier to ifaces instead of
// network.DefaultInterfaces().
func WithInterfaces(ifaces []net.Interface) Option {
	return func(q *Querier) error {
		if len(ifaces) == 0 {
			return &mdnserrors.ValidationError{Field: "interfaces", Message: "must not be empty"}
		}
		q.ifaces = ifaces
		return nil
	}
}

// WithInterfaceFilter narrows network.DefaultInterfaces() to those passing
// keep; ignored if WithInterfaces was also given.
func WithInterfaceFilter(keep func(net.Interface) bool) Option {
	return func(q *Querier) error {
		q.ifaceFilter = keep
		return nil
	}
}

// WithRateLimit enables or disables the engine's per-source query rate
// limiter (enabled by default).
func WithRateLimit(enabled bool) Option {
	return func(q *Querier) error {
		q.rateLimitEnabled = &enabled
		return nil
	}
}

// WithRateLimitThreshold sets the allowed queries per window per source IP.
func WithRateLimitThreshold(threshold int) Option {
	return func(q *Querier) error {
		q.rateLimitThreshold = threshold
		return nil
	}
}

// WithRateLimitCooldown sets how long an over-threshold source is dropped.
func WithRateLimitCooldown(cooldown time.Duration) Option {
	return func(q *Querier) error {
		q.rateLimitCooldown = cooldown
		return nil
	}
}
