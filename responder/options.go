package responder

import (
	"net"
	"time"

	mdnserrors "github.com/beacon-mdns/beacon/internal/errors"
)

// Option configures a Responder at construction time.
type Option func(*Responder) error

// WithHostname sets the short hostname (without ".local") this responder
// answers A/AAAA queries for. Defaults to os.Hostname().
func WithHostname(hostname string) Option {
	return func(r *Responder) error {
		if hostname == "" {
			return &mdnserrors.ValidationError{Field: "hostname", Message: "must not be empty"}
		}
		r.hostname = hostname
		return nil
	}
}

// WithInterfaces restricts the Responder to ifaces instead of
// network.DefaultInterfaces().
func WithInterfaces(ifaces []net.Interface) Option {
	return func(r *Responder) error {
		if len(ifaces) == 0 {
			return &mdnserrors.ValidationError{Field: "interfaces", Message: "must not be empty"}
		}
		r.ifaces = ifaces
		return nil
	}
}

// WithInterfaceFilter narrows network.DefaultInterfaces() to those passing
// keep; ignored if WithInterfaces was also given.
func WithInterfaceFilter(keep func(net.Interface) bool) Option {
	return func(r *Responder) error {
		r.ifaceFilter = keep
		return nil
	}
}

// WithRateLimit enables or disables the engine's per-source query rate
// limiter (enabled by default).
func WithRateLimit(enabled bool) Option {
	return func(r *Responder) error {
		r.rateLimitEnabled = &enabled
		return nil
	}
}

// WithRateLimitThreshold sets the allowed queries per window per source IP.
func WithRateLimitThreshold(threshold int) Option {
	return func(r *Responder) error {
		r.rateLimitThreshold = threshold
		return nil
	}
}

// WithRateLimitCooldown sets how long an over-threshold source is dropped.
func WithRateLimitCooldown(cooldown time.Duration) Option {
	return func(r *Responder) error {
		r.rateLimitCooldown = cooldown
		return nil
	}
}
