// Package responder provides the publish side of the mDNS/DNS-SD public
// API: registering service instances and service types, and defending
// them against naming conflicts per RFC 6762 §8/§9.
//
// Example:
//
//	r, err := responder.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
//
//	qualified, err := r.Register(&responder.Service{
//	    InstanceName: "Kitchen Printer",
//	    ServiceType:  "_printer._tcp",
//	    Port:         631,
//	    TXT:          map[string]string{"rp": "queue1"},
//	})
package responder

import (
	"context"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/beacon-mdns/beacon/internal/engine"
	mdnserrors "github.com/beacon-mdns/beacon/internal/errors"
	"github.com/beacon-mdns/beacon/internal/host"
	"github.com/beacon-mdns/beacon/internal/network"
)

// Responder publishes mDNS/DNS-SD services. It owns one engine and the
// sockets that go with it; create one per process.
type Responder struct {
	engine *engine.Engine

	hostname    string
	ifaces      []net.Interface
	ifaceFilter func(net.Interface) bool

	rateLimitEnabled   *bool
	rateLimitThreshold int
	rateLimitCooldown  time.Duration

	primaryIfaceIndex int

	mu        sync.Mutex
	qualified []string // names registered through this Responder, for UnregisterAll
}

// New creates a Responder bound to network.DefaultInterfaces() unless
// WithInterfaces or WithInterfaceFilter narrows the set, and to
// os.Hostname() unless WithHostname overrides it.
func New(opts ...Option) (*Responder, error) {
	r := &Responder{}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}

	if r.hostname == "" {
		h, err := os.Hostname()
		if err != nil {
			h = "localhost"
		}
		r.hostname = h
	}

	ifaces := r.ifaces
	if ifaces == nil {
		all, err := network.DefaultInterfaces()
		if err != nil {
			return nil, err
		}
		if r.ifaceFilter != nil {
			for _, iface := range all {
				if r.ifaceFilter(iface) {
					ifaces = append(ifaces, iface)
				}
			}
		} else {
			ifaces = all
		}
	}
	if len(ifaces) == 0 {
		return nil, &mdnserrors.ValidationError{Field: "interfaces", Message: "no usable network interfaces found"}
	}
	r.primaryIfaceIndex = ifaces[0].Index

	var engineOpts []engine.Option
	if r.rateLimitEnabled != nil {
		engineOpts = append(engineOpts, engine.WithRateLimit(*r.rateLimitEnabled))
	}
	if r.rateLimitThreshold > 0 {
		engineOpts = append(engineOpts, engine.WithRateLimitThreshold(r.rateLimitThreshold))
	}
	if r.rateLimitCooldown > 0 {
		engineOpts = append(engineOpts, engine.WithRateLimitCooldown(r.rateLimitCooldown))
	}

	e, err := engine.New(r.hostname, ifaces, engineOpts...)
	if err != nil {
		return nil, err
	}
	r.engine = e
	e.Start(context.Background())

	return r, nil
}

// Register validates and publishes svc, starting the probe/announce
// sequence per RFC 6762 §8. It returns the fully-qualified instance name
// ("<instance>.<type>.local.") once registration is accepted. A later
// conflict-driven rename changes the name announced on the network but not
// this returned value, which remains the name Unregister accepts.
func (r *Responder) Register(svc *Service) (string, error) {
	if svc == nil {
		return "", &mdnserrors.ValidationError{Field: "service", Message: "must not be nil"}
	}
	if err := svc.Validate(); err != nil {
		return "", err
	}

	hd, ok := r.engine.HostDescriptor(r.primaryIfaceIndex)
	if !ok {
		return "", &mdnserrors.ValidationError{Field: "interface", Message: "no host identity bound for the primary interface"}
	}

	descriptor := &host.ServiceDescriptor{
		InstanceName:   svc.InstanceName,
		ServiceType:    svc.ServiceType,
		Domain:         "local",
		Port:           svc.Port,
		Host:           hd,
		TXT:            svc.TXT,
		InterfaceIndex: r.primaryIfaceIndex,
	}
	if err := r.engine.Register(descriptor); err != nil {
		return "", err
	}

	qualified := descriptor.QualifiedName()
	r.mu.Lock()
	r.qualified = append(r.qualified, qualified)
	r.mu.Unlock()

	return qualified, nil
}

// RegisterType advertises serviceType for DNS-SD enumeration (RFC 6763 §9)
// without publishing a concrete instance.
func (r *Responder) RegisterType(serviceType string) error {
	return r.engine.RegisterType(strings.TrimSuffix(serviceType, "."))
}

// UnregisterType withdraws a type registered via RegisterType.
func (r *Responder) UnregisterType(serviceType string) {
	r.engine.UnregisterType(strings.TrimSuffix(serviceType, "."))
}

// Unregister withdraws a previously registered service, sending goodbye
// (TTL=0) records per RFC 6762 §10.1.
func (r *Responder) Unregister(qualifiedName string) error {
	if err := r.engine.Unregister(qualifiedName); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, name := range r.qualified {
		if name == qualifiedName {
			r.qualified = append(r.qualified[:i], r.qualified[i+1:]...)
			break
		}
	}
	return nil
}

// UnregisterAll withdraws every service registered through this Responder.
func (r *Responder) UnregisterAll() error {
	r.mu.Lock()
	names := append([]string(nil), r.qualified...)
	r.mu.Unlock()

	var firstErr error
	for _, name := range names {
		if err := r.Unregister(name); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close unregisters every published service and releases the Responder's
// sockets.
func (r *Responder) Close() error {
	_ = r.UnregisterAll()
	return r.engine.Close()
}
