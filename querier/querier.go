// Package querier provides the discovery side of the mDNS/DNS-SD public
// API: browsing for service types, resolving instances of a type, and
// looking up one instance's full SRV/TXT/address record set.
//
// Example:
//
//	q, err := querier.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer q.Close()
//
//	cancel := q.AddServiceListener("_http._tcp", func(info querier.ServiceInfo, kind querier.ChangeKind) {
//	    fmt.Printf("%s: %+v\n", kind, info)
//	})
//	defer cancel()
package querier

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	mdnserrors "github.com/beacon-mdns/beacon/internal/errors"
	"github.com/beacon-mdns/beacon/internal/engine"
	"github.com/beacon-mdns/beacon/internal/network"
	"github.com/beacon-mdns/beacon/internal/protocol"
	"github.com/beacon-mdns/beacon/internal/records"
)

// servicesTypeEnumerationName is the well-known PTR query name for DNS-SD
// service-type enumeration per RFC 6763 §9.
const servicesTypeEnumerationName = "_services._dns-sd._udp.local."

// Querier browses and resolves mDNS/DNS-SD services. It owns one engine
// and the sockets that go with it; create one per process.
type Querier struct {
	engine *engine.Engine

	defaultTimeout time.Duration

	ifaces      []net.Interface
	ifaceFilter func(net.Interface) bool

	rateLimitEnabled   *bool
	rateLimitThreshold int
	rateLimitCooldown  time.Duration
}

// New creates a Querier bound to network.DefaultInterfaces() unless
// WithInterfaces or WithInterfaceFilter narrows the set.
func New(opts ...Option) (*Querier, error) {
	q := &Querier{defaultTimeout: time.Second}
	for _, opt := range opts {
		if err := opt(q); err != nil {
			return nil, err
		}
	}

	ifaces := q.ifaces
	if ifaces == nil {
		all, err := network.DefaultInterfaces()
		if err != nil {
			return nil, err
		}
		if q.ifaceFilter != nil {
			ifaces = ifaces[:0]
			for _, iface := range all {
				if q.ifaceFilter(iface) {
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

	var engineOpts []engine.Option
	if q.rateLimitEnabled != nil {
		engineOpts = append(engineOpts, engine.WithRateLimit(*q.rateLimitEnabled))
	}
	if q.rateLimitThreshold > 0 {
		engineOpts = append(engineOpts, engine.WithRateLimitThreshold(q.rateLimitThreshold))
	}
	if q.rateLimitCooldown > 0 {
		engineOpts = append(engineOpts, engine.WithRateLimitCooldown(q.rateLimitCooldown))
	}

	e, err := engine.New("beacon-querier", ifaces, engineOpts...)
	if err != nil {
		return nil, err
	}
	q.engine = e
	e.Start(context.Background())

	return q, nil
}

// Close stops the Querier's background receive loops and releases its
// sockets.
func (q *Querier) Close() error {
	return q.engine.Close()
}

// AddServiceTypeListener calls fn whenever a new service type is observed
// on the network via DNS-SD service-type enumeration (RFC 6763 §9). It
// sends an enumeration query immediately so existing types are discovered.
// The returned func cancels the listener.
func (q *Querier) AddServiceTypeListener(fn func(serviceType string, kind ChangeKind)) func() {
	var removed int32
	q.engine.Cache().AddListener(servicesTypeEnumerationName, uint16(protocol.TypePTR), func(r *records.Record, kind records.ChangeKind) {
		if atomic.LoadInt32(&removed) != 0 || r.Pointer == nil {
			return
		}
		fn(r.Pointer.Target, kind)
	})
	_ = q.engine.QueryResolve(context.Background(), servicesTypeEnumerationName, protocol.TypePTR)
	return func() { atomic.StoreInt32(&removed, 1) }
}

// AddServiceListener calls fn whenever an instance of serviceType (e.g.
// "_http._tcp") is added, updated, or removed. It sends a PTR query
// immediately so existing instances are discovered. The returned func
// cancels the listener.
func (q *Querier) AddServiceListener(serviceType string, fn func(info ServiceInfo, kind ChangeKind)) func() {
	typeName := serviceType + ".local."
	var removed int32
	q.engine.Cache().AddListener(typeName, uint16(protocol.TypePTR), func(r *records.Record, kind records.ChangeKind) {
		if atomic.LoadInt32(&removed) != 0 || r.Pointer == nil {
			return
		}
		info := buildServiceInfo(q.engine.Cache(), r.Pointer.Target)
		fn(*info, kind)
	})
	_ = q.engine.QueryResolve(context.Background(), typeName, protocol.TypePTR)
	return func() { atomic.StoreInt32(&removed, 1) }
}

// GetServiceInfo resolves qualifiedName ("<instance>.<type>.<domain>."),
// querying the network and waiting for ctx's deadline (or the Querier's
// default timeout, if ctx carries none) before giving up. Per a timeout
// with nothing resolved, it returns a nil ServiceInfo and a nil error.
func (q *Querier) GetServiceInfo(ctx context.Context, qualifiedName string) (*ServiceInfo, error) {
	ctx, cancel := q.withDefaultTimeout(ctx)
	defer cancel()

	resolved := make(chan struct{}, 1)
	var removed int32
	cancelListener := func() { atomic.StoreInt32(&removed, 1) }
	q.engine.Cache().AddListener(qualifiedName, 0, func(*records.Record, records.ChangeKind) {
		if atomic.LoadInt32(&removed) != 0 {
			return
		}
		select {
		case resolved <- struct{}{}:
		default:
		}
	})
	defer cancelListener()

	if err := q.engine.QueryResolve(ctx, qualifiedName, protocol.TypeANY); err != nil {
		return nil, err
	}

	select {
	case <-resolved:
		return buildServiceInfo(q.engine.Cache(), qualifiedName), nil
	case <-ctx.Done():
		if info := buildServiceInfo(q.engine.Cache(), qualifiedName); info.Host != "" {
			return info, nil
		}
		return nil, nil
	}
}

// EnumerateServices queries for instances of serviceType and returns
// whatever resolves before ctx's deadline (or the Querier's default
// timeout, if ctx carries none) elapses.
func (q *Querier) EnumerateServices(ctx context.Context, serviceType string) ([]ServiceInfo, error) {
	ctx, cancel := q.withDefaultTimeout(ctx)
	defer cancel()

	var mu sync.Mutex
	seen := make(map[string]bool)
	var out []ServiceInfo

	cancelListener := q.AddServiceListener(serviceType, func(info ServiceInfo, kind ChangeKind) {
		if kind == records.Removed {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		key := info.InstanceName
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, info)
	})
	defer cancelListener()

	<-ctx.Done()
	mu.Lock()
	defer mu.Unlock()
	return out, nil
}

func (q *Querier) withDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, q.defaultTimeout)
}
