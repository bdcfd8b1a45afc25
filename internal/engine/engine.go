// Package engine wires the record model, wire codec, state machine, and
// scheduler into the running mDNS responder/querier core. The public
// querier and responder packages each create and own their own Engine.
package engine

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	mdnserrors "github.com/beacon-mdns/beacon/internal/errors"
	"github.com/beacon-mdns/beacon/internal/host"
	"github.com/beacon-mdns/beacon/internal/message"
	"github.com/beacon-mdns/beacon/internal/network"
	"github.com/beacon-mdns/beacon/internal/protocol"
	"github.com/beacon-mdns/beacon/internal/records"
	"github.com/beacon-mdns/beacon/internal/scheduler"
	"github.com/beacon-mdns/beacon/internal/security"
	"github.com/beacon-mdns/beacon/internal/state"
	"github.com/beacon-mdns/beacon/internal/transport"
)

// Logger is the minimal diagnostic sink the engine accepts; *log.Logger
// already satisfies it. The zero value (nil Logger field) logs nothing.
type Logger interface {
	Printf(format string, args ...interface{})
}

type noopLogger struct{}

func (noopLogger) Printf(string, ...interface{}) {}

// Option configures an Engine at construction time.
type Option func(*Engine) error

// WithLogger directs diagnostic events (malformed messages, conflicts,
// socket recovery) to logger instead of discarding them.
func WithLogger(logger Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			return &mdnserrors.ValidationError{Field: "logger", Message: "must not be nil"}
		}
		e.logger = logger
		return nil
	}
}

// WithRateLimit enables or disables the per-source query rate limiter.
// Enabled by default.
func WithRateLimit(enabled bool) Option {
	return func(e *Engine) error {
		e.rateLimitEnabled = enabled
		return nil
	}
}

// WithRateLimitThreshold sets the allowed queries per window per source IP.
func WithRateLimitThreshold(threshold int) Option {
	return func(e *Engine) error {
		if threshold <= 0 {
			return &mdnserrors.ValidationError{Field: "rateLimitThreshold", Value: threshold, Message: "must be positive"}
		}
		e.rateLimitThreshold = threshold
		return nil
	}
}

// WithRateLimitCooldown sets how long an over-threshold source is dropped.
func WithRateLimitCooldown(cooldown time.Duration) Option {
	return func(e *Engine) error {
		if cooldown <= 0 {
			return &mdnserrors.ValidationError{Field: "rateLimitCooldown", Value: cooldown, Message: "must be positive"}
		}
		e.rateLimitCooldown = cooldown
		return nil
	}
}

// WithTransports injects transports directly, bypassing real socket setup.
// Used by tests to wire a MockTransport; production callers should prefer
// New, which binds real UDP sockets.
func WithTransports(v4, v6 transport.Transport) Option {
	return func(e *Engine) error {
		e.v4 = v4
		e.v6 = v6
		return nil
	}
}

// binding is one network interface's mDNS identity.
type binding struct {
	iface   net.Interface
	host    *host.Descriptor
	filter  *security.SourceFilter
	machine *state.Machine // drives host.Records() through probe/announce, per RFC 6762 §8
}

// registeredService pairs a published service with the state machine
// tracking its probe/announce lifecycle.
type registeredService struct {
	svc     *host.ServiceDescriptor
	machine *state.Machine
}

// Engine is the shared mDNS core: cache, scheduler, transports, and the
// set of names (host + published services) this process owns and defends.
type Engine struct {
	mu              sync.Mutex
	bindings        map[int]*binding // keyed by net.Interface.Index
	services        map[string]*registeredService
	registeredTypes map[string]bool // service types advertised with no published instance

	cache *records.Cache
	sched *scheduler.Timer

	v4, v6 transport.Transport

	rateLimitEnabled   bool
	rateLimitThreshold int
	rateLimitCooldown  time.Duration
	rl                 *security.RateLimiter

	maxPacketSize int
	logger        Logger

	group    *errgroup.Group
	groupCtx context.Context
	cancel   context.CancelFunc
}

// New builds an Engine bound to ifaces over real UDP sockets, unless
// WithTransports overrides them. hostname is the short (no ".local") name
// this process answers A/AAAA queries for.
func New(hostname string, ifaces []net.Interface, opts ...Option) (*Engine, error) {
	if len(ifaces) == 0 {
		return nil, &mdnserrors.ValidationError{Field: "interfaces", Message: "must not be empty"}
	}

	e := &Engine{
		bindings:           make(map[int]*binding),
		services:           make(map[string]*registeredService),
		cache:              records.NewCache(),
		sched:              scheduler.New(),
		rateLimitEnabled:   true,
		rateLimitThreshold: 100,
		rateLimitCooldown:  60 * time.Second,
		maxPacketSize:      protocol.MaxUDPPayloadSize,
		logger:             noopLogger{},
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	if e.rateLimitEnabled {
		e.rl = security.NewRateLimiter(e.rateLimitThreshold, e.rateLimitCooldown, 1024)
	}

	for _, iface := range ifaces {
		ipv4, ipv6 := network.Addresses(iface)
		hd := host.NewDescriptor(hostname, iface, ipv4, ipv6)
		filter, err := security.NewSourceFilter(iface)
		if err != nil {
			return nil, err
		}
		e.bindings[iface.Index] = &binding{iface: iface, host: hd, filter: filter, machine: state.NewMachine(hd.Name)}
	}

	if e.v4 == nil && e.v6 == nil {
		v4, err := transport.NewUDPv4Transport(ifaces)
		if err != nil {
			return nil, err
		}
		e.v4 = v4
		v6, err := transport.NewUDPv6Transport(ifaces)
		if err != nil {
			e.logger.Printf("ipv6 transport unavailable: %v", err)
		} else {
			e.v6 = v6
		}
	}

	return e, nil
}

// Start launches the scheduler and receive loops for every wired transport.
// It returns once all goroutines have been launched; call Close to stop
// them and wait for shutdown.
func (e *Engine) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	e.group = g
	e.groupCtx = gctx
	e.cancel = cancel

	g.Go(func() error {
		e.sched.Run(gctx)
		return nil
	})
	e.sched.After(protocol.ReapInterval, e.reapTask)
	e.mu.Lock()
	bindings := make([]*binding, 0, len(e.bindings))
	for _, b := range e.bindings {
		bindings = append(bindings, b)
	}
	e.mu.Unlock()
	for _, b := range bindings {
		e.startHostProbing(b)
	}
	if e.v4 != nil {
		g.Go(func() error { return e.receiveLoop(gctx, e.v4) })
	}
	if e.v6 != nil {
		g.Go(func() error { return e.receiveLoop(gctx, e.v6) })
	}
}

// Close withdraws the host identity of every binding that has reached
// Announced with a goodbye burst (RFC 6762 §10.1); bindings still probing
// or announcing send none. It then stops the receive loops and scheduler and waits for
// clean shutdown.
func (e *Engine) Close() error {
	e.mu.Lock()
	bindings := make([]*binding, 0, len(e.bindings))
	for _, b := range e.bindings {
		bindings = append(bindings, b)
	}
	e.mu.Unlock()
	for _, b := range bindings {
		if b.machine.Current() == state.Announced {
			e.sendHostGoodbye(b)
		}
	}

	if e.cancel != nil {
		e.cancel()
	}
	var err error
	if e.group != nil {
		err = e.group.Wait()
	}
	if e.v4 != nil {
		if cerr := e.v4.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if e.v6 != nil {
		if cerr := e.v6.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func (e *Engine) receiveLoop(ctx context.Context, t transport.Transport) error {
	for {
		pkt, err := t.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			e.logger.Printf("receive error: %v", err)
			continue
		}
		e.handlePacket(ctx, pkt)
	}
}

func (e *Engine) handlePacket(ctx context.Context, pkt transport.Packet) {
	if !e.sourceAllowed(pkt) {
		return
	}
	if e.rateLimitEnabled && e.rl != nil {
		srcHost, _, err := net.SplitHostPort(pkt.Source.String())
		if err != nil {
			srcHost = pkt.Source.String()
		}
		if !e.rl.Allow(srcHost) {
			return
		}
	}

	msg, err := message.NewMessageReader(pkt.Data).ReadMessage()
	if msg == nil {
		if err != nil {
			e.logger.Printf("dropped malformed message from %v: %v", pkt.Source, err)
		}
		return
	}
	if err != nil {
		e.logger.Printf("malformed record(s) from %v: %v", pkt.Source, err)
	}

	if msg.Header.IsQuery() {
		e.handleQuery(ctx, msg, pkt)
		return
	}
	e.handleResponse(msg, pkt)
}

func (e *Engine) sourceAllowed(pkt transport.Packet) bool {
	e.mu.Lock()
	b, ok := e.bindings[pkt.InterfaceIndex]
	e.mu.Unlock()
	if !ok || b.filter == nil {
		return true
	}
	srcHost, _, err := net.SplitHostPort(pkt.Source.String())
	if err != nil {
		srcHost = pkt.Source.String()
	}
	ip := net.ParseIP(srcHost)
	if ip == nil {
		return true
	}
	return b.filter.IsValid(ip)
}

// send writes msg and transmits it. A non-nil dest picks the transport
// matching its address family; a nil dest means "each family's own
// multicast group", so msg goes out on every wired transport.
func (e *Engine) send(ctx context.Context, msg *message.Message, ifIndex int, dest net.Addr) error {
	buf, err := message.NewMessageWriter().WriteMessage(msg)
	if err != nil {
		return err
	}

	if dest != nil {
		udp, ok := dest.(*net.UDPAddr)
		t := e.v4
		if ok && udp.IP.To4() == nil {
			t = e.v6
		}
		if t == nil {
			return fmt.Errorf("mdns: no transport available for destination %v", dest)
		}
		return t.Send(ctx, buf, dest, ifIndex)
	}

	var sendErr error
	sent := false
	for _, t := range []transport.Transport{e.v4, e.v6} {
		if t == nil {
			continue
		}
		if err := t.Send(ctx, buf, nil, ifIndex); err != nil {
			sendErr = err
			continue
		}
		sent = true
	}
	if !sent {
		if sendErr != nil {
			return sendErr
		}
		return fmt.Errorf("mdns: no transport available")
	}
	return nil
}

func (e *Engine) reapTask(now time.Time) (time.Duration, bool) {
	e.cache.Reap(now)
	return protocol.ReapInterval, false
}

// Cache exposes the shared record cache so discovery-side consumers can
// mount listeners or inspect resolved records directly.
func (e *Engine) Cache() *records.Cache {
	return e.cache
}

// HostDescriptor returns the host identity bound to ifIndex, if any.
func (e *Engine) HostDescriptor(ifIndex int) (*host.Descriptor, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.bindings[ifIndex]
	if !ok {
		return nil, false
	}
	return b.host, true
}

// RegisterType advertises serviceType (e.g. "_http._tcp") for service-type
// enumeration (RFC 6763 §9) even when no instance of it is published,
// letting a pure responder declare a type it intends to answer for.
func (e *Engine) RegisterType(serviceType string) error {
	if serviceType == "" {
		return &mdnserrors.ValidationError{Field: "serviceType", Message: "must not be empty"}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.registeredTypes == nil {
		e.registeredTypes = make(map[string]bool)
	}
	e.registeredTypes[serviceType] = true
	return nil
}

// UnregisterType withdraws a type registered via RegisterType.
func (e *Engine) UnregisterType(serviceType string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.registeredTypes, serviceType)
}

// Query broadcasts a single question for name/qtype on every bound
// interface, including known answers already cached for name/qtype so a
// responder can apply known-answer suppression (RFC 6762 §7.1). Answers
// arrive asynchronously through the normal receive loop and are cached by
// handleResponse.
func (e *Engine) Query(ctx context.Context, name string, qtype protocol.Type) error {
	known := e.knownAnswersFor(name, qtype)
	msg := &message.Message{
		Questions: []records.Question{{Name: name, Type: qtype, Class: protocol.ClassIN}},
		Answers:   known,
	}
	msg.Header.QDCount = uint16(len(msg.Questions))
	msg.Header.ANCount = uint16(len(known))

	e.mu.Lock()
	ifIndexes := make([]int, 0, len(e.bindings))
	for idx := range e.bindings {
		ifIndexes = append(ifIndexes, idx)
	}
	e.mu.Unlock()

	if len(ifIndexes) == 0 {
		return e.send(ctx, msg, 0, nil)
	}
	var firstErr error
	for _, idx := range ifIndexes {
		if err := e.send(ctx, msg, idx, nil); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// knownAnswersFor returns the records a repeated query for name/qtype
// should carry as known answers, per RFC 6762 §7.1; qtype ANY matches every
// cached record under name.
func (e *Engine) knownAnswersFor(name string, qtype protocol.Type) []*records.Record {
	if qtype == protocol.TypeANY {
		return e.cache.GetAll(name)
	}
	var out []*records.Record
	for _, r := range e.cache.GetAll(name) {
		if r.Type == qtype {
			out = append(out, r)
		}
	}
	return out
}

// QueryResolve sends an immediate query for name/qtype, then up to three
// more at exponentially growing backoff (ServiceResolveBase, doubling each
// time: 225ms, 450ms, 900ms) as long as ctx is alive, so a Resolver keeps
// asking for an instance that hasn't answered yet without flooding one that
// has. Each retry carries known answers, so a responder already heard from
// suppresses its own repeat.
func (e *Engine) QueryResolve(ctx context.Context, name string, qtype protocol.Type) error {
	err := e.Query(ctx, name, qtype)

	var scheduleNext func(attempt int, delay time.Duration)
	scheduleNext = func(attempt int, delay time.Duration) {
		if attempt >= 3 {
			return
		}
		e.sched.After(delay, func(time.Time) (time.Duration, bool) {
			select {
			case <-ctx.Done():
				return 0, true
			default:
			}
			e.Query(ctx, name, qtype)
			scheduleNext(attempt+1, delay*2)
			return 0, true
		})
	}
	scheduleNext(0, protocol.ServiceResolveBase)

	return err
}
