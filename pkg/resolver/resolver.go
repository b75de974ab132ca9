// Package resolver provides an in-memory name resolver that only answers
// for hostnames and services registered on it.
//
// It never consults the operating system or the network. Tests register the
// names their client code will look up, point those names at a local mock
// server, and plug the resolver into an http.Transport through DialContext.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"

	"golang.org/x/net/idna"

	"github.com/getmockd/tracemock/internal/future"
	"github.com/getmockd/tracemock/pkg/logging"
)

// ErrNotFound is wrapped by every lookup miss.
var ErrNotFound = errors.New("no fake record registered")

// Resolver is the lookup capability the server and clients depend on.
type Resolver interface {
	LookupHost(ctx context.Context, hostname string) ([]string, error)
	LookupService(ctx context.Context, service, protocol, domain string) ([]*net.SRV, error)
	Reset()
}

var _ Resolver = (*Fake)(nil)

// Option configures a Fake.
type Option func(*Fake)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fake) {
		f.log = logging.Component(logger, "resolver")
	}
}

// Fake maps hostnames to addresses and service keys to SRV targets.
// Records for the same name accumulate in insertion order, duplicates
// included. The zero value is not usable; call NewFake.
type Fake struct {
	mu       sync.RWMutex
	hosts    map[string][]string
	services map[string][]net.SRV
	log      *slog.Logger
}

// NewFake returns an empty resolver.
func NewFake(opts ...Option) *Fake {
	f := &Fake{
		hosts:    make(map[string][]string),
		services: make(map[string][]net.SRV),
		log:      logging.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ServiceKey builds the record name for a service lookup:
// "_service._protocol.domain", with domain converted to its ASCII form.
func ServiceKey(service, protocol, domain string) string {
	ascii, err := idna.Lookup.ToASCII(domain)
	if err != nil {
		ascii = domain
	}
	return "_" + service + "._" + protocol + "." + ascii
}

// AddHost appends address to the records for hostname.
func (f *Fake) AddHost(hostname, address string) {
	f.mu.Lock()
	f.hosts[hostname] = append(f.hosts[hostname], address)
	f.mu.Unlock()

	f.log.Debug("host record added", "hostname", hostname, "address", address)
}

// AddService appends an SRV target for the given service. Priority and
// weight are always zero.
func (f *Fake) AddService(service, protocol, domain, address string, port uint16) {
	key := ServiceKey(service, protocol, domain)

	f.mu.Lock()
	f.services[key] = append(f.services[key], net.SRV{Target: address, Port: port})
	f.mu.Unlock()

	f.log.Debug("service record added", "key", key, "target", address, "port", port)
}

// LookupHost returns the addresses registered for hostname, in the order
// they were added.
func (f *Fake) LookupHost(_ context.Context, hostname string) ([]string, error) {
	return f.lookupHost(hostname)
}

func (f *Fake) lookupHost(hostname string) ([]string, error) {
	f.mu.RLock()
	addrs := f.hosts[hostname]
	out := make([]string, len(addrs))
	copy(out, addrs)
	f.mu.RUnlock()

	if len(out) == 0 {
		f.log.Debug("host lookup missed", "hostname", hostname)
		return nil, notFound(hostname, fmt.Sprintf("no fake hostname record registered for %q", hostname))
	}
	f.log.Debug("host lookup", "hostname", hostname, "addresses", out)
	return out, nil
}

// LookupService returns the SRV targets registered for the service.
func (f *Fake) LookupService(_ context.Context, service, protocol, domain string) ([]*net.SRV, error) {
	return f.lookupService(ServiceKey(service, protocol, domain))
}

func (f *Fake) lookupService(key string) ([]*net.SRV, error) {
	f.mu.RLock()
	records := f.services[key]
	out := make([]*net.SRV, len(records))
	for i := range records {
		srv := records[i]
		out[i] = &srv
	}
	f.mu.RUnlock()

	if len(out) == 0 {
		f.log.Debug("service lookup missed", "key", key)
		return nil, notFound(key, fmt.Sprintf("no fake service record registered for %q", key))
	}
	f.log.Debug("service lookup", "key", key, "targets", len(out))
	return out, nil
}

// LookupHostAsync is LookupHost delivered through a Future. The result is
// computed from the records present at call time.
func (f *Fake) LookupHostAsync(_ context.Context, hostname string) *future.Future[[]string] {
	return future.Resolved(f.lookupHost(hostname))
}

// LookupServiceAsync is LookupService delivered through a Future.
func (f *Fake) LookupServiceAsync(_ context.Context, service, protocol, domain string) *future.Future[[]*net.SRV] {
	return future.Resolved(f.lookupService(ServiceKey(service, protocol, domain)))
}

// Reset removes every host and service record.
func (f *Fake) Reset() {
	f.mu.Lock()
	clear(f.hosts)
	clear(f.services)
	f.mu.Unlock()

	f.log.Debug("records reset")
}

// Hosts returns the number of hostnames with at least one record.
func (f *Fake) Hosts() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.hosts)
}

func notFound(name, msg string) error {
	return &net.DNSError{
		Err:        msg,
		Name:       name,
		IsNotFound: true,
		UnwrapErr:  ErrNotFound,
	}
}

// IsNotFound reports whether err is a lookup miss from this package.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func splitHostPort(address string) (host, port string, err error) {
	host, port, err = net.SplitHostPort(address)
	if err != nil {
		return "", "", fmt.Errorf("split %q: %w", address, err)
	}
	return strings.TrimSuffix(host, "."), port, nil
}
