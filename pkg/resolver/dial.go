package resolver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

// DialContext resolves the host part of address through the fake records
// and dials each address in turn until one connects. IP literals are dialed
// directly. It never falls back to system name resolution.
func (f *Fake) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	host, port, err := splitHostPort(address)
	if err != nil {
		return nil, &net.OpError{Op: "dial", Net: network, Err: err}
	}

	var d net.Dialer
	if net.ParseIP(host) != nil {
		return d.DialContext(ctx, network, address)
	}

	addrs, err := f.LookupHost(ctx, host)
	if err != nil {
		return nil, &net.OpError{Op: "dial", Net: network, Err: err}
	}

	var errs []error
	for _, a := range addrs {
		conn, err := d.DialContext(ctx, network, net.JoinHostPort(a, port))
		if err == nil {
			f.log.Debug("dialed", "host", host, "address", a, "port", port)
			return conn, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, errors.Join(errs...)
}

// Transport returns a copy of base that dials through f. A nil base starts
// from http.DefaultTransport.
func (f *Fake) Transport(base *http.Transport) *http.Transport {
	if base == nil {
		base = http.DefaultTransport.(*http.Transport)
	}
	t := base.Clone()
	t.DialContext = f.DialContext
	t.Proxy = nil
	return t
}

// Client returns an http.Client whose connections resolve through f.
func (f *Fake) Client(timeout time.Duration) *http.Client {
	return &http.Client{Transport: f.Transport(nil), Timeout: timeout}
}
