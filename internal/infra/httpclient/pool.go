package httpclient

import (
	"net/http"
	"time"
)

// Pool owns one http.Transport shared by every client it hands out, so calls
// to both backing services reuse the same connection pool. The pool is an
// explicitly constructed resource tied to a client instance, not a package
// global: independent instances in one process do not interfere, and tests
// can build isolated pools.
type Pool struct {
	transport *http.Transport
}

// NewPool creates a pool sized for maxIdle total idle connections.
func NewPool(maxIdle int) *Pool {
	if maxIdle <= 0 {
		maxIdle = 20
	}
	perHost := maxIdle / 2
	if perHost < 1 {
		perHost = 1
	}
	return &Pool{
		transport: &http.Transport{
			MaxIdleConns:        maxIdle,
			MaxIdleConnsPerHost: perHost,
			IdleConnTimeout:     120 * time.Second,
		},
	}
}

// NewClient returns an http.Client with the given per-request timeout,
// backed by the shared transport.
func (p *Pool) NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: p.transport,
	}
}

// Close releases idle connections. Safe to call on every shutdown path.
func (p *Pool) Close() {
	p.transport.CloseIdleConnections()
}
