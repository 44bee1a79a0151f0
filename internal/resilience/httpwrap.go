package resilience

import (
	"fmt"
	"net/http"
)

// Transport guards an outbound HTTP dependency with a Breaker. Transport errors and 5xx/429
// responses count as failures; everything else counts as success.
type Transport struct {
	Base    http.RoundTripper
	Breaker *Breaker
}

// RoundTrip implements http.RoundTripper.
func (t Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if t.Breaker == nil {
		return base.RoundTrip(req)
	}
	ctx := req.Context()
	if !t.Breaker.Allow(ctx) {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Host, ErrOpenCircuit)
	}
	resp, err := base.RoundTrip(req)
	if err != nil {
		if ctx.Err() != nil {
			t.Breaker.Abandon()
		} else {
			t.Breaker.Report(ctx, false)
		}
		return nil, err
	}
	t.Breaker.Report(ctx, resp.StatusCode < http.StatusInternalServerError && resp.StatusCode != http.StatusTooManyRequests)
	return resp, nil
}

// HTTPClient returns a client whose transport is guarded by b.
func HTTPClient(base *http.Client, b *Breaker) *http.Client {
	client := &http.Client{}
	if base != nil {
		*client = *base
	}
	client.Transport = Transport{Base: client.Transport, Breaker: b}
	return client
}
