package client

import (
	"context"
	"fmt"

	"github.com/MrWong99/parley/internal/resilience"
)

// Failover dials a primary transport and falls back to the others in order
// when it fails. Each endpoint has its own circuit breaker, so an endpoint
// that keeps failing is skipped until its breaker half-opens again.
type Failover struct {
	group *resilience.FallbackGroup[Transport]
}

var _ Transport = (*Failover)(nil)

// Endpoint is a named transport for [NewFailover].
type Endpoint struct {
	Name      string
	Transport Transport
}

// NewFailover returns a transport over endpoints, tried in order. It panics
// when endpoints is empty.
func NewFailover(cfg resilience.FallbackConfig, endpoints ...Endpoint) *Failover {
	if len(endpoints) == 0 {
		panic("client: NewFailover needs at least one endpoint")
	}
	g := resilience.NewFallbackGroup(endpoints[0].Transport, endpoints[0].Name, cfg)
	for _, e := range endpoints[1:] {
		g.AddFallback(e.Name, e.Transport)
	}
	return &Failover{group: g}
}

// States returns the circuit breaker state of every endpoint in try order.
func (f *Failover) States() []resilience.MemberState { return f.group.States() }

// Dial implements [Transport].
func (f *Failover) Dial(ctx context.Context) (Conn, error) {
	conn, err := resilience.ExecuteWithResult(f.group, func(t Transport) (Conn, error) {
		return t.Dial(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("client: dial: %w", err)
	}
	return conn, nil
}
