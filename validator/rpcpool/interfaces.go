package rpcpool

import (
	"context"
)

// Client is a connection to one ledger endpoint that the pool can health check and close.
type Client interface {
	Ping(ctx context.Context) error
	Close() error
}

// ClientFactory dials a client for the given endpoint URL.
type ClientFactory func(url string) (Client, error)

// HealthChecker decides whether a client is usable.
type HealthChecker interface {
	CheckHealth(ctx context.Context, client Client) error
}

// PingChecker checks health with the client's own Ping.
type PingChecker struct{}

// CheckHealth implements HealthChecker.
func (PingChecker) CheckHealth(ctx context.Context, client Client) error {
	return client.Ping(ctx)
}
