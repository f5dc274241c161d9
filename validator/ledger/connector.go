package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	verrors "github.com/palaidn/palaidn/validator/errors"
	"github.com/palaidn/palaidn/validator/membership"
	"github.com/palaidn/palaidn/validator/rpcpool"
)

// Connector owns the active ledger connection. Endpoints come from the pool;
// a lost connection is replaced by Reconnect.
type Connector struct {
	pool        *rpcpool.Manager
	callTimeout time.Duration
	logger      zerolog.Logger

	mu       sync.Mutex
	endpoint *rpcpool.Endpoint
	client   *Client
}

// NewConnector creates a connector over a started pool.
func NewConnector(pool *rpcpool.Manager, callTimeout time.Duration, logger zerolog.Logger) *Connector {
	return &Connector{
		pool:        pool,
		callTimeout: callTimeout,
		logger:      logger.With().Str("component", "ledger").Logger(),
	}
}

// ClientFactory adapts Dial for the endpoint pool.
func ClientFactory(opts ...grpc.DialOption) rpcpool.ClientFactory {
	return func(url string) (rpcpool.Client, error) {
		return Dial(url, opts...)
	}
}

// Connect picks an endpoint and checks it answers.
func (c *Connector) Connect(ctx context.Context) error {
	ep, err := c.pool.SelectEndpoint()
	if err != nil {
		return verrors.NewConnectionLostError("no ledger endpoint available", err)
	}
	client, ok := ep.GetClient().(*Client)
	if !ok || client == nil {
		return verrors.NewConnectionLostError("ledger endpoint has no client", nil).WithContext("url", ep.URL)
	}
	return c.activate(ctx, ep, client)
}

// Reconnect makes exactly one attempt to replace the active connection.
func (c *Connector) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	prev := c.endpoint
	c.endpoint, c.client = nil, nil
	c.mu.Unlock()

	ep, err := c.pool.SelectEndpoint()
	if err != nil {
		// Every endpoint is excluded; redial the one we were on.
		if prev == nil {
			return verrors.NewConnectionLostError("no ledger endpoint available", err)
		}
		ep = prev
	}

	fresh, err := c.pool.Redial(ep)
	if err != nil {
		return verrors.NewConnectionLostError("ledger reconnect failed", err).WithContext("url", ep.URL)
	}
	client, ok := fresh.(*Client)
	if !ok {
		return verrors.NewConnectionLostError("ledger endpoint returned an unexpected client", nil).WithContext("url", ep.URL)
	}
	if err := c.activate(ctx, ep, client); err != nil {
		return err
	}
	c.logger.Info().Str("url", ep.URL).Msg("ledger reconnected")
	return nil
}

func (c *Connector) activate(ctx context.Context, ep *rpcpool.Endpoint, client *Client) error {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	start := time.Now()
	err := client.Ping(ctx)
	c.pool.UpdateEndpointMetrics(ep, err == nil, time.Since(start), err)
	if err != nil {
		return verrors.NewConnectionLostError("ledger endpoint did not answer", err).WithContext("url", ep.URL)
	}

	c.mu.Lock()
	c.endpoint, c.client = ep, client
	c.mu.Unlock()
	c.logger.Debug().Str("url", ep.URL).Msg("ledger connection active")
	return nil
}

// Connected reports whether there is an active, usable connection.
func (c *Connector) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client != nil && !c.client.Broken()
}

// Current returns the active client, nil when disconnected.
func (c *Connector) Current() *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client
}

func (c *Connector) active() (*rpcpool.Endpoint, *Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil, nil, verrors.NewConnectionLostError("ledger is not connected", nil)
	}
	return c.endpoint, c.client, nil
}

// call runs fn against the active client within the call timeout and feeds the
// outcome into the endpoint's health metrics.
func (c *Connector) call(ctx context.Context, fn func(ctx context.Context, client *Client) error) error {
	ep, client, err := c.active()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	start := time.Now()
	err = fn(ctx, client)
	latency := time.Since(start)

	if transportFailure(err) {
		c.pool.UpdateEndpointMetrics(ep, false, latency, err)
		return verrors.NewConnectionLostError("ledger call failed", err).WithContext("url", ep.URL)
	}
	c.pool.UpdateEndpointMetrics(ep, true, latency, nil)
	return err
}

// transportFailure tells apart a dead or hanging endpoint from an application error.
func transportFailure(err error) bool {
	if err == nil {
		return false
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		return true
	default:
		return false
	}
}

// CurrentBlock returns the ledger height.
func (c *Connector) CurrentBlock(ctx context.Context) (uint64, error) {
	var block uint64
	err := c.call(ctx, func(ctx context.Context, client *Client) error {
		var err error
		block, err = client.CurrentBlock(ctx)
		return err
	})
	return block, err
}

// FetchMembership implements membership.Source.
func (c *Connector) FetchMembership(ctx context.Context, netUID uint16, lite bool) (*membership.View, error) {
	var view *membership.View
	err := c.call(ctx, func(ctx context.Context, client *Client) error {
		var err error
		view, err = client.FetchMembership(ctx, netUID, lite)
		return err
	})
	return view, err
}

// SubmitWeights sets weights through the active connection.
func (c *Connector) SubmitWeights(ctx context.Context, netUID uint16, hotkey string, uids, weights []uint16) (bool, error) {
	var ok bool
	err := c.call(ctx, func(ctx context.Context, client *Client) error {
		var err error
		ok, err = client.SubmitWeights(ctx, netUID, hotkey, uids, weights)
		return err
	})
	return ok, err
}

// Close drops the active connection. The pool owns and closes the clients.
func (c *Connector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endpoint, c.client = nil, nil
}

var _ membership.Source = (*Connector)(nil)
