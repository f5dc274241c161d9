// Package ledger talks to the ledger node: block height, subnet membership and
// weight submission.
package ledger

import (
	"context"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/palaidn/palaidn/validator/constant"
	"github.com/palaidn/palaidn/validator/membership"
)

// DefaultPort is used when a ledger URL has no port.
const DefaultPort = "9944"

// Client is a connection to a single ledger endpoint.
type Client struct {
	url  string
	conn *grpc.ClientConn
}

// Dial creates a client for the endpoint. The connection is established lazily.
func Dial(endpoint string, opts ...grpc.DialOption) (*Client, error) {
	conn, err := CreateGRPCConnection(endpoint, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{url: endpoint, conn: conn}, nil
}

// CreateGRPCConnection dials a ledger endpoint.
//   - https:// uses TLS with default credentials
//   - http:// or no scheme uses an insecure connection
//   - other gRPC target schemes (passthrough:///, unix://) are used as given
//
// DefaultPort is appended when a plain host has no port.
func CreateGRPCConnection(endpoint string, extra ...grpc.DialOption) (*grpc.ClientConn, error) {
	if endpoint == "" {
		return nil, errors.New("empty endpoint provided")
	}

	target := endpoint
	useTLS := false
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		target = strings.TrimPrefix(endpoint, "https://")
		useTLS = true
	case strings.HasPrefix(endpoint, "http://"):
		target = strings.TrimPrefix(endpoint, "http://")
	}

	if !strings.Contains(target, "://") {
		target = withDefaultPort(target)
	}

	opts := make([]grpc.DialOption, 0, len(extra)+1)
	if useTLS {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(nil)))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	opts = append(opts, extra...)

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create gRPC connection to %s", target)
	}
	return conn, nil
}

func withDefaultPort(hostport string) string {
	idx := strings.LastIndex(hostport, ":")
	if idx < 0 {
		return hostport + ":" + DefaultPort
	}
	if _, err := strconv.Atoi(hostport[idx+1:]); err != nil {
		return hostport + ":" + DefaultPort
	}
	return hostport
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	return c.conn.Invoke(ctx, method, req, resp, grpc.ForceCodec(jsonCodec{}))
}

// URL returns the endpoint the client was dialed with.
func (c *Client) URL() string {
	return c.url
}

// CurrentBlock returns the ledger height.
func (c *Client) CurrentBlock(ctx context.Context) (uint64, error) {
	var resp BlockResponse
	if err := c.invoke(ctx, MethodCurrentBlock, &BlockRequest{}, &resp); err != nil {
		return 0, errors.Wrap(err, "current block")
	}
	return resp.Block, nil
}

// FetchMembership returns the membership of a subnet.
func (c *Client) FetchMembership(ctx context.Context, netUID uint16, lite bool) (*membership.View, error) {
	var resp MembershipResponse
	if err := c.invoke(ctx, MethodMembership, &MembershipRequest{NetUID: netUID, Lite: lite}, &resp); err != nil {
		return nil, errors.Wrap(err, "fetch membership")
	}
	return resp.ToView(netUID)
}

// SubmitWeights sets the validator's weights. The boolean reports whether the ledger accepted them.
func (c *Client) SubmitWeights(ctx context.Context, netUID uint16, hotkey string, uids, weights []uint16) (bool, error) {
	req := &SetWeightsRequest{
		NetUID:     netUID,
		Hotkey:     hotkey,
		UIDs:       uids,
		Weights:    weights,
		VersionKey: constant.SubnetVersion,
	}
	var resp SetWeightsResponse
	if err := c.invoke(ctx, MethodSetWeights, req, &resp); err != nil {
		return false, errors.Wrap(err, "set weights")
	}
	if !resp.Success && resp.Message != "" {
		return false, errors.Errorf("ledger rejected weights: %s", resp.Message)
	}
	return resp.Success, nil
}

// Ping checks that the endpoint answers.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.invoke(ctx, MethodPing, &PingRequest{}, &PingResponse{}); err != nil {
		return errors.Wrap(err, "ping")
	}
	return nil
}

// Broken reports whether the connection is closed or failing.
func (c *Client) Broken() bool {
	switch c.conn.GetState() {
	case connectivity.Shutdown, connectivity.TransientFailure:
		return true
	default:
		return false
	}
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
