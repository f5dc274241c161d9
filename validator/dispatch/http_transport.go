package dispatch

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/palaidn/palaidn/validator/membership"
	"github.com/palaidn/palaidn/validator/protocol"
)

// maxResponseBytes caps a single peer answer.
const maxResponseBytes = 4 << 20

// HTTPTransport posts JSON queries to http://ip:port/PalaidnData.
type HTTPTransport struct {
	client *http.Client
	hotkey string
}

// NewHTTPTransport creates a transport that identifies itself with the validator hotkey.
func NewHTTPTransport(hotkey string) *HTTPTransport {
	return &HTTPTransport{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		hotkey: hotkey,
	}
}

// Query implements Transport.
func (t *HTTPTransport) Query(ctx context.Context, endpoint membership.Endpoint, payload []byte) ([]byte, error) {
	url := "http://" + net.JoinHostPort(endpoint.IP, strconv.Itoa(endpoint.Port)) + protocol.Route
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Validator-Hotkey", t.hotkey)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("peer returned status %d", resp.StatusCode)
	}
	return body, nil
}
