// Package refdata fetches the reference wallet data responses are scored against.
package refdata

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	verrors "github.com/palaidn/palaidn/validator/errors"
)

const maxBodyBytes = 16 << 20

// Wallet is a wallet with its transactions and the subset known to be fraudulent.
type Wallet struct {
	Address             string   `json:"address"`
	Transactions        []string `json:"transactions"`
	FlaggedTransactions []string `json:"flagged_transactions"`
}

// Snapshot is the reference data used for one round.
type Snapshot struct {
	FetchedAt time.Time `json:"fetched_at"`
	Wallets   []Wallet  `json:"wallets"`
}

// Lookup indexes the flagged transactions by wallet address.
func (s *Snapshot) Lookup() map[string]map[string]struct{} {
	out := make(map[string]map[string]struct{}, len(s.Wallets))
	for _, w := range s.Wallets {
		set := make(map[string]struct{}, len(w.FlaggedTransactions))
		for _, tx := range w.FlaggedTransactions {
			set[tx] = struct{}{}
		}
		out[w.Address] = set
	}
	return out
}

// Fetcher downloads reference data and keeps the last good snapshot.
type Fetcher struct {
	url    string
	apiKey string
	ttl    time.Duration
	client *http.Client
	logger zerolog.Logger
	now    func() time.Time

	mu   sync.RWMutex
	last *Snapshot
}

// NewFetcher creates a fetcher. With ttl 0 every Fetch goes to the API.
func NewFetcher(url, apiKey string, ttl, timeout time.Duration, logger zerolog.Logger) *Fetcher {
	return &Fetcher{
		url:    url,
		apiKey: apiKey,
		ttl:    ttl,
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "refdata").Logger(),
		now:    time.Now,
	}
}

// Fetch returns fresh reference data. Within the TTL the cached snapshot is returned.
// When the API fails and a previous snapshot exists, that snapshot is returned with the error.
func (f *Fetcher) Fetch(ctx context.Context) (*Snapshot, error) {
	if cached := f.cached(); cached != nil && f.ttl > 0 && f.now().Sub(cached.FetchedAt) < f.ttl {
		return cached, nil
	}

	snap, err := f.download(ctx)
	if err != nil {
		err = verrors.NewNetworkError("refdata", "reference data fetch failed", err)
		if last := f.cached(); last != nil {
			f.logger.Warn().Err(err).Time("last_good", last.FetchedAt).Msg("using last good reference data")
			return last, err
		}
		return nil, err
	}

	f.mu.Lock()
	f.last = snap
	f.mu.Unlock()

	f.logger.Info().Int("wallets", len(snap.Wallets)).Msg("reference data updated")
	return snap, nil
}

// LastUpdated returns when the cached snapshot was fetched, zero if never.
func (f *Fetcher) LastUpdated() time.Time {
	if c := f.cached(); c != nil {
		return c.FetchedAt
	}
	return time.Time{}
}

func (f *Fetcher) cached() *Snapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.last
}

func (f *Fetcher) download(ctx context.Context) (*Snapshot, error) {
	if f.url == "" {
		return nil, errors.New("reference api url is not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if f.apiKey != "" {
		req.Header.Set("x-api-key", f.apiKey)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("reference api returned status %d", resp.StatusCode)
	}

	var body struct {
		Wallets []Wallet `json:"wallets"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&body); err != nil {
		return nil, errors.Wrap(err, "decode reference data")
	}
	return &Snapshot{FetchedAt: f.now(), Wallets: body.Wallets}, nil
}
