// Package dispatch fans one query out to the selected peers under a single
// overall timeout.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	verrors "github.com/palaidn/palaidn/validator/errors"
	"github.com/palaidn/palaidn/validator/membership"
)

// Transport delivers a payload to one peer and returns its raw answer.
type Transport interface {
	Query(ctx context.Context, endpoint membership.Endpoint, payload []byte) ([]byte, error)
}

// Result is the outcome for one queried uid. A nil Payload means no response.
type Result struct {
	UID     int
	Payload []byte
	Err     error
	Latency time.Duration
}

// Responded reports whether the peer answered in time.
func (r Result) Responded() bool {
	return r.Err == nil && r.Payload != nil
}

// Dispatcher queries peers concurrently.
type Dispatcher struct {
	transport   Transport
	concurrency int
	logger      zerolog.Logger
}

// NewDispatcher creates a dispatcher. concurrency bounds in-flight requests, 0 means
// unbounded. Queued requests start only when a slot frees up and share the single
// Dispatch deadline, so with concurrency below the fan-out a few slow peers can leave
// the rest of the batch absent. Pass at least the largest toQuery length, or 0.
func NewDispatcher(transport Transport, concurrency int, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		transport:   transport,
		concurrency: concurrency,
		logger:      logger.With().Str("component", "dispatch").Logger(),
	}
}

// Dispatch sends payload to every uid in toQuery and returns one result per uid,
// in toQuery order. Peers that fail or miss the deadline get an absent result;
// the round is never failed by them. Answers arriving after the deadline are dropped.
func (d *Dispatcher) Dispatch(ctx context.Context, view *membership.View, toQuery []int, payload []byte, timeout time.Duration) []Result {
	results := make([]Result, len(toQuery))
	for i, uid := range toQuery {
		results[i] = Result{UID: uid, Err: verrors.NewDispatchAbsenceError("no response", context.DeadlineExceeded)}
	}
	if len(toQuery) == 0 {
		return results
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		mu     sync.Mutex
		closed bool
	)
	// The errgroup only bounds concurrency; absence is data so no goroutine returns an error.
	g := new(errgroup.Group)
	if d.concurrency > 0 {
		g.SetLimit(d.concurrency)
		if len(toQuery) > d.concurrency {
			d.logger.Warn().
				Int("to_query", len(toQuery)).
				Int("concurrency", d.concurrency).
				Msg("fan-out exceeds concurrency, queued peers share the deadline")
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i, uid := range toQuery {
			if ctx.Err() != nil {
				return
			}
			i, uid := i, uid
			g.Go(func() error {
				start := time.Now()
				answer, err := d.transport.Query(ctx, view.Endpoints[uid], payload)
				res := Result{UID: uid, Payload: answer, Latency: time.Since(start)}
				if err != nil {
					res.Payload = nil
					res.Err = verrors.NewDispatchAbsenceError("peer did not answer", err).WithContext("uid", uid)
				}

				mu.Lock()
				defer mu.Unlock()
				if !closed {
					results[i] = res
				}
				return nil
			})
		}
		_ = g.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}

	mu.Lock()
	closed = true
	out := make([]Result, len(results))
	copy(out, results)
	mu.Unlock()

	answered := 0
	for _, r := range out {
		if r.Responded() {
			answered++
		}
	}
	d.logger.Debug().
		Int("queried", len(toQuery)).
		Int("answered", answered).
		Msg("dispatch finished")
	return out
}
