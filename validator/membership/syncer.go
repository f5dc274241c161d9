package membership

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	verrors "github.com/palaidn/palaidn/validator/errors"
)

// Source fetches the membership of a subnet. With lite set the ledger may skip
// the consensus statistics and return the cached ones.
type Source interface {
	FetchMembership(ctx context.Context, netUID uint16, lite bool) (*View, error)
}

// Syncer refreshes a View from a Source within a bounded time.
type Syncer struct {
	source  Source
	netUID  uint16
	timeout time.Duration
	logger  zerolog.Logger
}

// NewSyncer creates a syncer for one subnet.
func NewSyncer(source Source, netUID uint16, timeout time.Duration, logger zerolog.Logger) *Syncer {
	return &Syncer{
		source:  source,
		netUID:  netUID,
		timeout: timeout,
		logger:  logger.With().Str("component", "membership").Logger(),
	}
}

// Sync forces a full refresh including consensus statistics.
func (s *Syncer) Sync(ctx context.Context, current *View) (*View, error) {
	return s.refresh(ctx, current, false)
}

// RefreshLight performs the cheaper refresh.
func (s *Syncer) RefreshLight(ctx context.Context, current *View) (*View, error) {
	return s.refresh(ctx, current, true)
}

// refresh returns the fetched view when it is valid and not older than current.
// On any failure it returns current together with the error so the caller can keep going.
func (s *Syncer) refresh(ctx context.Context, current *View, lite bool) (*View, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	next, err := s.source.FetchMembership(ctx, s.netUID, lite)
	if err != nil {
		if verrors.IsTimeout(err) || ctx.Err() == context.DeadlineExceeded {
			return current, verrors.NewSyncTimeoutError("membership sync did not complete in time", err).
				WithContext("timeout", s.timeout.String()).
				WithContext("lite", lite)
		}
		return current, verrors.NewNetworkError("membership", "membership fetch failed", err)
	}
	if err := next.Validate(); err != nil {
		return current, verrors.New(verrors.ErrCodeValidation, "membership", "ledger returned an inconsistent view", err)
	}
	if current != nil && next.Block < current.Block {
		s.logger.Debug().
			Uint64("current_block", current.Block).
			Uint64("fetched_block", next.Block).
			Msg("ignoring older membership view")
		return current, nil
	}

	s.logger.Info().
		Bool("lite", lite).
		Int("size", next.Size()).
		Uint64("block", next.Block).
		Dur("took", time.Since(start)).
		Msg("membership refreshed")
	return next, nil
}
