// Package commit decides when to push the score vector to the ledger and does it.
package commit

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"

	verrors "github.com/palaidn/palaidn/validator/errors"
	"github.com/palaidn/palaidn/validator/scoring"
	"github.com/palaidn/palaidn/validator/store"
)

// Ledger is the part of the ledger connection the committer needs.
type Ledger interface {
	CurrentBlock(ctx context.Context) (uint64, error)
	SubmitWeights(ctx context.Context, netUID uint16, hotkey string, uids, weights []uint16) (bool, error)
	Connected() bool
	Reconnect(ctx context.Context) error
}

// History records commit attempts.
type History interface {
	RecordCommit(ctx context.Context, commit store.WeightCommit) error
}

// Input is the round state the gate is evaluated on.
type Input struct {
	Step             uint64
	CurrentBlock     uint64
	LastUpdatedBlock uint64
	Scores           []float64
}

// Result reports what MaybeCommit did. LastUpdatedBlock is the value the caller must keep.
type Result struct {
	Attempted        bool
	Success          bool
	LastUpdatedBlock uint64
}

// Committer submits weights once enough blocks passed since the last successful commit.
type Committer struct {
	ledger   Ledger
	history  History
	netUID   uint16
	hotkey   string
	distance uint64
	logger   zerolog.Logger
}

// NewCommitter creates a committer. history may be nil.
func NewCommitter(ledger Ledger, history History, netUID uint16, hotkey string, distance uint64, logger zerolog.Logger) *Committer {
	return &Committer{
		ledger:   ledger,
		history:  history,
		netUID:   netUID,
		hotkey:   hotkey,
		distance: distance,
		logger:   logger.With().Str("component", "commit").Logger(),
	}
}

// Due reports whether currentBlock - lastUpdatedBlock exceeds the commit distance.
func (c *Committer) Due(currentBlock, lastUpdatedBlock uint64) bool {
	return currentBlock > lastUpdatedBlock && currentBlock-lastUpdatedBlock > c.distance
}

// MaybeCommit is a no-op unless the block distance gate is open. When it is,
// the scores are normalized to sum to one and submitted. A missing or broken
// connection gets exactly one reconnect. Failures leave LastUpdatedBlock untouched
// so the next round tries again.
func (c *Committer) MaybeCommit(ctx context.Context, in Input) (Result, error) {
	res := Result{LastUpdatedBlock: in.LastUpdatedBlock}
	if !c.Due(in.CurrentBlock, in.LastUpdatedBlock) {
		return res, nil
	}

	normalized, ok := scoring.Normalize(in.Scores)
	uids, weights := ToLedgerWeights(normalized)
	if !ok || len(uids) == 0 {
		err := verrors.NewCommitFailureError("no non-zero weights to submit", nil).WithContext("step", in.Step)
		c.record(ctx, in, 0, err)
		return res, err
	}

	reconnected := false
	if !c.ledger.Connected() {
		reconnected = true
		if err := c.ledger.Reconnect(ctx); err != nil {
			res.Attempted = true
			c.record(ctx, in, 0, err)
			return res, err
		}
	}

	res.Attempted = true
	accepted, err := c.ledger.SubmitWeights(ctx, c.netUID, c.hotkey, uids, weights)
	if err != nil {
		if verrors.IsCode(err, verrors.ErrCodeConnectionLost) && !reconnected {
			if rerr := c.ledger.Reconnect(ctx); rerr != nil {
				c.logger.Warn().Err(rerr).Msg("reconnect after failed submission did not succeed")
			}
		}
		cerr := verrors.NewCommitFailureError("weight submission failed", err).WithContext("step", in.Step)
		c.record(ctx, in, len(uids), cerr)
		return res, cerr
	}
	if !accepted {
		cerr := verrors.NewCommitFailureError("ledger did not accept weights", nil).WithContext("step", in.Step)
		c.record(ctx, in, len(uids), cerr)
		return res, cerr
	}

	// The gate was checked against an earlier read; store the height after the submission.
	block, err := c.ledger.CurrentBlock(ctx)
	if err != nil || block < in.CurrentBlock {
		block = in.CurrentBlock
	}
	res.Success = true
	res.LastUpdatedBlock = block
	c.record(ctx, Input{Step: in.Step, CurrentBlock: block}, len(uids), nil)

	c.logger.Info().
		Uint64("step", in.Step).
		Uint64("block", block).
		Int("uids", len(uids)).
		Msg("weights committed")
	return res, nil
}

func (c *Committer) record(ctx context.Context, in Input, uidCount int, cause error) {
	entry := store.WeightCommit{
		Block:    in.CurrentBlock,
		Step:     in.Step,
		UIDCount: uidCount,
		Success:  cause == nil,
	}
	if cause != nil {
		entry.ErrorMsg = cause.Error()
		c.logger.Warn().Err(cause).Uint64("step", in.Step).Uint64("block", in.CurrentBlock).Msg("weight commit failed")
	}
	if c.history == nil {
		return
	}
	// Recorded even when the round context is already cancelled.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := c.history.RecordCommit(ctx, entry); err != nil {
		c.logger.Warn().Err(err).Msg("failed to record weight commit")
	}
}

// ToLedgerWeights converts normalized weights into the ledger's uint16 units:
// the largest weight maps to 65535 and uids whose weight rounds to zero are dropped.
func ToLedgerWeights(normalized []float64) (uids, weights []uint16) {
	maxW := 0.0
	for _, w := range normalized {
		if w > maxW {
			maxW = w
		}
	}
	if maxW <= 0 {
		return nil, nil
	}
	for uid, w := range normalized {
		if uid > math.MaxUint16 || w <= 0 {
			continue
		}
		v := math.Round(w / maxW * math.MaxUint16)
		if v < 1 {
			continue
		}
		uids = append(uids, uint16(uid))
		weights = append(weights, uint16(v))
	}
	return uids, weights
}
