// Package core runs the validator round loop: refresh membership, select peers,
// query them, score the answers and commit weights.
package core

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/palaidn/palaidn/validator/commit"
	"github.com/palaidn/palaidn/validator/constant"
	"github.com/palaidn/palaidn/validator/dispatch"
	verrors "github.com/palaidn/palaidn/validator/errors"
	"github.com/palaidn/palaidn/validator/membership"
	"github.com/palaidn/palaidn/validator/metrics"
	"github.com/palaidn/palaidn/validator/protocol"
	"github.com/palaidn/palaidn/validator/refdata"
	"github.com/palaidn/palaidn/validator/rpcpool"
	"github.com/palaidn/palaidn/validator/scoring"
	"github.com/palaidn/palaidn/validator/selector"
)

// Settings are the round loop knobs.
type Settings struct {
	NetUID               uint16
	OwnUID               int
	Hotkey               string
	MinStake             float64
	MaxTargets           int
	SelectionSeed        int64
	QueryTimeout         time.Duration
	LedgerCallTimeout    time.Duration
	LightRefreshEvery    uint64
	FullSyncEvery        uint64
	RoundInterval        time.Duration
	EmptyResponseBackoff time.Duration
}

// Deps are the collaborators of the round loop.
type Deps struct {
	Ledger     Ledger
	Syncer     MembershipSyncer
	Dispatcher Dispatcher
	Evaluator  Evaluator
	Reference  ReferenceSource
	Committer  Committer
	Store      StateStore
	Metrics    *metrics.Metrics
	// Pool, when set, feeds the per-endpoint health gauge.
	Pool interface{ Stats() rpcpool.PoolStats }
	// Server is stopped on shutdown when set.
	Server Closer
}

// Validator owns the validator state and runs rounds on a fixed cadence.
type Validator struct {
	settings Settings
	deps     Deps
	bridge   *Bridge
	logger   zerolog.Logger

	state  State
	scores *scoring.Engine
	// knownHotkeys is the last identity seen at every uid, including uids missing
	// from a shrunk view. It never shrinks.
	knownHotkeys []string

	status atomic.Pointer[Status]
	sleep  func(ctx context.Context, d time.Duration) bool
}

// New creates a validator with an empty state.
func New(settings Settings, scores *scoring.Engine, deps Deps, logger zerolog.Logger) *Validator {
	if settings.LightRefreshEvery == 0 {
		settings.LightRefreshEvery = 1
	}
	if settings.FullSyncEvery == 0 {
		settings.FullSyncEvery = 1
	}
	v := &Validator{
		settings: settings,
		deps:     deps,
		bridge:   NewBridge(2),
		logger:   logger.With().Str("component", "core").Logger(),
		state:    State{View: membership.Empty(settings.NetUID)},
		scores:   scores,
		sleep:    sleepCtx,
	}
	v.publish(0, selector.Partition{}, 0, nil)
	return v
}

// Restore loads the persisted snapshot, or clears it when load is false.
func (v *Validator) Restore(ctx context.Context, load bool) error {
	if v.deps.Store == nil {
		return nil
	}
	if !load {
		v.logger.Info().Msg("load_state disabled, clearing persisted state")
		return v.deps.Store.Clear(ctx)
	}

	snap, found, err := v.deps.Store.Load(ctx)
	if err != nil {
		return verrors.NewDatabaseError("failed to load validator state", err)
	}
	if !found {
		v.logger.Info().Msg("no persisted state, starting fresh")
		return nil
	}
	if snap.NetUID != v.settings.NetUID {
		v.logger.Warn().
			Uint16("persisted_netuid", snap.NetUID).
			Uint16("netuid", v.settings.NetUID).
			Msg("persisted state belongs to another subnet, ignoring it")
		return nil
	}

	scores, err := scoring.New(v.scores.Alpha(), snap.Scores)
	if err != nil {
		return err
	}
	v.scores = scores
	v.state.Step = snap.Step
	v.state.LastUpdatedBlock = snap.LastUpdatedBlock
	v.state.LastQueried = snap.LastQueried
	v.state.growLastQueried(scores.Len())
	v.knownHotkeys = append([]string(nil), snap.Hotkeys...)

	v.logger.Info().
		Uint64("step", snap.Step).
		Uint64("last_updated_block", snap.LastUpdatedBlock).
		Int("scores", len(snap.Scores)).
		Msg("validator state restored")
	v.publish(0, selector.Partition{}, 0, nil)
	return nil
}

// Run executes rounds until ctx is cancelled. A failing round is logged and the
// next round starts on schedule. On return the state is saved and the server stopped.
func (v *Validator) Run(ctx context.Context) error {
	v.logger.Info().
		Uint16("netuid", v.settings.NetUID).
		Dur("round_interval", v.settings.RoundInterval).
		Msg("validator started")

	for ctx.Err() == nil {
		v.safeRound(ctx)
		if !v.sleep(ctx, v.settings.RoundInterval) {
			break
		}
	}

	v.shutdown()
	return nil
}

func (v *Validator) safeRound(ctx context.Context) {
	start := time.Now()
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = verrors.NewUnexpectedError(fmt.Sprintf("round panicked: %v", r), nil)
			v.logger.Error().
				Err(err).
				Uint64("step", v.state.Step).
				Str("stack", string(debug.Stack())).
				Msg("round aborted")
		}
		v.deps.Metrics.ObserveRound(err != nil, time.Since(start))
	}()

	err = v.RunRound(ctx)
	if err != nil && ctx.Err() == nil {
		v.logger.Error().
			Err(err).
			Str("code", string(verrors.CodeOf(err))).
			Uint64("step", v.state.Step).
			Msg("round failed")
	}
}

func (v *Validator) shutdown() {
	v.logger.Info().Uint64("step", v.state.Step).Msg("validator stopping")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	v.saveState(ctx)

	if v.deps.Server != nil {
		if err := v.deps.Server.Stop(); err != nil {
			v.logger.Warn().Err(err).Msg("failed to stop query server")
		}
	}
	v.logger.Info().Msg("validator stopped")
}

// RunRound executes one round and advances the step.
func (v *Validator) RunRound(ctx context.Context) error {
	step := v.state.Step
	log := v.logger.With().Uint64("step", step).Logger()

	ref := v.fetchReference(ctx, log)
	v.refreshMembership(ctx, log)

	view := v.state.View
	if added := v.scores.Grow(view.Size()); added > 0 {
		log.Info().Int("added", added).Int("size", v.scores.Len()).Msg("score vector grown")
	}
	v.state.growLastQueried(v.scores.Len())

	part := selector.Select(view, v.state.LastQueried, selector.Params{
		MinStake:   v.settings.MinStake,
		MaxTargets: v.settings.MaxTargets,
		OwnUID:     v.settings.OwnUID,
		Seed:       v.settings.SelectionSeed,
		Step:       step,
	})
	log.Info().
		Int("to_query", len(part.ToQuery)).
		Int("blacklisted", len(part.Blacklisted)).
		Int("not_queried", len(part.NotQueried)).
		Msg("peers selected")
	v.deps.Metrics.SetPartition(len(part.ToQuery), len(part.Blacklisted), len(part.NotQueried))

	results, err := v.query(ctx, view, part.ToQuery, ref, log)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	v.decayAll(part.Blacklisted, "blacklisted", log)
	v.decayAll(part.NotQueried, "not_queried", log)

	answered := 0
	for _, r := range results {
		if r.Responded() {
			answered++
		}
	}
	v.deps.Metrics.AddResponses(answered, len(results)-answered)
	if answered == 0 {
		log.Warn().Dur("backoff", v.settings.EmptyResponseBackoff).Msg("no peer answered, backing off")
		if !v.sleep(ctx, v.settings.EmptyResponseBackoff) {
			return ctx.Err()
		}
	}

	for _, r := range results {
		v.state.LastQueried[r.UID] = int64(step)
		before, _ := v.scores.Score(r.UID)
		if !r.Responded() {
			if err := v.scores.Decay(r.UID); err != nil {
				return verrors.NewUnexpectedError("decay failed", err)
			}
			continue
		}
		quality, err := v.deps.Evaluator.Evaluate(r.Payload, ref)
		if err != nil {
			log.Debug().Int("uid", r.UID).Err(err).Msg("response could not be evaluated")
			quality = 0
		}
		if err := v.scores.Update(r.UID, quality); err != nil {
			return verrors.NewUnexpectedError("update failed", err)
		}
		after, _ := v.scores.Score(r.UID)
		log.Debug().Int("uid", r.UID).Float64("quality", quality).Float64("before", before).Float64("after", after).Msg("score updated")
	}

	block, commitErr := v.maybeCommit(ctx, step, log)

	v.state.Step++
	v.deps.Metrics.SetScores(v.scores.Scores())
	v.deps.Metrics.SetBlocks(block, v.state.LastUpdatedBlock)
	if v.deps.Pool != nil {
		for _, ep := range v.deps.Pool.Stats().Endpoints {
			v.deps.Metrics.SetEndpointHealth(ep.URL, ep.HealthScore)
		}
	}
	v.publish(block, part, answered, commitErr)
	return commitErr
}

func (v *Validator) fetchReference(ctx context.Context, log zerolog.Logger) *refdata.Snapshot {
	if v.deps.Reference == nil {
		return nil
	}
	ref, err := Await(ctx, v.bridge, v.settings.LedgerCallTimeout, v.deps.Reference.Fetch)
	if err != nil {
		log.Warn().Err(err).Bool("stale", ref != nil).Msg("reference data unavailable")
	}
	return ref
}

// refreshMembership refreshes the view on the light cadence and fully syncs on the
// full cadence or while the view is still empty. A failed refresh keeps the stale view.
func (v *Validator) refreshMembership(ctx context.Context, log zerolog.Logger) {
	step := v.state.Step
	full := v.state.View.Size() == 0 || v.state.View.Validate() != nil || step%v.settings.FullSyncEvery == 0
	light := step%v.settings.LightRefreshEvery == 0
	if !full && !light {
		return
	}

	prev := v.state.View
	fetch := v.deps.Syncer.RefreshLight
	if full {
		fetch = v.deps.Syncer.Sync
	}
	next, err := Await(ctx, v.bridge, v.settings.LedgerCallTimeout, func(ctx context.Context) (*membership.View, error) {
		return fetch(ctx, prev)
	})
	if err != nil {
		log.Warn().Err(err).Bool("full", full).Msg("membership refresh failed, keeping stale view")
	}
	if next != nil && next != prev {
		for _, uid := range next.IdentityChanges(&membership.View{Hotkeys: v.knownHotkeys}) {
			if uid < v.scores.Len() {
				_ = v.scores.Reset(uid)
				v.state.LastQueried[uid] = selector.NeverQueried
				log.Info().Int("uid", uid).Str("hotkey", next.Hotkeys[uid]).Msg("uid changed owner, score reset")
			}
		}
		v.state.View = next
		v.rememberHotkeys(next)
		v.deps.Metrics.SetMembershipSize(next.Size())
	}

	if light {
		v.saveState(ctx)
	}
}

func (v *Validator) rememberHotkeys(view *membership.View) {
	for uid, hk := range view.Hotkeys {
		if uid < len(v.knownHotkeys) {
			v.knownHotkeys[uid] = hk
		} else {
			v.knownHotkeys = append(v.knownHotkeys, hk)
		}
	}
}

func (v *Validator) query(ctx context.Context, view *membership.View, toQuery []int, ref *refdata.Snapshot, log zerolog.Logger) ([]dispatch.Result, error) {
	if len(toQuery) == 0 {
		log.Warn().Msg("no peers to query this round")
		return nil, nil
	}

	q := protocol.Query{
		SubnetVersion:   constant.SubnetVersion,
		ValidatorUID:    v.settings.OwnUID,
		ValidatorHotkey: v.settings.Hotkey,
		SentAt:          time.Now().UTC(),
	}
	if ref != nil {
		q.Wallets = make([]protocol.Wallet, len(ref.Wallets))
		for i, w := range ref.Wallets {
			q.Wallets[i] = protocol.Wallet{Address: w.Address, Transactions: w.Transactions}
		}
	}
	payload, err := q.Encode()
	if err != nil {
		return nil, verrors.NewUnexpectedError("failed to build query", err)
	}
	return v.deps.Dispatcher.Dispatch(ctx, view, toQuery, payload, v.settings.QueryTimeout), nil
}

func (v *Validator) decayAll(uids []int, set string, log zerolog.Logger) {
	for _, uid := range uids {
		before, err := v.scores.Score(uid)
		if err != nil {
			continue
		}
		_ = v.scores.Decay(uid)
		after, _ := v.scores.Score(uid)
		log.Debug().Str("set", set).Int("uid", uid).Float64("before", before).Float64("after", after).Msg("score decayed")
	}
}

// maybeCommit reads the ledger height and runs the commit gate. A failed height
// read triggers one reconnect and skips the commit for this round.
func (v *Validator) maybeCommit(ctx context.Context, step uint64, log zerolog.Logger) (uint64, error) {
	block, err := Await(ctx, v.bridge, v.settings.LedgerCallTimeout, v.deps.Ledger.CurrentBlock)
	if err != nil {
		log.Warn().Err(err).Msg("failed to read ledger height")
		if ctx.Err() == nil && !v.deps.Ledger.Connected() {
			if rerr := AwaitErr(ctx, v.bridge, v.settings.LedgerCallTimeout, v.deps.Ledger.Reconnect); rerr != nil {
				log.Error().Err(rerr).Msg("ledger reconnect failed")
			}
		}
		return 0, nil
	}

	// An in-flight commit is allowed to finish or time out even when shutdown begins.
	commitCtx := context.WithoutCancel(ctx)
	res, err := Await(commitCtx, v.bridge, 2*v.settings.LedgerCallTimeout, func(ctx context.Context) (commit.Result, error) {
		return v.deps.Committer.MaybeCommit(ctx, commit.Input{
			Step:             step,
			CurrentBlock:     block,
			LastUpdatedBlock: v.state.LastUpdatedBlock,
			Scores:           v.scores.Scores(),
		})
	})
	if res.Attempted {
		v.deps.Metrics.ObserveCommit(res.Success)
	}
	if res.Success {
		v.state.LastUpdatedBlock = res.LastUpdatedBlock
	}
	log.Info().
		Uint64("block", block).
		Uint64("last_updated_block", v.state.LastUpdatedBlock).
		Bool("attempted", res.Attempted).
		Bool("success", res.Success).
		Msg("commit check")
	return block, err
}

func (v *Validator) saveState(ctx context.Context) {
	if v.deps.Store == nil {
		return
	}
	snap := snapshotOf(v.settings.NetUID, &v.state, v.scores.Scores(), v.knownHotkeys)
	if err := v.deps.Store.Save(context.WithoutCancel(ctx), snap); err != nil {
		v.logger.Warn().Err(err).Msg("failed to save validator state")
	}
}

func (v *Validator) publish(block uint64, part selector.Partition, answered int, roundErr error) {
	st := &Status{
		Step:             v.state.Step,
		NetUID:           v.settings.NetUID,
		LastUpdatedBlock: v.state.LastUpdatedBlock,
		CurrentBlock:     block,
		MembershipSize:   v.state.View.Size(),
		ToQuery:          len(part.ToQuery),
		Blacklisted:      len(part.Blacklisted),
		NotQueried:       len(part.NotQueried),
		Answered:         answered,
		LastRoundAt:      time.Now().UTC(),
		Scores:           v.scores.Scores(),
	}
	if v.state.View != nil {
		st.MembershipBlock = v.state.View.Block
		st.Hotkeys = append([]string(nil), v.state.View.Hotkeys...)
	}
	if v.deps.Ledger != nil {
		st.LedgerConnected = v.deps.Ledger.Connected()
	}
	if roundErr != nil {
		st.LastRoundError = roundErr.Error()
	}
	v.status.Store(st)
}

// Status returns the state published after the last round.
func (v *Validator) Status() *Status {
	return v.status.Load()
}

// Step returns the current round number. Only safe from the loop goroutine or after Run returned.
func (v *Validator) Step() uint64 {
	return v.state.Step
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// SetServer registers the query server stopped on shutdown. Call before Run.
func (v *Validator) SetServer(server Closer) {
	v.deps.Server = server
}
