package core

import (
	"context"
	"time"

	"github.com/palaidn/palaidn/validator/commit"
	"github.com/palaidn/palaidn/validator/dispatch"
	"github.com/palaidn/palaidn/validator/membership"
	"github.com/palaidn/palaidn/validator/refdata"
	"github.com/palaidn/palaidn/validator/statestore"
)

// Ledger is the ledger connection as seen by the round loop.
type Ledger interface {
	CurrentBlock(ctx context.Context) (uint64, error)
	Connected() bool
	Reconnect(ctx context.Context) error
}

// MembershipSyncer refreshes the membership view. On failure it returns the
// view it was given together with the error.
type MembershipSyncer interface {
	Sync(ctx context.Context, current *membership.View) (*membership.View, error)
	RefreshLight(ctx context.Context, current *membership.View) (*membership.View, error)
}

// Dispatcher fans a query out to peers.
type Dispatcher interface {
	Dispatch(ctx context.Context, view *membership.View, toQuery []int, payload []byte, timeout time.Duration) []dispatch.Result
}

// Evaluator converts a peer answer into a quality signal in [0,1].
type Evaluator interface {
	Evaluate(payload []byte, ref *refdata.Snapshot) (float64, error)
}

// ReferenceSource provides the reference data for a round.
type ReferenceSource interface {
	Fetch(ctx context.Context) (*refdata.Snapshot, error)
}

// Committer gates and performs weight commits.
type Committer interface {
	MaybeCommit(ctx context.Context, in commit.Input) (commit.Result, error)
}

// StateStore persists the validator snapshot.
type StateStore interface {
	Save(ctx context.Context, snap statestore.Snapshot) error
	Load(ctx context.Context) (statestore.Snapshot, bool, error)
	Clear(ctx context.Context) error
}

// Closer is an inbound-serving resource stopped on shutdown.
type Closer interface {
	Stop() error
}
