package api

import (
	"context"

	"github.com/palaidn/palaidn/validator/core"
	"github.com/palaidn/palaidn/validator/rpcpool"
	"github.com/palaidn/palaidn/validator/store"
)

// StatusProvider exposes the state published by the round loop.
type StatusProvider interface {
	Status() *core.Status
}

// CommitHistory lists recorded weight commits.
type CommitHistory interface {
	RecentCommits(ctx context.Context, limit int) ([]store.WeightCommit, error)
}

// PoolStatsProvider reports ledger endpoint pool health.
type PoolStatsProvider interface {
	Stats() rpcpool.PoolStats
}
