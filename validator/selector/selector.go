// Package selector splits the membership into the peers queried this round,
// the ones blacklisted by the stake floor and the rest.
package selector

import (
	"math/rand"
	"sort"

	"github.com/palaidn/palaidn/validator/membership"
)

// NeverQueried marks a uid that was not queried yet.
const NeverQueried int64 = -1

// Params are the selection knobs for one round.
type Params struct {
	MinStake   float64
	MaxTargets int
	// OwnUID is the validator's own uid, -1 when it is not registered.
	OwnUID int
	Seed   int64
	Step   uint64
}

// Partition is the per-round split of the membership. Each uid is in exactly one set.
type Partition struct {
	// ToQuery is ordered; responses are aligned to it.
	ToQuery     []int
	Blacklisted []int
	NotQueried  []int
}

// Size returns the number of uids across the three sets.
func (p Partition) Size() int {
	return len(p.ToQuery) + len(p.Blacklisted) + len(p.NotQueried)
}

// Select partitions the view.
//
// Uids with stake below MinStake are blacklisted. Of the rest, the validator's own uid
// and uids without a serving endpoint are not queried. Remaining candidates are
// ordered by the step they were last queried at (never queried first) with ties
// broken by a permutation seeded from Seed and Step, and the first MaxTargets are queried.
func Select(view *membership.View, lastQueried []int64, p Params) Partition {
	n := view.Size()
	var part Partition
	candidates := make([]int, 0, n)

	for uid := 0; uid < n; uid++ {
		switch {
		case view.Stake[uid] < p.MinStake:
			part.Blacklisted = append(part.Blacklisted, uid)
		case uid == p.OwnUID, !view.Endpoints[uid].Serving():
			part.NotQueried = append(part.NotQueried, uid)
		default:
			candidates = append(candidates, uid)
		}
	}

	rank := rand.New(rand.NewSource(p.Seed ^ int64(p.Step))).Perm(n)
	last := func(uid int) int64 {
		if uid < len(lastQueried) {
			return lastQueried[uid]
		}
		return NeverQueried
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if la, lb := last(a), last(b); la != lb {
			return la < lb
		}
		return rank[a] < rank[b]
	})

	limit := p.MaxTargets
	if limit < 0 {
		limit = 0
	}
	if limit > len(candidates) {
		limit = len(candidates)
	}
	part.ToQuery = append(part.ToQuery, candidates[:limit]...)
	part.NotQueried = append(part.NotQueried, candidates[limit:]...)

	sort.Ints(part.ToQuery)
	sort.Ints(part.NotQueried)
	return part
}
