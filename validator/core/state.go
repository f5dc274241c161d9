package core

import (
	"time"

	"github.com/palaidn/palaidn/validator/membership"
	"github.com/palaidn/palaidn/validator/selector"
	"github.com/palaidn/palaidn/validator/statestore"
)

// State is the long-lived validator state. Only the round loop mutates it.
type State struct {
	Step             uint64
	LastUpdatedBlock uint64
	View             *membership.View
	// LastQueried holds the step each uid was last queried at, selector.NeverQueried if never.
	LastQueried []int64
}

func (s *State) growLastQueried(size int) {
	for len(s.LastQueried) < size {
		s.LastQueried = append(s.LastQueried, selector.NeverQueried)
	}
}

// Status is an immutable copy of the state published after every round for readers
// outside the loop.
type Status struct {
	Step             uint64    `json:"step"`
	NetUID           uint16    `json:"netuid"`
	LastUpdatedBlock uint64    `json:"last_updated_block"`
	CurrentBlock     uint64    `json:"current_block"`
	MembershipSize   int       `json:"membership_size"`
	MembershipBlock  uint64    `json:"membership_block"`
	ToQuery          int       `json:"to_query"`
	Blacklisted      int       `json:"blacklisted"`
	NotQueried       int       `json:"not_queried"`
	Answered         int       `json:"answered"`
	LedgerConnected  bool      `json:"ledger_connected"`
	LastRoundAt      time.Time `json:"last_round_at"`
	LastRoundError   string    `json:"last_round_error,omitempty"`
	Scores           []float64 `json:"scores"`
	Hotkeys          []string  `json:"hotkeys"`
}

func snapshotOf(netUID uint16, st *State, scores []float64, hotkeys []string) statestore.Snapshot {
	return statestore.Snapshot{
		NetUID:           netUID,
		Step:             st.Step,
		LastUpdatedBlock: st.LastUpdatedBlock,
		Scores:           scores,
		LastQueried:      append([]int64(nil), st.LastQueried...),
		Hotkeys:          append([]string(nil), hotkeys...),
	}
}
