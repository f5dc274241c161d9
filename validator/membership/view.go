// Package membership holds the validator's snapshot of the subnet participants
// and keeps it fresh from the ledger.
package membership

import (
	"github.com/pkg/errors"
)

// Endpoint is the network address a participant serves queries on.
type Endpoint struct {
	IP   string `json:"ip"`
	Port int    `json:"port"`
}

// Serving reports whether the participant published a reachable address.
func (e Endpoint) Serving() bool {
	return e.IP != "" && e.IP != "0.0.0.0" && e.Port > 0
}

// View is an immutable snapshot of the subnet. Every attribute slice is indexed by uid
// and has the same length. A refresh replaces the whole View.
type View struct {
	NetUID uint16
	Block  uint64

	Hotkeys   []string
	Endpoints []Endpoint
	Stake     []float64
	Rank      []float64
	Trust     []float64
	Consensus []float64
	Incentive []float64
	Emission  []float64
}

// Size returns the number of participants.
func (v *View) Size() int {
	if v == nil {
		return 0
	}
	return len(v.Hotkeys)
}

// Validate checks that every attribute vector covers the same uids.
func (v *View) Validate() error {
	if v == nil {
		return errors.New("nil membership view")
	}
	n := len(v.Hotkeys)
	lengths := map[string]int{
		"endpoints": len(v.Endpoints),
		"stake":     len(v.Stake),
		"rank":      len(v.Rank),
		"trust":     len(v.Trust),
		"consensus": len(v.Consensus),
		"incentive": len(v.Incentive),
		"emission":  len(v.Emission),
	}
	for name, l := range lengths {
		if l != n {
			return errors.Errorf("membership %s has %d entries, expected %d", name, l, n)
		}
	}
	return nil
}

// UIDs returns 0..Size()-1.
func (v *View) UIDs() []int {
	uids := make([]int, v.Size())
	for i := range uids {
		uids[i] = i
	}
	return uids
}

// IdentityChanges returns the uids present in both views whose hotkey differs,
// meaning a new participant took over the slot.
func (v *View) IdentityChanges(prev *View) []int {
	if prev == nil || v == nil {
		return nil
	}
	n := min(prev.Size(), v.Size())
	var changed []int
	for uid := 0; uid < n; uid++ {
		if prev.Hotkeys[uid] != v.Hotkeys[uid] {
			changed = append(changed, uid)
		}
	}
	return changed
}

// Empty returns a zero-sized view for the given subnet.
func Empty(netUID uint16) *View {
	return &View{NetUID: netUID}
}
