package ledger

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/palaidn/palaidn/validator/membership"
)

// Full method names of the ledger service.
const (
	ServiceName = "palaidn.ledger.v1.Ledger"

	MethodCurrentBlock = "/" + ServiceName + "/CurrentBlock"
	MethodMembership   = "/" + ServiceName + "/Membership"
	MethodSetWeights   = "/" + ServiceName + "/SetWeights"
	MethodPing         = "/" + ServiceName + "/Ping"
)

type BlockRequest struct{}

type BlockResponse struct {
	Block uint64 `json:"block"`
}

type MembershipRequest struct {
	NetUID uint16 `json:"netuid"`
	Lite   bool   `json:"lite"`
}

// Neuron is one participant as published on the ledger.
type Neuron struct {
	UID       uint32  `json:"uid"`
	Hotkey    string  `json:"hotkey"`
	IP        string  `json:"ip"`
	Port      int     `json:"port"`
	Stake     float64 `json:"stake"`
	Rank      float64 `json:"rank"`
	Trust     float64 `json:"trust"`
	Consensus float64 `json:"consensus"`
	Incentive float64 `json:"incentive"`
	Emission  float64 `json:"emission"`
}

type MembershipResponse struct {
	Block   uint64   `json:"block"`
	Neurons []Neuron `json:"neurons"`
}

type SetWeightsRequest struct {
	NetUID     uint16   `json:"netuid"`
	Hotkey     string   `json:"hotkey"`
	UIDs       []uint16 `json:"uids"`
	Weights    []uint16 `json:"weights"`
	VersionKey uint64   `json:"version_key"`
}

type SetWeightsResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type PingRequest struct{}

type PingResponse struct{}

// ToView converts a membership response into a dense view. Uids must cover 0..n-1.
func (r *MembershipResponse) ToView(netUID uint16) (*membership.View, error) {
	neurons := make([]Neuron, len(r.Neurons))
	copy(neurons, r.Neurons)
	sort.Slice(neurons, func(i, j int) bool { return neurons[i].UID < neurons[j].UID })

	n := len(neurons)
	v := &membership.View{
		NetUID:    netUID,
		Block:     r.Block,
		Hotkeys:   make([]string, n),
		Endpoints: make([]membership.Endpoint, n),
		Stake:     make([]float64, n),
		Rank:      make([]float64, n),
		Trust:     make([]float64, n),
		Consensus: make([]float64, n),
		Incentive: make([]float64, n),
		Emission:  make([]float64, n),
	}
	for i, nr := range neurons {
		if int(nr.UID) != i {
			return nil, errors.Errorf("membership uids are not dense: expected uid %d, got %d", i, nr.UID)
		}
		v.Hotkeys[i] = nr.Hotkey
		v.Endpoints[i] = membership.Endpoint{IP: nr.IP, Port: nr.Port}
		v.Stake[i] = nr.Stake
		v.Rank[i] = nr.Rank
		v.Trust[i] = nr.Trust
		v.Consensus[i] = nr.Consensus
		v.Incentive[i] = nr.Incentive
		v.Emission[i] = nr.Emission
	}
	return v, nil
}
