// Package protocol defines the messages exchanged between the validator and the peers it queries.
package protocol

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// Route is the path peers serve queries on.
const Route = "/PalaidnData"

// Wallet is one wallet the validator wants classified, with its known transactions.
type Wallet struct {
	Address      string   `json:"address"`
	Transactions []string `json:"transactions,omitempty"`
}

// Query is the payload sent to every queried peer in a round.
type Query struct {
	SubnetVersion   int       `json:"subnet_version"`
	ValidatorUID    int       `json:"validator_uid"`
	ValidatorHotkey string    `json:"validator_hotkey"`
	Wallets         []Wallet  `json:"wallets"`
	SentAt          time.Time `json:"sent_at"`
}

// WalletReport is a peer's verdict for one wallet: the transactions it flags.
type WalletReport struct {
	Address             string   `json:"address"`
	FlaggedTransactions []string `json:"flagged_transactions"`
}

// Response is what a peer answers.
type Response struct {
	Reports []WalletReport `json:"reports"`
}

// Encode serializes a query.
func (q *Query) Encode() ([]byte, error) {
	b, err := json.Marshal(q)
	if err != nil {
		return nil, errors.Wrap(err, "encode query")
	}
	return b, nil
}

// DecodeResponse parses a peer's answer.
func DecodeResponse(payload []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, errors.Wrap(err, "decode response")
	}
	return &resp, nil
}
