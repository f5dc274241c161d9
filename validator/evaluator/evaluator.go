// Package evaluator turns a peer answer into a quality signal in [0,1].
package evaluator

import (
	"math"

	"github.com/pkg/errors"

	"github.com/palaidn/palaidn/validator/protocol"
	"github.com/palaidn/palaidn/validator/refdata"
)

// ErrNoReference is returned when there is nothing to score against.
var ErrNoReference = errors.New("no reference data")

// F1Evaluator scores the flagged transactions a peer reports per wallet against
// the reference and averages the per-wallet F1 over the reference wallets.
type F1Evaluator struct{}

// Evaluate implements the round's response evaluator. A payload that cannot be decoded scores 0.
func (F1Evaluator) Evaluate(payload []byte, ref *refdata.Snapshot) (float64, error) {
	if ref == nil || len(ref.Wallets) == 0 {
		return 0, ErrNoReference
	}
	resp, err := protocol.DecodeResponse(payload)
	if err != nil {
		return 0, err
	}

	reported := make(map[string][]string, len(resp.Reports))
	for _, r := range resp.Reports {
		reported[r.Address] = append(reported[r.Address], r.FlaggedTransactions...)
	}

	truth := ref.Lookup()
	total := 0.0
	for _, w := range ref.Wallets {
		total += f1(reported[w.Address], truth[w.Address])
	}
	return clamp(total / float64(len(ref.Wallets))), nil
}

func f1(predicted []string, truth map[string]struct{}) float64 {
	pred := make(map[string]struct{}, len(predicted))
	for _, tx := range predicted {
		pred[tx] = struct{}{}
	}
	if len(pred) == 0 && len(truth) == 0 {
		return 1
	}
	tp := 0
	for tx := range pred {
		if _, ok := truth[tx]; ok {
			tp++
		}
	}
	return 2 * float64(tp) / float64(len(pred)+len(truth))
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
