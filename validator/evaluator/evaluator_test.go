package evaluator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palaidn/palaidn/validator/refdata"
)

func TestF1Evaluator_Evaluate(t *testing.T) {
	ref := &refdata.Snapshot{Wallets: []refdata.Wallet{
		{Address: "w1", FlaggedTransactions: []string{"a", "b"}},
		{Address: "w2"},
	}}

	tests := []struct {
		name    string
		payload string
		want    float64
	}{
		{
			name:    "perfect answer",
			payload: `{"reports":[{"address":"w1","flagged_transactions":["a","b"]},{"address":"w2","flagged_transactions":[]}]}`,
			want:    1,
		},
		{
			name:    "half right on one wallet",
			payload: `{"reports":[{"address":"w1","flagged_transactions":["a","c"]}]}`,
			// w1: tp=1, f1 = 2/4 = 0.5; w2: nothing reported and nothing flagged = 1
			want: 0.75,
		},
		{
			name:    "false positives on a clean wallet",
			payload: `{"reports":[{"address":"w1","flagged_transactions":["a","b"]},{"address":"w2","flagged_transactions":["x"]}]}`,
			want:    0.5,
		},
		{
			name:    "empty answer",
			payload: `{"reports":[]}`,
			want:    0.5,
		},
		{
			name:    "unknown wallets are ignored",
			payload: `{"reports":[{"address":"zz","flagged_transactions":["a"]},{"address":"w1","flagged_transactions":["a","b"]}]}`,
			want:    1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := F1Evaluator{}.Evaluate([]byte(tt.payload), ref)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestF1Evaluator_Errors(t *testing.T) {
	ref := &refdata.Snapshot{Wallets: []refdata.Wallet{{Address: "w1"}}}

	q, err := F1Evaluator{}.Evaluate([]byte("not json"), ref)
	assert.Error(t, err)
	assert.Zero(t, q)

	q, err = F1Evaluator{}.Evaluate([]byte(`{"reports":[]}`), nil)
	assert.ErrorIs(t, err, ErrNoReference)
	assert.Zero(t, q)
}
