package commit

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	verrors "github.com/palaidn/palaidn/validator/errors"
	"github.com/palaidn/palaidn/validator/store"
)

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) CurrentBlock(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockLedger) SubmitWeights(ctx context.Context, netUID uint16, hotkey string, uids, weights []uint16) (bool, error) {
	args := m.Called(ctx, netUID, hotkey, uids, weights)
	return args.Bool(0), args.Error(1)
}

func (m *MockLedger) Connected() bool {
	return m.Called().Bool(0)
}

func (m *MockLedger) Reconnect(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type recordingHistory struct {
	entries []store.WeightCommit
}

func (h *recordingHistory) RecordCommit(_ context.Context, c store.WeightCommit) error {
	h.entries = append(h.entries, c)
	return nil
}

func newTestCommitter(l Ledger, h History) *Committer {
	return NewCommitter(l, h, 30, "vhk", 300, zerolog.Nop())
}

func TestCommitter_Gate(t *testing.T) {
	c := newTestCommitter(&MockLedger{}, nil)

	tests := []struct {
		current, last uint64
		want          bool
	}{
		{1000, 699, true},
		{1000, 700, false},
		{1000, 1000, false},
		{100, 500, false},
		{301, 0, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.Due(tt.current, tt.last), "current=%d last=%d", tt.current, tt.last)
	}
}

func TestCommitter_MaybeCommit(t *testing.T) {
	ctx := context.Background()
	scores := []float64{0, 0.25, 0.75}

	t.Run("closed gate is a no-op", func(t *testing.T) {
		l := &MockLedger{}
		h := &recordingHistory{}
		res, err := newTestCommitter(l, h).MaybeCommit(ctx, Input{CurrentBlock: 1000, LastUpdatedBlock: 900, Scores: scores})
		require.NoError(t, err)
		assert.Equal(t, Result{LastUpdatedBlock: 900}, res)
		l.AssertNotCalled(t, "SubmitWeights", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		assert.Empty(t, h.entries)
	})

	t.Run("success stores the fresh block", func(t *testing.T) {
		l := &MockLedger{}
		h := &recordingHistory{}
		l.On("Connected").Return(true)
		l.On("SubmitWeights", mock.Anything, uint16(30), "vhk", []uint16{1, 2}, []uint16{21845, 65535}).Return(true, nil)
		l.On("CurrentBlock", mock.Anything).Return(uint64(1003), nil)

		res, err := newTestCommitter(l, h).MaybeCommit(ctx, Input{Step: 9, CurrentBlock: 1001, LastUpdatedBlock: 600, Scores: scores})
		require.NoError(t, err)
		assert.Equal(t, Result{Attempted: true, Success: true, LastUpdatedBlock: 1003}, res)
		l.AssertExpectations(t)

		require.Len(t, h.entries, 1)
		assert.True(t, h.entries[0].Success)
		assert.Equal(t, uint64(1003), h.entries[0].Block)
		assert.Equal(t, 2, h.entries[0].UIDCount)
	})

	t.Run("fresh block read failure falls back to the gate block", func(t *testing.T) {
		l := &MockLedger{}
		l.On("Connected").Return(true)
		l.On("SubmitWeights", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(true, nil)
		l.On("CurrentBlock", mock.Anything).Return(uint64(0), assert.AnError)

		res, err := newTestCommitter(l, nil).MaybeCommit(ctx, Input{CurrentBlock: 1001, LastUpdatedBlock: 600, Scores: scores})
		require.NoError(t, err)
		assert.Equal(t, uint64(1001), res.LastUpdatedBlock)
	})

	t.Run("rejected submission leaves last updated block", func(t *testing.T) {
		l := &MockLedger{}
		h := &recordingHistory{}
		l.On("Connected").Return(true)
		l.On("SubmitWeights", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
		c := newTestCommitter(l, h)

		res, err := c.MaybeCommit(ctx, Input{CurrentBlock: 1001, LastUpdatedBlock: 600, Scores: scores})
		require.Error(t, err)
		assert.True(t, verrors.IsCode(err, verrors.ErrCodeCommitFailure))
		assert.Equal(t, Result{Attempted: true, LastUpdatedBlock: 600}, res)
		assert.True(t, c.Due(1001, res.LastUpdatedBlock))
		require.Len(t, h.entries, 1)
		assert.False(t, h.entries[0].Success)
		assert.NotEmpty(t, h.entries[0].ErrorMsg)
	})

	t.Run("broken connection gets exactly one reconnect", func(t *testing.T) {
		l := &MockLedger{}
		l.On("Connected").Return(false)
		l.On("Reconnect", mock.Anything).Return(nil).Once()
		l.On("SubmitWeights", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(true, nil)
		l.On("CurrentBlock", mock.Anything).Return(uint64(1001), nil)

		res, err := newTestCommitter(l, nil).MaybeCommit(ctx, Input{CurrentBlock: 1001, LastUpdatedBlock: 600, Scores: scores})
		require.NoError(t, err)
		assert.True(t, res.Success)
		l.AssertNumberOfCalls(t, "Reconnect", 1)
	})

	t.Run("failed reconnect gives up for the round", func(t *testing.T) {
		l := &MockLedger{}
		l.On("Connected").Return(false)
		l.On("Reconnect", mock.Anything).Return(verrors.NewConnectionLostError("down", nil))

		res, err := newTestCommitter(l, nil).MaybeCommit(ctx, Input{CurrentBlock: 1001, LastUpdatedBlock: 600, Scores: scores})
		require.Error(t, err)
		assert.True(t, verrors.IsCode(err, verrors.ErrCodeConnectionLost))
		assert.Equal(t, uint64(600), res.LastUpdatedBlock)
		l.AssertNumberOfCalls(t, "Reconnect", 1)
		l.AssertNotCalled(t, "SubmitWeights", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("connection lost during submission triggers one reconnect", func(t *testing.T) {
		l := &MockLedger{}
		l.On("Connected").Return(true)
		l.On("SubmitWeights", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(false, verrors.NewConnectionLostError("ledger call failed", assert.AnError))
		l.On("Reconnect", mock.Anything).Return(nil)

		res, err := newTestCommitter(l, nil).MaybeCommit(ctx, Input{CurrentBlock: 1001, LastUpdatedBlock: 600, Scores: scores})
		require.Error(t, err)
		assert.True(t, verrors.IsCode(err, verrors.ErrCodeCommitFailure))
		assert.False(t, res.Success)
		l.AssertNumberOfCalls(t, "Reconnect", 1)
	})

	t.Run("all zero scores are not submitted even with the gate open", func(t *testing.T) {
		l := &MockLedger{}
		h := &recordingHistory{}
		c := newTestCommitter(l, h)
		require.True(t, c.Due(1001, 600))

		res, err := c.MaybeCommit(ctx, Input{Step: 4, CurrentBlock: 1001, LastUpdatedBlock: 600, Scores: []float64{0, 0}})
		require.Error(t, err)
		assert.True(t, verrors.IsCode(err, verrors.ErrCodeCommitFailure))
		assert.False(t, res.Attempted)
		assert.False(t, res.Success)
		assert.Equal(t, uint64(600), res.LastUpdatedBlock)
		l.AssertNotCalled(t, "Connected")
		l.AssertNotCalled(t, "SubmitWeights", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)

		require.Len(t, h.entries, 1)
		assert.False(t, h.entries[0].Success)
		assert.Equal(t, 0, h.entries[0].UIDCount)
		assert.Equal(t, uint64(4), h.entries[0].Step)
	})

	t.Run("empty score vector is not submitted", func(t *testing.T) {
		l := &MockLedger{}
		res, err := newTestCommitter(l, nil).MaybeCommit(ctx, Input{CurrentBlock: 1001, LastUpdatedBlock: 600})
		require.Error(t, err)
		assert.False(t, res.Attempted)
		l.AssertNotCalled(t, "SubmitWeights", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestToLedgerWeights(t *testing.T) {
	uids, weights := ToLedgerWeights([]float64{0.5, 0, 0.25, 0.25})
	assert.Equal(t, []uint16{0, 2, 3}, uids)
	assert.Equal(t, []uint16{65535, 32768, 32768}, weights)

	uids, weights = ToLedgerWeights([]float64{1, 1e-9})
	assert.Equal(t, []uint16{0}, uids)
	assert.Equal(t, []uint16{65535}, weights)

	uids, weights = ToLedgerWeights([]float64{0, 0})
	assert.Nil(t, uids)
	assert.Nil(t, weights)
}
