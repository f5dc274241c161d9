package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAwait_ReturnsResult(t *testing.T) {
	b := NewBridge(1)
	v, err := Await(context.Background(), b, time.Second, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestAwait_PropagatesError(t *testing.T) {
	b := NewBridge(1)
	boom := errors.New("boom")
	err := AwaitErr(context.Background(), b, time.Second, func(ctx context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestAwait_TimesOut(t *testing.T) {
	b := NewBridge(1)
	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	_, err := Await(context.Background(), b, 50*time.Millisecond, func(ctx context.Context) (int, error) {
		<-release
		return 1, nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestAwait_BoundsWorkers(t *testing.T) {
	b := NewBridge(1)
	release := make(chan struct{})
	started := make(chan struct{})

	go func() {
		_ = AwaitErr(context.Background(), b, time.Minute, func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	err := AwaitErr(context.Background(), b, 50*time.Millisecond, func(ctx context.Context) error {
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded, "second call waits for the only worker")
	close(release)
}
