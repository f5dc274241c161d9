package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palaidn/palaidn/validator/store"
)

func TestOpen(t *testing.T) {
	t.Run("in memory", func(t *testing.T) {
		d, err := OpenInMemoryDB(true)
		require.NoError(t, err)
		assert.Equal(t, InMemorySQLiteDSN, d.Path())

		roundTripState(t, d)
		assert.NoError(t, d.Close())
	})

	t.Run("file creates nested directories", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "home", "databases")

		d, err := OpenFileDB(dir, "validator_state.db", true)
		require.NoError(t, err)
		assert.FileExists(t, filepath.Join(dir, "validator_state.db"))
		assert.Equal(t, filepath.Join(dir, "validator_state.db"), d.Path())

		roundTripState(t, d)
		require.NoError(t, d.Close())
	})

	t.Run("file survives reopen", func(t *testing.T) {
		dir := t.TempDir()
		d, err := OpenFileDB(dir, "state.db", true)
		require.NoError(t, err)
		require.NoError(t, d.Client().Create(&store.WeightCommit{Block: 7, Success: true}).Error)
		require.NoError(t, d.Close())

		d, err = OpenFileDB(dir, "state.db", false)
		require.NoError(t, err)
		defer d.Close()

		var commit store.WeightCommit
		require.NoError(t, d.Client().First(&commit).Error)
		assert.Equal(t, uint64(7), commit.Block)
	})
}

func roundTripState(t *testing.T, d *DB) {
	t.Helper()
	require.NoError(t, d.Client().Create(&store.ValidatorState{Step: 42, LastUpdatedBlock: 10101, NetUID: 30}).Error)

	var got store.ValidatorState
	require.NoError(t, d.Client().First(&got).Error)
	assert.Equal(t, uint64(42), got.Step)
	assert.Equal(t, uint64(10101), got.LastUpdatedBlock)

	scores := []store.ScoreEntry{{UID: 0, Score: 0.5, LastQueried: -1}, {UID: 1, Score: 0.25, LastQueried: 3}}
	require.NoError(t, d.Client().Create(&scores).Error)

	var count int64
	require.NoError(t, d.Client().Model(&store.ScoreEntry{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}
