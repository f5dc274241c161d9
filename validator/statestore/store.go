// Package statestore persists the validator snapshot between restarts and
// keeps the history of weight commits.
package statestore

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/palaidn/palaidn/validator/store"
)

const (
	// stateRowID is the single row holding the scalar part of the snapshot.
	stateRowID = 1

	insertBatchSize = 256
)

// Snapshot is the persisted form of the validator state.
type Snapshot struct {
	NetUID           uint16
	Step             uint64
	LastUpdatedBlock uint64
	Scores           []float64
	LastQueried      []int64
	Hotkeys          []string
}

// Store provides database access for the validator snapshot.
type Store struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewStore creates a new snapshot store.
func NewStore(db *gorm.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "state_store").Logger(),
	}
}

// Save replaces the persisted snapshot atomically.
func (s *Store) Save(ctx context.Context, snap Snapshot) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		state := store.ValidatorState{
			Step:             snap.Step,
			LastUpdatedBlock: snap.LastUpdatedBlock,
			NetUID:           snap.NetUID,
		}
		state.ID = stateRowID
		if err := tx.Save(&state).Error; err != nil {
			return errors.Wrap(err, "failed to save validator state")
		}

		if err := tx.Where("1 = 1").Delete(&store.ScoreEntry{}).Error; err != nil {
			return errors.Wrap(err, "failed to clear score entries")
		}
		if err := tx.Where("1 = 1").Delete(&store.MemberEntry{}).Error; err != nil {
			return errors.Wrap(err, "failed to clear member entries")
		}

		if len(snap.Scores) > 0 {
			scores := make([]store.ScoreEntry, len(snap.Scores))
			for uid, score := range snap.Scores {
				lastQueried := int64(-1)
				if uid < len(snap.LastQueried) {
					lastQueried = snap.LastQueried[uid]
				}
				scores[uid] = store.ScoreEntry{UID: uint32(uid), Score: score, LastQueried: lastQueried}
			}
			if err := tx.CreateInBatches(scores, insertBatchSize).Error; err != nil {
				return errors.Wrap(err, "failed to save score entries")
			}
		}

		if len(snap.Hotkeys) > 0 {
			members := make([]store.MemberEntry, len(snap.Hotkeys))
			for uid, hotkey := range snap.Hotkeys {
				members[uid] = store.MemberEntry{UID: uint32(uid), Hotkey: hotkey}
			}
			if err := tx.CreateInBatches(members, insertBatchSize).Error; err != nil {
				return errors.Wrap(err, "failed to save member entries")
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Debug().
		Uint64("step", snap.Step).
		Uint64("last_updated_block", snap.LastUpdatedBlock).
		Int("scores", len(snap.Scores)).
		Msg("state saved")
	return nil
}

// Load returns the persisted snapshot. The boolean is false when nothing was saved yet.
func (s *Store) Load(ctx context.Context) (Snapshot, bool, error) {
	db := s.db.WithContext(ctx)

	var state store.ValidatorState
	err := db.First(&state, stateRowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, errors.Wrap(err, "failed to load validator state")
	}

	var scores []store.ScoreEntry
	if err := db.Order("uid ASC").Find(&scores).Error; err != nil {
		return Snapshot{}, false, errors.Wrap(err, "failed to load score entries")
	}
	var members []store.MemberEntry
	if err := db.Order("uid ASC").Find(&members).Error; err != nil {
		return Snapshot{}, false, errors.Wrap(err, "failed to load member entries")
	}

	snap := Snapshot{
		NetUID:           state.NetUID,
		Step:             state.Step,
		LastUpdatedBlock: state.LastUpdatedBlock,
	}

	// Entries are dense by construction; a gap would only come from manual edits,
	// in which case the missing slots restore as zero.
	if n := len(scores); n > 0 {
		size := int(scores[n-1].UID) + 1
		snap.Scores = make([]float64, size)
		snap.LastQueried = make([]int64, size)
		for i := range snap.LastQueried {
			snap.LastQueried[i] = -1
		}
		for _, e := range scores {
			snap.Scores[e.UID] = e.Score
			snap.LastQueried[e.UID] = e.LastQueried
		}
	}
	if n := len(members); n > 0 {
		snap.Hotkeys = make([]string, int(members[n-1].UID)+1)
		for _, m := range members {
			snap.Hotkeys[m.UID] = m.Hotkey
		}
	}

	return snap, true, nil
}

// Clear removes the persisted snapshot. Commit history is kept.
func (s *Store) Clear(ctx context.Context) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("1 = 1").Delete(&store.ValidatorState{}).Error; err != nil {
			return errors.Wrap(err, "failed to clear validator state")
		}
		if err := tx.Where("1 = 1").Delete(&store.ScoreEntry{}).Error; err != nil {
			return errors.Wrap(err, "failed to clear score entries")
		}
		if err := tx.Where("1 = 1").Delete(&store.MemberEntry{}).Error; err != nil {
			return errors.Wrap(err, "failed to clear member entries")
		}
		return nil
	})
}

// RecordCommit stores the outcome of a weight commit attempt.
func (s *Store) RecordCommit(ctx context.Context, commit store.WeightCommit) error {
	if err := s.db.WithContext(ctx).Create(&commit).Error; err != nil {
		return errors.Wrap(err, "failed to record weight commit")
	}
	return nil
}

// RecentCommits returns the latest commit attempts, newest first.
func (s *Store) RecentCommits(ctx context.Context, limit int) ([]store.WeightCommit, error) {
	if limit <= 0 {
		limit = 20
	}
	var commits []store.WeightCommit
	if err := s.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&commits).Error; err != nil {
		return nil, errors.Wrap(err, "failed to query weight commits")
	}
	return commits, nil
}
