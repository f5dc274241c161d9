// Package store contains GORM-backed SQLite models used by the validator.
//
// Database Structure (database file: validator_state.db):
//
//	databases/
//	└── validator_state.db
//	    ├── validator_states
//	    ├── score_entries
//	    ├── member_entries
//	    └── weight_commits
package store

import (
	"gorm.io/gorm"
)

// ValidatorState holds the scalar part of the validator snapshot.
// One record per database.
type ValidatorState struct {
	gorm.Model
	Step             uint64 // Monotonic round number
	LastUpdatedBlock uint64 // Ledger height at the last successful weight commit
	NetUID           uint16 // Subnet the snapshot belongs to
}

// ScoreEntry is one slot of the dense score vector.
type ScoreEntry struct {
	UID         uint32  `gorm:"primaryKey;autoIncrement:false"`
	Score       float64 `gorm:"not null"`
	LastQueried int64   `gorm:"not null;default:-1"` // Step the uid was last queried, -1 if never
}

// MemberEntry records the identity held by a uid when the snapshot was taken,
// so a restored validator can detect replaced participants.
type MemberEntry struct {
	UID    uint32 `gorm:"primaryKey;autoIncrement:false"`
	Hotkey string `gorm:"not null"`
}

// WeightCommit tracks weight submissions sent to the ledger.
type WeightCommit struct {
	gorm.Model
	Block    uint64 `gorm:"index;not null"` // Ledger height the commit was attempted at
	Step     uint64 // Round that attempted the commit
	UIDCount int    // Number of non-zero weights submitted
	Success  bool   `gorm:"index"`
	ErrorMsg string `gorm:"type:text"` // Error message if the commit failed
}
