// Package db opens the SQLite database holding the validator snapshot
// (round counter, score vector, membership identities) and the weight commit history.
package db

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/palaidn/palaidn/validator/store"
)

// InMemorySQLiteDSN creates an ephemeral database that lives as long as its single connection.
const InMemorySQLiteDSN = ":memory:"

// fileDSNOptions turns on WAL so the query server can read while the round loop writes.
const fileDSNOptions = "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"

// models are migrated in this order on open.
var models = []any{
	&store.ValidatorState{},
	&store.ScoreEntry{},
	&store.MemberEntry{},
	&store.WeightCommit{},
}

// DB owns the gorm handle for the validator database.
type DB struct {
	client *gorm.DB
	path   string
}

// OpenFileDB opens <dir>/<filename>, creating the directory when missing.
// migrateSchema runs AutoMigrate for every validator model.
func OpenFileDB(dir, filename string, migrateSchema bool) (*DB, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.Wrapf(err, "failed to create database directory %s", dir)
	}
	path := filepath.Join(dir, filename)
	return open(path, path+fileDSNOptions, migrateSchema)
}

// OpenInMemoryDB opens a throwaway database.
func OpenInMemoryDB(migrateSchema bool) (*DB, error) {
	return open(InMemorySQLiteDSN, InMemorySQLiteDSN, migrateSchema)
}

func open(path, dsn string, migrateSchema bool) (*DB, error) {
	client, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open sqlite database %s", path)
	}

	sqlDB, err := client.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get underlying sql.DB")
	}
	// One connection: sqlite serializes writers anyway and :memory: is per connection.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	d := &DB{client: client, path: path}
	if migrateSchema {
		if err := client.AutoMigrate(models...); err != nil {
			_ = d.Close()
			return nil, errors.Wrap(err, "failed to migrate validator schema")
		}
	}
	return d, nil
}

// Client returns the gorm handle.
func (d *DB) Client() *gorm.DB {
	return d.client
}

// Path returns the database file, or InMemorySQLiteDSN.
func (d *DB) Path() string {
	return d.path
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	sqlDB, err := d.client.DB()
	if err != nil {
		return errors.Wrap(err, "failed to retrieve native sql.DB")
	}
	return errors.Wrap(sqlDB.Close(), "failed to close database connection")
}
