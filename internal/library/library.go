// Package library is the persistent catalog: a sqlite store holding
// tracks, albums and playlists, with a full-text index kept coherent with
// the tracks table by triggers.
package library

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver

	migrations "github.com/ariejan/apollo/db/migrations"
)

// Library provides access to the catalog database.
type Library struct {
	db  *sql.DB
	log *zap.Logger
}

// Open opens (creating if needed) the catalog database at path and applies
// pending migrations. Write transactions take the immediate lock.
func Open(path string, log *zap.Logger) (*Library, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create library dir: %w", err)
	}
	return open("file:"+path+"?"+dsnOptions(), log, 5)
}

// OpenMemory opens an in-memory catalog, used by tests. A single
// connection keeps the database alive for the Library's lifetime.
func OpenMemory(log *zap.Logger) (*Library, error) {
	return open("file::memory:?"+dsnOptions(), log, 1)
}

func dsnOptions() string {
	return "_txlock=immediate" +
		"&_pragma=foreign_keys(1)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(wal)"
}

func open(dsn string, log *zap.Logger, maxConns int) (*Library, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// WAL gives snapshot reads concurrent with the single writer; the
	// busy timeout serializes competing writers.
	db.SetMaxOpenConns(maxConns)

	if err := migrations.Run(db); err != nil {
		db.Close()
		return nil, err
	}
	log.Debug("catalog opened")
	return &Library{db: db, log: log}, nil
}

// DB exposes the underlying pool for collaborators that run their own
// read queries.
func (l *Library) DB() *sql.DB { return l.db }

// Close drains the connection pool.
func (l *Library) Close() error { return l.db.Close() }

// SchemaVersion returns the persisted schema version row.
func (l *Library) SchemaVersion() (int, error) {
	var v int
	err := l.db.QueryRow(`SELECT version FROM schema_version`).Scan(&v)
	return v, err
}
