// Package sqlite implements component A's SQLite backend over the pure-Go
// (wazero) ncruces/go-sqlite3 driver, so the binary stays cgo-free.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/cuemby/ingestord/pkg/coordinator"
	"github.com/cuemby/ingestord/pkg/metakv/sqlstore"
)

var dialect = sqlstore.Dialect{
	Placeholder: func(n int) string { return "?" },
	CreateTableDDL: []string{
		`CREATE TABLE IF NOT EXISTS meta (
			id      INTEGER PRIMARY KEY AUTOINCREMENT,
			module  TEXT NOT NULL,
			key1    TEXT NOT NULL,
			key2    TEXT NOT NULL,
			value   TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS meta_module_idx ON meta(module)`,
		`CREATE INDEX IF NOT EXISTS meta_module_key1_idx ON meta(module, key1)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS meta_module_key2_idx ON meta(module, key1, key2)`,
	},
}

// Open opens path (e.g. "file:ingestord-meta.db") with the sqlite3
// driver and returns a ready metakv.Store.
func Open(path string, bus *coordinator.Bus) (*sqlstore.Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite metakv %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite is single-writer; avoid SQLITE_BUSY storms

	store, err := sqlstore.Open(db, dialect, bus)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}
