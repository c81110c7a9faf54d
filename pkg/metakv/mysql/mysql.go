// Package mysql implements component A's MySQL backend.
package mysql

import (
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"github.com/cuemby/ingestord/pkg/coordinator"
	"github.com/cuemby/ingestord/pkg/metakv/sqlstore"
)

var dialect = sqlstore.Dialect{
	Placeholder: func(n int) string { return "?" },
	CreateTableDDL: []string{
		`CREATE TABLE IF NOT EXISTS meta (
			id      BIGINT PRIMARY KEY AUTO_INCREMENT,
			module  VARCHAR(100) NOT NULL,
			key1    VARCHAR(256) NOT NULL,
			key2    VARCHAR(256) NOT NULL,
			value   TEXT NOT NULL
		)`,
		`CREATE INDEX meta_module_idx ON meta(module)`,
		`CREATE INDEX meta_module_key1_idx ON meta(module, key1)`,
		`CREATE UNIQUE INDEX meta_module_key2_idx ON meta(module, key1, key2)`,
	},
}

// Open opens dsn (e.g. "user:pass@tcp(host:3306)/ingestord") with the
// go-sql-driver/mysql driver and returns a ready metakv.Store.
//
// CREATE INDEX lacks an IF NOT EXISTS clause in MySQL before 8.0.29, so
// when the meta table already exists Open applies only the CREATE TABLE
// statement and skips the index statements.
func Open(dsn string, bus *coordinator.Bus) (*sqlstore.Store, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql metakv: %w", err)
	}

	store, err := sqlstore.Open(db, dialectTolerant(db), bus)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// dialectTolerant drops index-creation statements once the table already
// exists, since plain MySQL CREATE INDEX has no IF NOT EXISTS guard.
func dialectTolerant(db *sql.DB) sqlstore.Dialect {
	var exists int
	_ = db.QueryRow(`SELECT COUNT(*) FROM information_schema.tables WHERE table_name = 'meta'`).Scan(&exists)
	if exists == 0 {
		return dialect
	}
	return sqlstore.Dialect{
		Placeholder:    dialect.Placeholder,
		CreateTableDDL: dialect.CreateTableDDL[:1],
	}
}
