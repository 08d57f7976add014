package migrations

import (
	"database/sql"
	_ "embed"

	"github.com/goran-ethernal/DIDIndexor/internal/db"
	"github.com/goran-ethernal/DIDIndexor/internal/logger"
)

//go:embed 001_indexer_checkpoint.sql
var mig001 string

//go:embed 002_block_hashes.sql
var mig002 string

//go:embed 003_did_projection.sql
var mig003 string

// All returns the schema migrations in apply order.
func All() []db.Migration {
	return []db.Migration{
		{ID: "001_indexer_checkpoint.sql", SQL: mig001},
		{ID: "002_block_hashes.sql", SQL: mig002},
		{ID: "003_did_projection.sql", SQL: mig003},
	}
}

// RunMigrations brings the database at dbPath up to date.
func RunMigrations(dbPath string) error {
	return db.RunMigrations(dbPath, All())
}

// RunMigrationsDB brings an open database up to date.
func RunMigrationsDB(log *logger.Logger, sqlDB *sql.DB) error {
	return db.RunMigrationsDB(log, sqlDB, All())
}
