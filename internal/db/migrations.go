package db

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/goran-ethernal/DIDIndexor/internal/logger"
	migrate "github.com/rubenv/sql-migrate"
)

const (
	UpDownSeparator   = "-- +migrate Up"
	downMarker        = "-- +migrate Down"
	NoLimitMigrations = 0 // no limit on the number of migrations to run
)

// Migration is one embedded schema change. SQL holds the Down section followed by the Up section.
type Migration struct {
	ID  string
	SQL string
}

// RunMigrations opens dbPath and applies every pending migration.
func RunMigrations(dbPath string, migrations []Migration) error {
	db, err := NewSQLiteDB(dbPath)
	if err != nil {
		return fmt.Errorf("error creating DB %w", err)
	}
	defer db.Close()

	return RunMigrationsDB(logger.GetDefaultLogger(), db, migrations)
}

// RunMigrationsDB applies every pending migration on db.
func RunMigrationsDB(log *logger.Logger, db *sql.DB, migrations []Migration) error {
	return RunMigrationsDBExtended(log, db, migrations, migrate.Up, NoLimitMigrations)
}

// RunMigrationsDBExtended applies at most maxMigrations migrations in direction dir.
func RunMigrationsDBExtended(
	log *logger.Logger,
	db *sql.DB,
	migrations []Migration,
	dir migrate.MigrationDirection,
	maxMigrations int,
) error {
	source, err := toMemorySource(migrations)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(source.Migrations))
	for _, m := range source.Migrations {
		ids = append(ids, m.Id)
	}
	list := strings.Join(ids, ", ")

	log.Debugf("running migrations (max %d/%d): %s", maxMigrations, len(ids), list)

	n, err := migrate.ExecMax(db, "sqlite3", source, dir, maxMigrations)
	if err != nil {
		return fmt.Errorf("error executing migrations (max %d/%d) %s: %w", maxMigrations, len(ids), list, err)
	}

	log.Infof("successfully ran %d migrations from: %s", n, list)
	return nil
}

func toMemorySource(migrations []Migration) (*migrate.MemoryMigrationSource, error) {
	source := &migrate.MemoryMigrationSource{Migrations: make([]*migrate.Migration, 0, len(migrations))}

	for _, m := range migrations {
		down, up, found := strings.Cut(m.SQL, UpDownSeparator)
		if !found {
			return nil, fmt.Errorf("migration %s missing '%s' separator", m.ID, UpDownSeparator)
		}

		if _, after, ok := strings.Cut(down, downMarker); ok {
			down = after
		}

		source.Migrations = append(source.Migrations, &migrate.Migration{
			Id:   m.ID,
			Up:   []string{strings.TrimSpace(up)},
			Down: []string{strings.TrimSpace(down)},
		})
	}

	return source, nil
}
