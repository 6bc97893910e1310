// Package journal records rig telemetry to SQLite: connection sessions, raw
// telemetry lines, finalized measurements and blood pressure changes.
// Recorded sessions can be replayed through fresh sensor managers.
package journal

import (
	"database/sql"
	"embed"

	"github.com/NotCoffee418/dbmigrator"
	"github.com/NotCoffee418/vitals_rig/pkg/errors"
	"github.com/NotCoffee418/vitals_rig/pkg/logger"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

var errFactory = errors.New()

type Journal struct {
	db   *sql.DB
	path string
}

// Open opens or creates the journal at path and applies migrations.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrJournalOpen, err).WithData(path)
	}
	// SQLite allows one writer; serialise through a single connection
	db.SetMaxOpenConns(1)

	// Create DB before migrations
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, errFactory.Wrap(errors.ErrJournalOpen, err).WithData(path)
	}
	if _, err = db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("Could not enable WAL mode")
	}

	dbmigrator.SetDatabaseType(dbmigrator.SQLite)
	<-dbmigrator.MigrateUpCh(
		db,
		migrationFS,
		"migrations",
	)

	if _, err = db.Exec("SELECT 1 FROM sessions LIMIT 1;"); err != nil {
		db.Close()
		return nil, errFactory.Wrap(errors.ErrJournalOpen, err).WithMessage("journal migrations did not apply")
	}

	logger.Info().Str("path", path).Msg("Journal opened")
	return &Journal{db: db, path: path}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) Path() string {
	return j.path
}
