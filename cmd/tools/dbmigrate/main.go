// Command dbmigrate steps the embedded GymDesk migrations against a SQLite
// database. The server applies pending migrations itself on startup; this
// tool exists for rollbacks and version checks.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/heliosfit/gymdesk/internal/db"
)

func main() {
	dbPath := flag.String("db", "db/gymdesk.db", "path to the SQLite database")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	command := flag.Arg(0)
	if command == "" {
		fmt.Fprintln(os.Stderr, "usage: dbmigrate [-db path] up|down|version")
		os.Exit(2)
	}

	sqlDB, err := sql.Open("sqlite3", *dbPath+"?_fk=1")
	if err != nil {
		log.Fatal().Err(err).Str("db", *dbPath).Msg("Failed to open database")
	}
	defer sqlDB.Close()

	m, err := db.NewMigrator(sqlDB)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare migrations")
	}

	switch command {
	case "up":
		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			log.Fatal().Err(err).Msg("Migration up failed")
		}
		log.Info().Msg("Migrations applied")
	case "down":
		// One step at a time; a full teardown of a live gym database is
		// never what an operator wants from a CLI default.
		if err := m.Steps(-1); err != nil {
			log.Fatal().Err(err).Msg("Migration down failed")
		}
		log.Info().Msg("Rolled back one migration")
	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read migration version")
		}
		log.Info().Uint("version", version).Bool("dirty", dirty).Msg("Migration version")
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\nusage: dbmigrate [-db path] up|down|version\n", command)
		os.Exit(2)
	}
}
