// Command migrate applies or rolls back the SQL migrations in ./migrations.
package main

import (
	"errors"
	"flag"
	"log"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"

	"github.com/noah-isme/tutoring-booking-api/pkg/config"
	"github.com/noah-isme/tutoring-booking-api/pkg/database"
	"github.com/noah-isme/tutoring-booking-api/pkg/logger"
)

func main() {
	var (
		dir   string
		steps int
	)
	flag.StringVar(&dir, "dir", "migrations", "directory holding *.up.sql / *.down.sql files")
	flag.IntVar(&steps, "steps", 0, "number of migrations to apply (negative rolls back); 0 means all the way up, or all the way down with the down command")
	flag.Parse()

	command := flag.Arg(0)
	if command == "" {
		command = "up"
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	m, err := migrate.New("file://"+dir, database.MigrationURL(cfg.Database))
	if err != nil {
		logr.Fatal("failed to open migrations", zap.Error(err))
	}
	defer m.Close()

	switch {
	case steps != 0:
		err = m.Steps(steps)
	case command == "up":
		err = m.Up()
	case command == "down":
		err = m.Down()
	case command == "version":
		version, dirty, verr := m.Version()
		if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
			logr.Fatal("failed to read version", zap.Error(verr))
		}
		logr.Info("migration version", zap.Uint("version", version), zap.Bool("dirty", dirty))
		return
	default:
		logr.Fatal("unknown command, expected up, down or version", zap.String("command", command))
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logr.Fatal("migration failed", zap.String("command", command), zap.Error(err))
	}
	logr.Info("migrations applied", zap.String("command", command), zap.Int("steps", steps))
}
