package main

import (
	"errors"
	"flag"
	"log"
	"os"

	"checkout-service/config"
	"checkout-service/internal/util"
	"checkout-service/migrations"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

func main() {
	steps := flag.Int("steps", 0, "number of migrations to roll back with down (0 rolls back everything)")
	flag.Parse()

	cmd := flag.Arg(0)
	if cmd == "" {
		cmd = "up"
	}

	cfg := config.Load()
	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()
	logger := util.Named("migrate")

	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		logger.Fatal("Failed to open migration source", zap.Error(err))
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to create migrate instance", zap.Error(err))
	}
	defer func() { _, _ = m.Close() }()

	switch cmd {
	case "up":
		err = m.Up()
	case "down":
		if *steps > 0 {
			err = m.Steps(-*steps)
		} else {
			err = m.Down()
		}
	case "version":
		version, dirty, verr := m.Version()
		if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
			logger.Fatal("Failed to read schema version", zap.Error(verr))
		}
		logger.Info("Schema version", zap.Uint("version", version), zap.Bool("dirty", dirty))
		return
	default:
		logger.Error("Unknown command, expected up, down or version", zap.String("command", cmd))
		os.Exit(2)
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Fatal("Migration failed", zap.String("command", cmd), zap.Error(err))
	}
	logger.Info("Migration complete", zap.String("command", cmd))
}
