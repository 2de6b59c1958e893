package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sousvide_simulator/internal/config"
	"sousvide_simulator/internal/logger"
	"sousvide_simulator/internal/repository/db"
	"sousvide_simulator/internal/simulator"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to config file (default configs/simulator.yml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}

	log := logger.Get(cfg.LogLevel)

	// The message log lives in an in-memory database; it exists for the
	// lifetime of the process only.
	database, err := db.InitDB(db.InMemoryDSN)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := database.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	sim, err := simulator.New(cfg, database, log)
	if err != nil {
		log.Fatalw("failed to build simulator", "err", err)
	}

	errCh := sim.Start()
	waitForShutdown(sim, errCh, log)
}

// waitForShutdown blocks until a termination signal or a server failure,
// then stops the simulator with a bounded deadline.
func waitForShutdown(sim *simulator.Simulator, errCh <-chan error, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Infow("shutting down", "signal", sig.String())
	case err := <-errCh:
		log.Errorw("server failed", "err", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := sim.Stop(ctx); err != nil {
		log.Fatalw("simulator forced to shutdown", "err", err)
	}
}
