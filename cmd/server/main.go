package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"crisiswatch/internal/config"
	"crisiswatch/internal/crew"
	"crisiswatch/internal/feed"
	"crisiswatch/internal/server"
	sqlitestore "crisiswatch/internal/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "path to config.toml (default: ~/.crisiswatch/config.toml)")
	addrFlag := flag.String("addr", "", "http listen address override")
	dbPathFlag := flag.String("db", "", "sqlite database path override")
	dataDirFlag := flag.String("data", "", "mock data directory override")
	flag.Parse()

	logger := newLogger()
	config.LoadEnv(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("load config")
	}

	addr := firstNonEmpty(*addrFlag, cfg.Server.Addr, ":8000")
	dbPath := filepath.Clean(firstNonEmpty(*dbPathFlag, cfg.Server.DBPath, "data/crisiswatch.db"))
	dataDir := filepath.Clean(firstNonEmpty(*dataDirFlag, cfg.Server.DataDir, "mock_data"))

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		logger.WithError(err).Fatal("create db directory")
	}

	store, err := sqlitestore.Open(dbPath)
	if err != nil {
		logger.WithError(err).Fatal("open sqlite store")
	}
	defer func() {
		_ = store.Close()
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := store.Migrate(ctx); err != nil {
		logger.WithError(err).Fatal("migrate sqlite")
	}

	sim := feed.New(dataDir, time.Duration(cfg.Feed.DelayMS)*time.Millisecond, cfg.Feed.InitialWave, logger)
	crewSvc := crew.New(sim, store, logger)
	srv := server.New(crewSvc, sim, store, logger)

	sim.Start(ctx)
	srv.Start(ctx)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.WithFields(logrus.Fields{
		"addr": addr,
		"db":   dbPath,
		"data": dataDir,
	}).Info("crisiswatch server started")

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Fatal("http server failed")
	}
}

func newLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logger.SetLevel(level)
	}
	return logger
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
