// Package main is the entry point for the playout server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"github.com/bbernstein/sofie-playout-go/internal/api"
	"github.com/bbernstein/sofie-playout-go/internal/config"
	"github.com/bbernstein/sofie-playout-go/internal/database"
	"github.com/bbernstein/sofie-playout-go/internal/logger"
	"github.com/bbernstein/sofie-playout-go/internal/metrics"
	"github.com/bbernstein/sofie-playout-go/internal/services/blueprint"
	"github.com/bbernstein/sofie-playout-go/internal/services/ingest"
	"github.com/bbernstein/sofie-playout-go/internal/services/lock"
	"github.com/bbernstein/sofie-playout-go/internal/services/playout"
	"github.com/bbernstein/sofie-playout-go/internal/services/pubsub"
	"github.com/bbernstein/sofie-playout-go/internal/services/studioconfig"
	"github.com/bbernstein/sofie-playout-go/internal/store"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Load .env file if present
	envErr := godotenv.Load()

	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)
	if envErr != nil {
		log.Debug("no .env file found, using environment variables")
	}

	printBanner(cfg)

	db, err := database.Connect(database.Config{
		URL:         cfg.DatabaseURL,
		MaxIdleConn: 5,
		MaxOpenConn: 10,
		Debug:       cfg.IsDevelopment() && cfg.LogLevel == "debug",
	})
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = database.Close() }()

	log.Info("running database migrations")
	if err := database.Migrate(db); err != nil {
		log.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	router, err := newHandler(context.Background(), cfg, db, log)
	if err != nil {
		log.Error("failed to start", "error", err)
		os.Exit(1)
	}

	// No write timeout: the timeline feed is a long-lived websocket and
	// actions carry their own timeout.
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("server shutdown error", "error", err)
	}
	log.Info("server stopped")
}

// newHandler wires the services on db and returns the HTTP router.
func newHandler(ctx context.Context, cfg *config.Config, db *gorm.DB, log *slog.Logger) (http.Handler, error) {
	st := store.New(db)
	m := metrics.New()
	configs := blueprint.NewConfigCache(st, cfg.BlueprintConfigTTL)

	if cfg.StudioConfigPath != "" {
		f, err := studioconfig.Load(cfg.StudioConfigPath)
		if err != nil {
			return nil, err
		}
		if err := studioconfig.Apply(ctx, st, configs, f); err != nil {
			return nil, err
		}
		log.Info("studio config applied", "path", cfg.StudioConfigPath,
			"studios", len(f.Studios), "show_styles", len(f.ShowStyles))
	}

	playoutService := playout.NewService(st, playout.Options{
		Logger:          log,
		Metrics:         m,
		PubSub:          pubsub.New(),
		Blueprints:      blueprint.NewRegistry(nil),
		Configs:         configs,
		Locks:           lock.NewManager(),
		TakeDebounce:    cfg.TakeDebounce,
		AutoNextGuard:   cfg.AutoNextGuard,
		LookaheadSettle: cfg.LookaheadSettle,
	})
	ingestService := ingest.NewService(playoutService, ingest.Options{
		Logger:  log,
		Metrics: m,
	})

	return api.NewRouter(api.Config{
		Playout:     playoutService,
		Ingest:      ingestService,
		Logger:      log,
		Metrics:     m,
		CORSOrigins: []string{cfg.CORSOrigin, "http://localhost:3000", "http://localhost:4000"},
		Debug:       cfg.IsDevelopment(),
		Version:     Version,
	}), nil
}

// printBanner prints the startup banner.
func printBanner(cfg *config.Config) {
	fmt.Println("============================================")
	fmt.Println("  Playout Server")
	fmt.Printf("  Version: %s\n", Version)
	fmt.Printf("  Build:   %s\n", BuildTime)
	fmt.Printf("  Commit:  %s\n", GitCommit)
	fmt.Println("============================================")
	fmt.Printf("  Environment: %s\n", cfg.Env)
	fmt.Printf("  Port:        %s\n", cfg.Port)
	fmt.Printf("  Database:    %s\n", cfg.DatabaseURL)
	if cfg.StudioConfigPath != "" {
		fmt.Printf("  Studios:     %s\n", cfg.StudioConfigPath)
	}
	fmt.Println("============================================")
}
