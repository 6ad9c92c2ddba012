package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/dustin/go-humanize"

	"github.com/danielhkuo/live-tally/broadcast"
	"github.com/danielhkuo/live-tally/cliparse"
	"github.com/danielhkuo/live-tally/db"
	"github.com/danielhkuo/live-tally/ledger"
	"github.com/danielhkuo/live-tally/middleware"
	"github.com/danielhkuo/live-tally/polls"
	"github.com/danielhkuo/live-tally/router"
	"github.com/danielhkuo/live-tally/tally"
	"github.com/danielhkuo/live-tally/voting"
)

func main() {
	var err error

	// Parse configuration
	cfg, err := cliparse.ParseFlags(os.Args[1:])
	if err != nil {
		slog.Error("Error parsing flags", "error", err)
		os.Exit(1)
	}

	// Connect to the ledger database
	dbConn, err := db.Open(cfg.DatabaseType, cfg.DatabaseURL)
	if err != nil {
		slog.Error("database connection failed", "error", err, "type", cfg.DatabaseType)
		os.Exit(1)
	}
	defer dbConn.Close()

	// Create schema (tables)
	if err := db.CreateSchema(dbConn); err != nil {
		slog.Error("schema creation failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database schema ready", "type", cfg.DatabaseType)

	// Open the tally store
	tallyStore, err := openTally(cfg)
	if err != nil {
		slog.Error("tally store failed", "error", err, "backend", cfg.TallyBackend)
		os.Exit(1)
	}
	defer tallyStore.Close()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	votes := ledger.New(dbConn)
	pollStore := polls.NewStore(dbConn)
	broker := broadcast.NewBroker(cfg.SubscriberBuffer)

	// Rebuild the tally from the ledger before serving reads
	reconciler := voting.NewReconciler(pollStore, votes, tallyStore, broker)
	if err := reconciler.ReconcileAll(ctx); err != nil {
		slog.Warn("startup reconciliation incomplete", "error", err)
	}
	go reconciler.Run(ctx, cfg.ReconcileEvery)

	engine := voting.NewEngine(pollStore, votes, tallyStore, broker, voting.Options{
		StoreTimeout: cfg.StoreTimeout,
		OnDrift:      reconciler.MarkDirty,
		Gate:         reconciler.Gate(),
	})

	// Create router
	mux := router.NewRouter(engine, cfg)

	// Create server
	server := http.Server{
		Handler: middleware.CORS(mux),
		Addr:    ":" + strconv.Itoa(cfg.Port),
	}

	// signal.Notify requires the channel to be buffered
	ctrlc := make(chan os.Signal, 1)
	signal.Notify(ctrlc, os.Interrupt, syscall.SIGTERM)
	go func() {
		// Wait for Ctrl-C signal
		<-ctrlc
		stop()
		server.Close()
	}()

	// Start server
	slog.Info("Listening", "port", cfg.Port, "tally", cfg.TallyBackend)
	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		slog.Error("Server closed", "error", err)
	} else {
		slog.Info("Server closed", "error", err)
	}
}

func openTally(cfg cliparse.Config) (tally.Store, error) {
	switch cfg.TallyBackend {
	case cliparse.TallyMemory:
		return tally.NewMemory(), nil
	case cliparse.TallyPebble:
		slog.Info("Opening pebble tally", "path", cfg.TallyPath, "cache", humanize.IBytes(cfg.TallyCacheBytes))
		return tally.OpenPebble(cfg.TallyPath, cfg.TallyCacheBytes)
	default:
		return nil, fmt.Errorf("unknown tally backend %q", cfg.TallyBackend)
	}
}
