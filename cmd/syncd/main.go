// Package main provides the fieldsync daemon: it hosts the offline-first
// sync engine and exposes its status to local UI clients over REST and
// WebSocket on localhost.
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gardenproof/fieldsync/internal/config"
	"github.com/gardenproof/fieldsync/internal/db"
	"github.com/gardenproof/fieldsync/internal/dedupe"
	"github.com/gardenproof/fieldsync/internal/engine"
	"github.com/gardenproof/fieldsync/internal/logging"
	"github.com/gardenproof/fieldsync/internal/scheduler"
	"github.com/gardenproof/fieldsync/internal/store"
	"github.com/gardenproof/fieldsync/internal/syncstate"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer logger.Sync()

	database, err := db.Open(cfg.DataDir)
	if err != nil {
		logger.Fatalw("open database", "error", err)
	}
	defer database.Close()

	if err := db.Migrate(database.DB); err != nil {
		logger.Fatalw("run migrations", "error", err)
	}

	blobs := store.NewBlobStore(filepath.Join(cfg.DataDir, "blobs"))
	itemStore := store.New(database.DB, blobs)

	var oracle dedupe.Oracle
	if cfg.Oracle.Endpoint != "" {
		oracle = dedupe.NewHTTPOracle(cfg.Oracle.Endpoint, cfg.Oracle.Timeout)
	}
	manager := dedupe.NewManager(oracle, logger)

	state := syncstate.New()
	orch := engine.New(itemStore, manager, state, logger)

	hub := NewWSHub(logger)
	unsubscribe := state.Subscribe(hub.BroadcastState)
	defer unsubscribe()

	monitor := syncstate.NewMonitor(state, cfg.Network.ProbeURL, cfg.Network.ProbeInterval, logger)
	monitor.Start()
	defer monitor.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.New(orch, state, scheduler.Config{
		SyncInterval: cfg.Sync.Interval,
	}, logger)
	sched.Start(ctx)
	defer sched.Stop()

	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"fieldsync"}`))
	})

	mux.HandleFunc("/api/sync/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		snap := state.Snapshot()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"state":            snap,
			"has_issues":       snap.HasIssues(),
			"display_priority": snap.DisplayPriority(),
		})
	})

	mux.HandleFunc("/api/sync/trigger", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		sched.TriggerSync()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"triggered":true}`))
	})

	mux.HandleFunc("/api/sync/cleanup", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		purged, err := orch.Cleanup()
		if err != nil {
			http.Error(w, "Cleanup failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int{"purged": purged})
	})

	mux.HandleFunc("/ws", HandleWebSocket(hub))

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: mux,
	}

	go func() {
		logger.Infow("fieldsync daemon listening", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalw("http server failed", "error", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Infow("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)
}
