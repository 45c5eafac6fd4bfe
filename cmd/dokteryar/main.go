package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wali1264/dokteryaraflain/internal/api"
	"github.com/wali1264/dokteryaraflain/internal/remote"
	"github.com/wali1264/dokteryaraflain/internal/store"
	"github.com/wali1264/dokteryaraflain/internal/syncer"
	"github.com/wali1264/dokteryaraflain/pkg/config"
	"github.com/wali1264/dokteryaraflain/pkg/database"
	"github.com/wali1264/dokteryaraflain/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	log.Info("Starting DokterYar record engine")

	// Local store first: the engine must come up with no network at all.
	st, err := store.Open(cfg.Local.Path, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to open local store")
	}
	defer st.Close()

	deviceID, err := st.DeviceID()
	if err != nil {
		log.WithError(err).Fatal("Failed to resolve device identity")
	}
	log.WithDevice(deviceID).Info("Device identity resolved")

	// Remote mirror side, best effort. With the mirror disabled the
	// engine runs fully offline and the pending flag just stays set.
	var (
		rows    syncer.Rows
		objects syncer.Objects
		prober  syncer.Prober = syncer.Unreachable{}
	)
	if cfg.Remote.Enabled {
		db, err := database.NewConnection(&cfg.Remote, log)
		if err != nil {
			log.WithError(err).Fatal("Failed to configure remote mirror")
		}
		defer db.Close()

		// Best effort: the mirror may well be unreachable right now.
		schemaCtx, schemaCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := db.CreateSchema(schemaCtx); err != nil {
			log.WithError(err).Warn("Mirror schema not ensured, will rely on remote provisioning")
		}
		schemaCancel()

		objectStore, err := remote.NewObjectStore(&cfg.Objects)
		if err != nil {
			// Letterhead mirroring is optional; rows still sync.
			log.WithError(err).Warn("Object store unavailable, letterhead mirroring disabled")
		} else {
			objects = objectStore
		}

		rows = remote.NewRowStore(db.DB, log)
		prober = syncer.NewDBProber(db, time.Duration(cfg.Sync.ProbeTimeout)*time.Second)
	}
	if objects == nil {
		objects = unavailableObjects{}
	}
	if rows == nil {
		rows = remote.NewRowStore(nil, log)
	}

	registry := prometheus.NewRegistry()
	metrics := syncer.NewMetrics(registry)

	engine := syncer.NewEngine(st, rows, objects, prober, cfg.Sync.BatchSize, metrics, log)
	worker := syncer.NewWorker(engine, cfg.Sync.QueueSize, log)

	ctx, cancel := context.WithCancel(context.Background())
	worker.Start(ctx)
	worker.Watch(ctx, time.Duration(cfg.Sync.ProbeInterval)*time.Second)

	// Reconcile at startup if the last session left work behind.
	if pending, err := st.SyncPending(); err == nil && pending {
		worker.FullSync()
	}

	router := mux.NewRouter()
	handlers := api.NewHandlers(st, worker, log)
	handlers.RegisterRoutes(router)
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	go func() {
		log.WithField("addr", server.Addr).Info("Operation surface listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("HTTP shutdown failed")
	}

	// Stop the watcher, then drain queued sync jobs before the store closes.
	cancel()
	worker.Close()
	log.Info("Stopped")
}

// unavailableObjects stands in when the letterhead bucket is not
// configured; uploads fail and the asset mirror falls back to the last URL.
type unavailableObjects struct{}

func (unavailableObjects) Upload(context.Context, string, []byte, string) (string, error) {
	return "", fmt.Errorf("object store not configured")
}
