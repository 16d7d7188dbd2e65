package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/relic/internal/config"
	"github.com/cuemby/relic/internal/server"
	"github.com/cuemby/relic/pkg/blobstore"
	"github.com/cuemby/relic/pkg/events"
	"github.com/cuemby/relic/pkg/lifecycle"
	"github.com/cuemby/relic/pkg/log"
	"github.com/cuemby/relic/pkg/metrics"
	"github.com/cuemby/relic/pkg/registry"
	"github.com/cuemby/relic/pkg/storage"
)

// Exit codes for known startup failures. 0 always means a clean
// shutdown; cobra's own usage errors use its default of 1.
const (
	exitOK = iota
	exitUsage // 1: cobra usage errors and any unclassified failure
	exitBadConfig
	exitStoreFailure
	exitBlobStoreFailure
	exitTypeLoadFailure
)

type startupError struct {
	code int
	err  error
}

func (e *startupError) Error() string { return e.err.Error() }
func (e *startupError) Unwrap() error { return e.err }

func exitCodeFor(err error) int {
	if se, ok := err.(*startupError); ok {
		return se.code
	}
	if err != nil {
		return 1
	}
	return exitOK
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the artifact repository HTTP server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromFlags(cmd)
	if err != nil {
		return &startupError{exitBadConfig, fmt.Errorf("read config: %w", err)}
	}

	log.Init(log.Config{Level: cfg.LogLevel, JSONOutput: cfg.LogJSON})
	logger := log.WithComponent("serve")

	reg := registry.NewRegistry()
	if err := reg.RegisterBuiltins(); err != nil {
		return &startupError{exitTypeLoadFailure, fmt.Errorf("register builtin types: %w", err)}
	}
	if cfg.TypesDir != "" {
		if err := reg.LoadDir(cfg.TypesDir); err != nil {
			return &startupError{exitTypeLoadFailure, fmt.Errorf("load types dir %s: %w", cfg.TypesDir, err)}
		}
	}

	gateway, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return &startupError{exitStoreFailure, fmt.Errorf("open artifact database at %s: %w", cfg.DataDir, err)}
	}
	defer gateway.Close()
	metrics.UpdateComponent("gateway", true, "ready")

	blobs, err := blobstore.NewFilesystemAdapter(cfg.BlobsDir)
	if err != nil {
		return &startupError{exitBlobStoreFailure, fmt.Errorf("open blob store at %s: %w", cfg.BlobsDir, err)}
	}
	metrics.UpdateComponent("blobstore", true, "ready")

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	engine := lifecycle.New(reg, gateway, blobs, broker)

	metrics.SetVersion(Version)
	collector := metrics.NewCollector(reg, gateway, 15*time.Second)
	collector.Start()
	defer collector.Stop()

	stopLeases := make(chan struct{})
	go expireLeasesLoop(gateway, stopLeases)
	defer close(stopLeases)

	srv := server.New(engine, reg, cfg.MaxBodyMB)
	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info().Msg("shutting down")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

// expireLeasesLoop periodically reaps expired blob upload leases so a
// crashed uploader doesn't hold a slot in "saving" state forever.
func expireLeasesLoop(gateway storage.Gateway, stop <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	logger := log.WithComponent("lease-reaper")

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			n, err := gateway.ExpireBlobLeases(context.Background())
			if err != nil {
				logger.Error().Err(err).Msg("expire blob leases")
				continue
			}
			if n > 0 {
				metrics.BlobLeasesExpiredTotal.Add(float64(n))
				logger.Info().Int("count", n).Msg("expired blob leases")
			}
		}
	}
}
