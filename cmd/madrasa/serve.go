package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/groblegark/madrasa/internal/archive"
	"github.com/groblegark/madrasa/internal/config"
	"github.com/groblegark/madrasa/internal/events"
	"github.com/groblegark/madrasa/internal/server"
	"github.com/groblegark/madrasa/internal/store/postgres"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the madrasa server",
	GroupID: "system",
	// Override PersistentPreRunE so we don't create an API client.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		slog.SetDefault(logger)

		// Load configuration.
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		// Connect to Postgres.
		store, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return err
		}

		// Create the cross-instance event publisher.
		var publisher events.Publisher
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				store.Close()
				return err
			}
			publisher = pub
			logger.Info("event mirror enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = &events.NoopPublisher{}
			logger.Info("event mirror disabled (MADRASA_NATS_URL not set); push delivery is single-instance")
		}

		srv := server.NewServer(store, publisher)

		// Start HTTP server.
		httpServer := &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: srv.NewHTTPHandler(cfg.AuthToken),
		}

		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		// Re-broadcast mirrored events from other instances into the local
		// push hub.
		var mirrorCancel context.CancelFunc
		if cfg.NATSURL != "" {
			sub, err := events.NewNATSSubscriber(cfg.NATSURL)
			if err != nil {
				logger.Error("failed to create mirror subscriber", "err", err)
			} else {
				var mirrorCtx context.Context
				mirrorCtx, mirrorCancel = context.WithCancel(context.Background())
				go func() {
					if err := srv.RunMirror(mirrorCtx, sub); err != nil {
						logger.Error("mirror subscriber error", "err", err)
					}
					sub.Close()
				}()
				logger.Info("mirror subscriber started")
			}
		}

		// Start the event-log archiver if configured.
		var scheduler *archive.Scheduler
		if cfg.ArchiveInterval > 0 {
			var dests []archive.Destination

			if cfg.ArchiveS3Bucket != "" {
				s3Dest, err := archive.NewS3Destination(
					context.Background(),
					cfg.ArchiveS3Bucket,
					cfg.ArchiveS3Key,
					cfg.ArchiveS3Region,
					cfg.ArchiveS3Endpoint,
				)
				if err != nil {
					logger.Error("failed to create S3 archive destination", "err", err)
				} else {
					dests = append(dests, s3Dest)
					logger.Info("archive S3 destination enabled", "bucket", cfg.ArchiveS3Bucket, "key", cfg.ArchiveS3Key)
				}
			}

			if cfg.ArchiveFile != "" {
				dests = append(dests, archive.NewFileDestination(cfg.ArchiveFile))
				logger.Info("archive file destination enabled", "path", cfg.ArchiveFile)
			}

			if len(dests) > 0 {
				scheduler = archive.NewScheduler(store, dests, cfg.ArchiveInterval, cfg.EventRetention, logger)
				scheduler.Start()
				logger.Info("archive scheduler started", "interval", cfg.ArchiveInterval, "retention", cfg.EventRetention)
			}
		}

		logger.Info("madrasa server started", "http_addr", cfg.HTTPAddr)

		// Wait for SIGINT or SIGTERM.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		// Graceful shutdown.
		if mirrorCancel != nil {
			mirrorCancel()
			logger.Info("mirror subscriber stopped")
		}

		if scheduler != nil {
			scheduler.Stop()
			logger.Info("archive scheduler stopped")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if err := store.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}
