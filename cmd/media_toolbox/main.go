package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/italolelis/media_toolbox/internal/cleanup"
	"github.com/italolelis/media_toolbox/internal/config"
	"github.com/italolelis/media_toolbox/internal/downloader"
	"github.com/italolelis/media_toolbox/internal/extract"
	"github.com/italolelis/media_toolbox/internal/http/rest"
	"github.com/italolelis/media_toolbox/internal/imaging"
	"github.com/italolelis/media_toolbox/internal/logctx"
	"github.com/italolelis/media_toolbox/internal/notifier"
	"github.com/italolelis/media_toolbox/internal/progress"
	"github.com/italolelis/media_toolbox/internal/retry"
	"github.com/italolelis/media_toolbox/internal/storage"
	"github.com/italolelis/media_toolbox/internal/storage/sqlite"
	"github.com/italolelis/media_toolbox/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger := slog.New(logctx.NewTraceHandler(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}),
	))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("media toolbox starting...", "log_level", cfg.LogLevel, "version", cfg.ServiceVersion)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.TelemetryEnabled,
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.ServiceVersion,
		OTLPEndpoint:   cfg.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	defer func() {
		// The run context is already cancelled at this point.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	// =========================================================================
	// Start Database
	database, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		logger.Error("DB error", "err", err)

		return err
	}
	defer database.Close()

	ledger := sqlite.NewInstrumentedDownloadRepository(database, tel)
	instanceID := storage.InstanceID(cfg.InstanceID)

	// =========================================================================
	// Start Progress Store
	store := progress.NewStore(progress.WithTTL(cfg.Progress.TTL))

	if err := tel.ObserveProgressEntries(store.Len); err != nil {
		return fmt.Errorf("failed to observe progress entries: %w", err)
	}

	// =========================================================================
	// Start Downloader
	profiles, err := config.LoadProfiles(cfg.ProfilesFile)
	if err != nil {
		return fmt.Errorf("failed to load extractor profiles: %w", err)
	}

	d := buildDownloader(cfg, store, profiles, ledger, instanceID, tel)

	// =========================================================================
	// Start Background Removal
	remover, err := buildRemover(cfg)
	if err != nil {
		return fmt.Errorf("failed to build background remover: %w", err)
	}

	images := imaging.NewService(remover, cfg.RemoveBG.Backend, tel, imaging.WithMaxPixels(cfg.MaxImagePixels))

	// =========================================================================
	// Start API Service
	server := setupServer(ctx, cfg, d, store, images, tel)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Initializing API support", "host", cfg.Web.BindAddress)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		logger.Info("start shutdown")

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		return nil
	})

	// =========================================================================
	// Start Progress Sweeper
	g.Go(func() error {
		return store.Run(gctx, cfg.Progress.SweepInterval)
	})

	// =========================================================================
	// Start Cleanup
	g.Go(func() error {
		return cleanup.Run(gctx, ledger, instanceID, cfg.KeepDownloadedFor, cfg.CleanupInterval, func(error) {
			tel.RecordSystemError(gctx, "cleanup", "delete_expired_files")
		})
	})

	logger.Info("ready to serve downloads",
		"output_dir", cfg.OutputDir,
		"instance_id", instanceID,
		"removebg_backend", cfg.RemoveBG.Backend,
		"retention", cfg.KeepDownloadedFor.String(),
	)

	return g.Wait()
}

func buildDownloader(
	cfg *config.Config,
	store *progress.Store,
	profiles config.Profiles,
	ledger storage.DownloadWriteRepository,
	instanceID string,
	tel *telemetry.Telemetry,
) *downloader.Downloader {
	ytdlpOpts := []extract.YTDLPOption{extract.WithBinary(cfg.YTDLPPath)}
	if cfg.FFmpegLocation != "" {
		ytdlpOpts = append(ytdlpOpts, extract.WithFFmpegLocation(cfg.FFmpegLocation))
	}

	adapter := extract.NewInstrumentedAdapter(
		extract.NewAdapter(extract.NewYTDLP(ytdlpOpts...), store, extract.Options{
			Format:       cfg.AudioFormat,
			AudioCodec:   cfg.AudioCodec,
			AudioQuality: cfg.AudioQuality,
		}),
		tel,
	)

	policy := retry.NewPolicy(adapter, store, profiles.Alternate, tel)

	opts := []downloader.Option{
		downloader.WithLedger(ledger),
		downloader.WithTelemetry(tel),
	}

	if cfg.DiscordWebhookURL != "" {
		opts = append(opts, downloader.WithNotifier(notifier.NewDiscordNotifier(cfg.DiscordWebhookURL)))
	}

	return downloader.NewDownloader(adapter, policy, store, downloader.Config{
		OutputDir:  cfg.OutputDir,
		AudioCodec: cfg.AudioCodec,
		Primary:    profiles.Primary,
		InstanceID: instanceID,
	}, opts...)
}

// This is an abstract factory for the background remover.
func buildRemover(cfg *config.Config) (imaging.Remover, error) {
	switch cfg.RemoveBG.Backend {
	case "border":
		return imaging.NewBorderRemover(cfg.RemoveBG.Tolerance), nil
	case "rembg":
		return imaging.NewRembgRemover(imaging.WithRembgPath(cfg.RembgPath)), nil
	}

	return nil, fmt.Errorf("invalid background removal backend: %s", cfg.RemoveBG.Backend)
}

// setupServer prepares the handlers and services to create the http rest server.
func setupServer(
	ctx context.Context,
	cfg *config.Config,
	d *downloader.Downloader,
	store *progress.Store,
	images *imaging.Service,
	tel *telemetry.Telemetry,
) *http.Server {
	handler := rest.NewMediaHandler(d, store, images, rest.MediaHandlerConfig{
		Stream: progress.StreamOptions{
			Interval:    cfg.Progress.PollInterval,
			WaitTimeout: cfg.Progress.WaitTimeout,
		},
		MaxUploadSize: cfg.MaxUploadSize,
		StaticDir:     cfg.StaticDir,
	}, tel)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(telemetry.RequestID)
	r.Use(telemetry.HTTPLogging)
	r.Use(telemetry.NewHTTPMiddleware(tel).Middleware)

	r.Handle("/metrics", tel.Handler())
	r.Mount("/", handler.Routes())

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      tel.WrapHandler(r, "media_toolbox"),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}
