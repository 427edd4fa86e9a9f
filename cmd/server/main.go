package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/docoutline/internal/api"
	"github.com/dgallion1/docoutline/internal/archive"
	"github.com/dgallion1/docoutline/internal/cache"
	"github.com/dgallion1/docoutline/internal/config"
	"github.com/dgallion1/docoutline/internal/ingest"
	"github.com/dgallion1/docoutline/internal/pipeline"
	"github.com/dgallion1/docoutline/internal/render"
	"github.com/dgallion1/docoutline/internal/store"
)

func main() {
	config.LoadDotEnv()
	cfg := config.Load()

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if err := run(cfg, log); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize storage.
	dsn := cfg.SQLitePath
	if cfg.DBDriver == string(store.DialectPostgres) {
		dsn = cfg.DatabaseURL
	}
	st, err := store.Open(ctx, store.Dialect(cfg.DBDriver), dsn)
	if err != nil {
		return err
	}
	defer st.Close()

	var treeCache cache.TreeCache = cache.Nop{}
	if cfg.RedisURL != "" {
		rc, err := cache.Connect(ctx, cfg.RedisURL, cfg.TreeCacheTTL, log)
		if err != nil {
			return err
		}
		defer rc.Close()
		treeCache = rc
	}

	arc, err := openArchive(ctx, cfg)
	if err != nil {
		return err
	}

	gw := ingest.New(st, treeCache, arc, ingest.Options{
		MaxUploadBytes:  cfg.MaxUploadBytes,
		MaxDepth:        cfg.MaxHeadingDepth,
		DefaultPageSize: cfg.DefaultPageSize,
		MaxPageSize:     cfg.MaxPageSize,
		Render:          render.Options{IncludeHeading: cfg.RenderIncludeHeading},
	}, log)

	// Initialize pipeline.
	orch := pipeline.NewOrchestrator(cfg, gw, log)
	orch.Start(ctx)

	if cfg.APIKey == "" {
		log.Warn("API_KEY is empty, authentication disabled")
	}
	srv := api.NewServer(gw, orch, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting docoutline", "port", cfg.Port, "db", cfg.DBDriver, "archive", cfg.ArchiveBackend)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		orch.Stop()
		return err
	})
	return g.Wait()
}

func openArchive(ctx context.Context, cfg config.Config) (archive.Archive, error) {
	switch cfg.ArchiveBackend {
	case config.ArchiveLocal:
		local, err := archive.NewLocal(cfg.ArchiveDir)
		if err != nil {
			return nil, err
		}
		return local, nil
	case config.ArchiveS3:
		remote, err := archive.NewS3(ctx, archive.S3Options{
			Region:   cfg.AWSRegion,
			Bucket:   cfg.S3Bucket,
			Prefix:   cfg.S3Prefix,
			Endpoint: cfg.S3Endpoint,
		})
		if err != nil {
			return nil, err
		}
		return remote, nil
	}
	return archive.Nop{}, nil
}
