package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ecoproof/ecoproof/pkg/api"
	"github.com/ecoproof/ecoproof/pkg/auth"
	"github.com/ecoproof/ecoproof/pkg/config"
	"github.com/ecoproof/ecoproof/pkg/events"
	"github.com/ecoproof/ecoproof/pkg/observability"
)

const (
	shutdownTimeout = 15 * time.Second
	janitorInterval = time.Minute
)

// runServe runs the HTTP API until SIGINT or SIGTERM.
func runServe(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("serve", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	port := cmd.String("port", "", "Listen port (overrides PORT)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	cfg := config.Load()
	if *port != "" {
		cfg.Port = *port
	}
	if err := cfg.Validate(); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	logger := setupLogger(stderr, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serveUntilDone(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		return 1
	}
	_, _ = fmt.Fprintln(stdout, "ecoproof stopped")
	return 0
}

func serveUntilDone(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	otelCfg := observability.DefaultConfig()
	otelCfg.ServiceVersion = version
	otelCfg.Enabled = cfg.OTelEnabled
	otelCfg.OTLPEndpoint = cfg.OTelEndpoint
	provider, err := observability.New(ctx, otelCfg)
	if err != nil {
		return fmt.Errorf("observability: %w", err)
	}
	slo := observability.NewSLOTracker(observability.DefaultTargets()...)
	provider.WithSLO(slo)
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = provider.Shutdown(sctx)
	}()

	svc, err := openServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()
	svc.engine.WithTracker(provider)

	validator := auth.NewJWTValidator([]byte(cfg.JWTSecret))
	if validator == nil {
		logger.Warn("JWT_HMAC_SECRET is not set; every write will be rejected")
	}
	opts := api.Options{
		Middleware: []func(http.Handler) http.Handler{
			auth.RequestIDMiddleware,
			auth.CORSMiddleware(cfg.CORSOrigins),
		},
		Authenticate:     auth.NewMiddleware(validator),
		Caller:           auth.CallerFrom,
		Idempotency:      svc.idem,
		IdempotencyScope: auth.ActorKey,
		Tracker:          provider,
		SLO:              slo,
		Archiver:         svc.exporter,
	}
	if cfg.RateLimitRPS > 0 {
		opts.RateLimiter = api.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, auth.ActorKey)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewServer(svc.engine, opts).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", srv.Addr, "backend", cfg.StorageBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(sctx)
	})
	if opts.RateLimiter != nil {
		g.Go(func() error {
			opts.RateLimiter.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		runJanitor(gctx, svc.idem, logger)
		return nil
	})
	if len(cfg.KafkaBrokers) > 0 {
		pub, err := events.NewKafkaPublisher(events.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
		})
		if err != nil {
			return fmt.Errorf("kafka: %w", err)
		}
		defer func() { _ = pub.Close() }()
		relay := events.NewRelay(svc.journal, pub, svc.cursor)
		g.Go(func() error {
			if err := relay.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("journal relay: %w", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// runJanitor expires idempotency records until ctx is done.
func runJanitor(ctx context.Context, store api.IdempotencyStorer, logger *slog.Logger) {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		switch s := store.(type) {
		case *api.MemoryIdempotencyStore:
			s.Sweep()
		case *api.SQLIdempotencyStore:
			n, err := s.Cleanup(ctx)
			if err != nil {
				logger.WarnContext(ctx, "idempotency cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				logger.DebugContext(ctx, "idempotency records expired", "count", n)
			}
		}
	}
}
