package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/oggyb/buildermatch/internal/app"
	"github.com/oggyb/buildermatch/internal/auth"
	"github.com/oggyb/buildermatch/internal/cache"
	"github.com/oggyb/buildermatch/internal/config"
	"github.com/oggyb/buildermatch/internal/db"
	"github.com/oggyb/buildermatch/internal/logger"
	"github.com/oggyb/buildermatch/internal/metrics"
	"github.com/oggyb/buildermatch/internal/notify"
	"github.com/oggyb/buildermatch/internal/server"
	"github.com/oggyb/buildermatch/internal/service/conversation"
	"github.com/oggyb/buildermatch/internal/service/matching"
	"github.com/oggyb/buildermatch/internal/service/moderation"
	"github.com/oggyb/buildermatch/internal/service/profile"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "buildermatch",
		Short:         "Swipe, match and chat backend for builders",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configPath)
		},
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Optional YAML config file; environment variables override it")

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the gRPC API and the ops HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configPath)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			// NewDB migrates on open
			if _, err := db.NewDB(cfg); err != nil {
				return fmt.Errorf("failed to migrate: %w", err)
			}
			logger.Info("schema up to date", "driver", cfg.DB.Driver)
			return nil
		},
	})
	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	return cfg, nil
}

func serve(parent context.Context, configPath string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	log := logger.L()

	// Init DB
	database, err := db.NewDB(cfg)
	if err != nil {
		return fmt.Errorf("failed to init db: %w", err)
	}

	// Init Redis
	redisCache := cache.NewRedisCache(cfg)
	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer redisCache.Close()

	var broker notify.Broker = notify.NewMemoryBroker()
	if cfg.NATS.URL != "" {
		nb, err := notify.NewNATSBroker(cfg.NATS.URL, log)
		if err != nil {
			return fmt.Errorf("failed to connect to nats: %w", err)
		}
		broker = nb
	}
	defer broker.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	appCtx := app.New(cfg, database, redisCache, broker, collector, log)

	secret := cfg.Auth.JWTSecret
	if cfg.IsDevelopment() {
		if secret == "" {
			secret = auth.DevSecret
			log.Warn("AUTH_JWT_SECRET not set, using the development secret")
		}
		sum, err := db.SeedDemoData(database, 20, time.Now().UnixNano())
		if err != nil {
			log.Error("failed to seed", "err", err)
		} else {
			log.Info("seeded demo data", "profiles", len(sum.UserIDs), "matches", sum.Matches)
		}
	}
	verifier := auth.NewJWTVerifier(secret, cfg.Auth.Issuer)

	limiter := server.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	defer limiter.Stop()

	conversations := conversation.NewService(appCtx)
	registrars := []server.Registrar{
		profile.NewRegistrar(appCtx),
		matching.NewRegistrar(appCtx, conversations),
		conversation.NewRegistrar(appCtx),
		moderation.NewRegistrar(appCtx),
	}
	grpcServer := server.NewGRPCServer(appCtx, verifier, limiter, registrars...)

	errCh := make(chan error, 2)
	go func() {
		errCh <- server.StartOpsServer(ctx, appCtx, cfg.HTTP.Addr, server.NewOpsRouter(appCtx, reg))
	}()
	go func() {
		errCh <- server.StartGRPCServer(ctx, appCtx, grpcServer)
	}()

	// Wait for both servers to drain before the deferred closes run.
	var firstErr error
	for range 2 {
		err := <-errCh
		stop()
		if err != nil && !errors.Is(err, context.Canceled) && firstErr == nil {
			firstErr = err
		}
	}
	log.Info("shut down")
	return firstErr
}
