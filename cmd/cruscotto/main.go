package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"cruscotto/internal/amqp"
	"cruscotto/internal/backend"
	"cruscotto/internal/cache"
	"cruscotto/internal/cli"
	"cruscotto/internal/config"
	apphttp "cruscotto/internal/http"
	"cruscotto/internal/log"
	"cruscotto/internal/palette"
	"cruscotto/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"), log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger.Slog())

	if err := run(logger, cfg); err != nil {
		logger.Error("Server stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

// run owns every resource it opens; they are released by its defers
// before main exits.
func run(logger *log.Logger, cfg *config.Config) error {
	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	backendConfig, err := backend.FromAppConfig(cfg)
	if err != nil {
		return fmt.Errorf("invalid backend configuration: %w", err)
	}
	res, err := backend.NewFactory(logger.WithComponent(log.ComponentSource).Slog()).Create(ctx, backendConfig)
	if err != nil {
		return fmt.Errorf("initialize %s backend: %w", cfg.DataBackend, err)
	}
	if res.Cleanup != nil {
		defer func() {
			if err := res.Cleanup(); err != nil {
				logger.Error("Backend cleanup failed", log.FieldError, err)
			}
		}()
	}

	memo := palette.NewMemo(cfg.CacheMaxEntries)

	manager := cache.NewManager(logger.WithComponent(log.ComponentCache).Slog())
	manager.Register(res.Transactions)
	manager.Register(res.Categories)
	manager.Register(memo.Cache())
	manager.Start(cfg.CacheSweepInterval)
	defer manager.Stop()

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Options{
		Source: res.Backend,
		Caches: map[string]cache.Admin{
			"transactions": res.Transactions,
			"categories":   res.Categories,
			"palette":      memo.Cache(),
		},
		Palette:          memo,
		DefaultBaseColor: cfg.DefaultBaseColor,
		Ready:            res.Ready,
		Logger:           logger,
	})
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = cfg.APITimeout + 5*time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	var client *amqp.Client
	if cfg.AMQPURL != "" {
		client, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger.WithComponent(log.ComponentAMQP).Slog())
		if err != nil {
			return fmt.Errorf("initialize AMQP client: %w", err)
		}
		defer client.Close()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting cruscotto server",
			"port", cfg.Port,
			log.FieldBackend, cfg.DataBackend,
			"cache_ttl", cfg.CacheTTL,
			"sweep_interval", cfg.CacheSweepInterval)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down", log.FieldOperation, log.OpShutdown)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if client != nil {
		invalidator := worker.NewInvalidator(logger.WithComponent(log.ComponentWorker).Slog(), res.Transactions, res.Categories)
		g.Go(func() error {
			err := client.ConsumeTransactionsChanged(gctx, invalidator.HandleTransactionsChanged)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
		logger.Info("Cache invalidation enabled", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP_URL not set, cache invalidation relies on TTL only")
	}

	return g.Wait()
}
