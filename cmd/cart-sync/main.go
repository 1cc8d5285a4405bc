package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/go_cart/cart-sync/internal/config"
	"github.com/fjod/go_cart/cart-sync/internal/engine"
	"github.com/fjod/go_cart/cart-sync/internal/gateway"
	h "github.com/fjod/go_cart/cart-sync/internal/http"
	"github.com/fjod/go_cart/cart-sync/internal/poller"
	"github.com/fjod/go_cart/cart-sync/internal/session"
	"github.com/fjod/go_cart/cart-sync/pkg/circuitbreaker"
	"github.com/fjod/go_cart/cart-sync/pkg/logger"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:  "cart-sync",
		Usage: "keeps storefront carts in sync with the backend",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "env-file",
				Usage: "dotenv files to load before reading the environment",
				Value: cli.NewStringSlice(".env"),
			},
		},
		DefaultCommand: "serve",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the cart HTTP API",
				Action: serve,
			},
			{
				Name:  "version",
				Usage: "print the version",
				Action: func(c *cli.Context) error {
					fmt.Fprintln(c.App.Writer, version)
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "cart-sync: %v\n", err)
		os.Exit(1)
	}
}

func serve(c *cli.Context) error {
	cfg, err := config.Load(c.StringSlice("env-file")...)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.LogLevel, cfg.Development)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	pingCtx, cancelPing := context.WithTimeout(c.Context, 5*time.Second)
	defer cancelPing()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
	}

	// one client and one breaker for the whole backend, shared by every session
	httpClient := gateway.NewHTTPClient()
	breaker := gateway.NewBreaker(circuitbreaker.Config{
		Name:                "storefront-backend",
		ConsecutiveFailures: cfg.BreakerFailures,
		OpenTimeout:         cfg.BreakerOpenTimeout,
	}, log)
	newGateway := func(cred gateway.Credential) engine.Gateway {
		return gateway.NewHTTPGateway(cfg.BackendURL, cred,
			gateway.WithHTTPClient(httpClient),
			gateway.WithBreaker(breaker),
			gateway.WithTimeout(cfg.RequestTimeout),
			gateway.WithLogger(log))
	}

	registry, err := session.NewRegistry(session.NewRedisStore(rdb, cfg.SessionTTL), newGateway, cfg.MaxEngines, log)
	if err != nil {
		return err
	}
	defer registry.Close()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(cfg.KafkaBrokers) > 0 {
		p := poller.New(poller.NewKafkaReader(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID), registry, log)
		defer p.Close()
		go p.Run(ctx)
	} else {
		log.Info("no kafka brokers configured, checkout listener disabled")
	}

	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: h.NewRouter(h.RouterConfig{
			Sessions:       registry,
			Logger:         log,
			RequestTimeout: cfg.RequestTimeout,
			CORSOrigins:    cfg.CORSOrigins,
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("cart-sync starting", zap.String("addr", srv.Addr), zap.String("backend", cfg.BackendURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Graceful shutdown
	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server exited")
	return nil
}
