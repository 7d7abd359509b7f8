package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vedran77/rentals/internal/config"
	"github.com/vedran77/rentals/internal/database"
	"github.com/vedran77/rentals/internal/functions/host"
	"github.com/vedran77/rentals/internal/functions/tasks"
	"github.com/vedran77/rentals/internal/realtime"
	"github.com/vedran77/rentals/internal/realtime/redisbus"
	"github.com/vedran77/rentals/internal/repository"
	"github.com/vedran77/rentals/pkg/secret"
	"golang.org/x/sync/errgroup"
)

func main() {
	hashKey := flag.String("hash-key", "", "print the FUNCTIONS_API_KEY_HASH for a key and exit")
	flag.Parse()

	if *hashKey != "" {
		hash, err := secret.Hash(*hashKey)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := cfg.NewLogger(os.Stdout).With("component", "functions")

	keyHash := cfg.FunctionsKeyHash
	if keyHash == "" {
		if cfg.FunctionsAPIKey == "" {
			return errors.New("FUNCTIONS_API_KEY_HASH or FUNCTIONS_API_KEY is required")
		}
		if keyHash, err = secret.Hash(cfg.FunctionsAPIKey); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := database.OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	g, ctx := errgroup.WithContext(ctx)

	// Changes made here reach websocket clients only through Redis.
	var bus realtime.Bus = realtime.NewLocalBus()
	if cfg.RedisURL != "" {
		rb, err := redisbus.Connect(ctx, cfg.RedisURL, "")
		if err != nil {
			return err
		}
		defer rb.Close()
		rb.Logger = logger
		bus = rb
	}

	h := host.New(logger)
	t := tasks.New(repository.NewPublishing(store, bus, logger), cfg.Collections, logger)
	t.EnablePayments = cfg.EnablePayments
	t.Register(h)
	defer h.Wait()

	srv := &http.Server{
		Addr:              ":" + cfg.FunctionsPort,
		Handler:           h.Handler(keyHash),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serve(ctx, g, srv, logger)

	if len(cfg.KafkaBrokers) > 0 {
		reader := host.NewReader(cfg.KafkaBrokers, cfg.ExecutionsTopic, cfg.ExecutionsGroup)
		g.Go(func() error { return h.Consume(ctx, reader) })
		logger.Info("Consuming queued executions", "topic", cfg.ExecutionsTopic, "group", cfg.ExecutionsGroup)
	}

	g.Go(func() error { return h.Schedule(ctx, tasks.Jobs(cfg)...) })

	return g.Wait()
}

func serve(ctx context.Context, g *errgroup.Group, srv *http.Server, logger *slog.Logger) {
	g.Go(func() error {
		logger.Info("Starting function host", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
