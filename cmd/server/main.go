package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vedran77/rentals/internal/config"
	"github.com/vedran77/rentals/internal/database"
	"github.com/vedran77/rentals/internal/functions"
	"github.com/vedran77/rentals/internal/functions/host"
	"github.com/vedran77/rentals/internal/functions/tasks"
	"github.com/vedran77/rentals/internal/realtime"
	"github.com/vedran77/rentals/internal/realtime/redisbus"
	"github.com/vedran77/rentals/internal/repository"
	"github.com/vedran77/rentals/internal/service"
	"github.com/vedran77/rentals/internal/transport/http/handlers"
	"github.com/vedran77/rentals/internal/transport/http/middleware"
	"github.com/vedran77/rentals/internal/transport/ws"
	"golang.org/x/sync/errgroup"
)

func main() {
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
	logger := cfg.NewLogger(os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Store
	store, closeStore, err := database.OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	g, ctx := errgroup.WithContext(ctx)

	// Realtime
	var bus realtime.Bus = realtime.NewLocalBus()
	if cfg.RedisURL != "" {
		rb, err := redisbus.Connect(ctx, cfg.RedisURL, "")
		if err != nil {
			return err
		}
		defer rb.Close()
		rb.Logger = logger
		g.Go(func() error { return rb.Run(ctx) })
		bus = rb
	}
	docs := repository.NewPublishing(store, bus, logger)

	// Services
	notificationService := service.NewNotificationService(docs, cfg.Collections.Notifications, logger)
	messagingService := service.NewMessagingService(docs, cfg.Collections.Messages, logger)
	applicationService := service.NewApplicationService(docs, cfg.Collections.Applications, logger)
	// Accounts hold password hashes and never reach the bus.
	authService := service.NewAuthService(store, cfg.Collections.Users, cfg.JWTSecret, logger)
	messagingService.SetNotifier(notificationService)
	applicationService.SetNotifier(notificationService)

	// Functions
	if cfg.FunctionsURL != "" {
		client := functions.NewClient(cfg.FunctionsURL, cfg.FunctionsAPIKey, functions.WithKafka(cfg.KafkaBrokers, cfg.ExecutionsTopic))
		defer client.Close()
		notificationService.SetExecutor(client)
	} else {
		h := host.New(logger.With("component", "functions"))
		t := tasks.New(docs, cfg.Collections, logger)
		t.EnablePayments = cfg.EnablePayments
		t.Register(h)
		defer h.Wait()
		notificationService.SetExecutor(h)
		g.Go(func() error { return h.Schedule(ctx, tasks.Jobs(cfg)...) })
		logger.Info("Running functions in-process")
	}

	// WebSocket
	hub := ws.NewHub(logger)
	g.Go(func() error {
		hub.Run(ctx)
		return nil
	})
	defer ws.Relay(bus, hub)()

	// Routes
	api := http.NewServeMux()
	handlers.Routes(api, middleware.Auth(cfg.JWTSecret),
		handlers.NewAuthHandler(authService, logger),
		handlers.NewMessageHandler(messagingService, logger),
		handlers.NewNotificationHandler(notificationService, logger),
		handlers.NewApplicationHandler(applicationService, logger),
	)

	mux := http.NewServeMux()
	mux.Handle("GET /ws", ws.ServeWS(hub, cfg.JWTSecret, cfg.AllowedOrigins))
	mux.Handle("/", middleware.Logging(logger)(api))

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           middleware.CORS(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serve(ctx, g, srv, logger)

	err = g.Wait()
	messagingService.Wait()
	notificationService.Wait()
	return err
}

// serve runs srv on g and shuts it down when ctx is done.
func serve(ctx context.Context, g *errgroup.Group, srv *http.Server, logger *slog.Logger) {
	g.Go(func() error {
		logger.Info("Starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("Shutting down server")
		return srv.Shutdown(shutdownCtx)
	})
}
