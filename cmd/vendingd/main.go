package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"vending-fleet-backend/config"
	"vending-fleet-backend/internal/alarm"
	"vending-fleet-backend/internal/api"
	"vending-fleet-backend/internal/command"
	"vending-fleet-backend/internal/db"
	"vending-fleet-backend/internal/metrics"
	"vending-fleet-backend/internal/monitor"
	"vending-fleet-backend/internal/notification"
	"vending-fleet-backend/internal/simulator"
	"vending-fleet-backend/internal/store"
)

func main() {
	// Setup logger
	logger := log.New(os.Stdout, "fleet-backend ", log.LstdFlags)

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	// Web push stays optional; the dashboard falls back to email-only
	// notifications when no VAPID keys are configured.
	var webpushOptions *webpush.Options
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
	} else {
		logger.Println("VAPID keys not configured, web push disabled")
	}

	// Initialize database
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	metrics.Init()

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create the store layer instance
	appStore := store.NewGormStore(gormDB)
	logger.Println("data store initialized")

	// Notification pipeline: push worker pool plus the mail dispatcher. No
	// pool without VAPID keys; the dispatcher treats a nil pool as
	// push-disabled.
	var workerPool *notification.WorkerPool
	if webpushOptions != nil {
		workerPool = notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, webpushOptions)
		workerPool.Start(ctx)
	}

	mailer := notification.NewMailer(&cfg.Mail)
	logger.Printf("mail provider: %s", mailer.Provider())
	dispatcher := notification.NewDispatcher(mailer, cfg.Mail.From, workerPool)

	// Alarm service with the dispatcher as its notifier.
	alarmSvc := alarm.NewService(appStore, dispatcher)

	// Rule sweep in the background.
	sweeper := monitor.NewService(cfg, appStore, alarmSvc)
	go sweeper.Run(ctx)

	// Command queue with its timeout sweep.
	commandSvc := command.NewService(cfg, appStore)
	go commandSvc.Run(ctx)

	// Development-only device simulator.
	if cfg.Simulator.Enabled {
		go simulator.New(cfg, appStore).Run(ctx)
	}

	// Initialize router
	router := api.NewRouter(api.Deps{
		Store:      appStore,
		WebPush:    webpushOptions,
		Dispatcher: dispatcher,
		Sweeper:    sweeper,
		Alarms:     alarmSvc,
		Commands:   commandSvc,
		Policy:     monitor.PolicyFromConfig(&cfg.Monitor),
	})
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start the server in a goroutine
	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// Block until a signal is received.
	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	// Create a deadline to wait for.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
