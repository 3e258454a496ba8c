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

	"campus-access-backend/config"
	"campus-access-backend/internal/access"
	"campus-access-backend/internal/api"
	"campus-access-backend/internal/db"
	"campus-access-backend/internal/decision"
	"campus-access-backend/internal/notification"
	"campus-access-backend/internal/presence"
	"campus-access-backend/internal/session"
	"campus-access-backend/internal/store"

	"github.com/SherClockHolmes/webpush-go"
)

func main() {
	// Setup logger
	logger := log.New(os.Stdout, "access-backend ", log.LstdFlags)

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

	var webpushOptions *webpush.Options
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
	} else if cfg.Alerts.Enabled {
		logger.Fatalf("long-stay alerts are enabled but VAPID keys are not configured")
	}

	// Initialize database
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)
	tracker := presence.NewTracker(gormDB)
	window := decision.NewWindow(cfg.Access.CorrectionWindow)
	sessions := session.NewManager(gormDB, cfg.Sessions.StaleAfter)
	svc := access.NewService(appStore, tracker, window, cfg.Access.StorageTimeout)
	logger.Println("access services initialized")

	// Replay pending presence reconciliations in the background
	reconciler := access.NewReconciler(appStore, tracker, cfg.Access.ReconcileInterval)
	go reconciler.Run(ctx)

	if cfg.Alerts.Enabled {
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, tracker, webpushOptions)
		checker := notification.NewChecker(tracker, pool, cfg.Alerts.LongStayThreshold, cfg.Alerts.CheckInterval)
		go checker.Run(ctx)
		logger.Println("long-stay alert checker started")
	}

	// Initialize router
	router := api.NewRouter(cfg.Server, appStore, svc, tracker, sessions, webpushOptions, cfg.Access.Location())
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
