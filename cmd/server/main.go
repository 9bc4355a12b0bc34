package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"swasthai.dev/health-sentinel/internal/api"
	"swasthai.dev/health-sentinel/internal/config"
	"swasthai.dev/health-sentinel/internal/core"
	"swasthai.dev/health-sentinel/internal/notify"
	"swasthai.dev/health-sentinel/internal/scheduler"
	"swasthai.dev/health-sentinel/internal/store"
)

func main() {
	// Load configuration
	config.LoadConfig()

	// Setup logging
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if config.AppConfig.LogLevel == "DEBUG" {
		log.Println("Service starting in DEBUG mode")
	}

	// Initialize database store
	dbStore, err := store.NewSQLiteStore(config.AppConfig.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer dbStore.Close()

	// Initialize reasoning engine
	reasoning := core.NewGeminiEngine()
	defer reasoning.Close()

	// Initialize notification transports
	authority := notify.NewAuthorityClient(config.AppConfig.AuthorityURL)
	notifier, err := notify.NewTelegramNotifier(config.AppConfig.TelegramBotToken, dbStore, authority)
	if err != nil {
		log.Fatalf("Failed to initialize Telegram notifier: %v", err)
	}

	// Initialize core services
	sessions := core.NewSessionManager(dbStore)
	dispatcher := core.NewAlertDispatcher(dbStore, notifier)
	surveillance := core.NewSurveillanceEngine(dbStore, dispatcher,
		config.AppConfig.AnomalyThreshold, config.AppConfig.BaselineWindows)
	followups := core.NewFollowUpScheduler(dbStore, notifier)
	triage := core.NewTriageService(sessions, dbStore, reasoning, notifier)

	// Background jobs: surveillance and follow-up sweeps on independent ticks
	jobs := scheduler.New(time.Duration(config.AppConfig.ShutdownGraceSeconds) * time.Second)
	jobs.Add("surveillance", time.Duration(config.AppConfig.SurveillanceIntervalMinutes)*time.Minute,
		func(ctx context.Context) error {
			_, err := surveillance.RunSurveillance(ctx, config.AppConfig.SpikeWindowHours)
			return err
		})
	jobs.Add("followup", time.Duration(config.AppConfig.FollowupIntervalMinutes)*time.Minute,
		func(ctx context.Context) error {
			result, err := followups.RunFollowUpSweep(ctx, config.AppConfig.FollowupBatchLimit)
			if err != nil {
				return err
			}
			if result.Dispatched > 0 || result.Failed > 0 {
				log.Printf("followup sweep: %d dispatched, %d failed", result.Dispatched, result.Failed)
			}
			return nil
		})
	jobs.Start()

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(triage, surveillance, dbStore)
	router := api.NewRouter(apiHandler)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // reasoning calls can take time
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		log.Printf("Starting server on %s. Press Ctrl+C to quit.", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", serverAddr, err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(config.AppConfig.ShutdownGraceSeconds)*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// Stop the background jobs last so an in-flight sweep can finish its
	// writes before the store closes.
	jobs.Stop()

	log.Println("Server exiting gracefully")
}
