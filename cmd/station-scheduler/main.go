package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"station-scheduler/internal/config"
	"station-scheduler/internal/httpapi"
	"station-scheduler/internal/logger"
	"station-scheduler/internal/service"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "station-scheduler")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting station-scheduler service")

	svc, err := service.NewSchedulerService(cfg, log)
	if err != nil {
		log.Fatal("Failed to create scheduler service", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// HTTP endpoints are served in both trigger modes; in polling mode the
	// tick endpoint simply forces a tick between polls.
	router := httpapi.NewRouter(log)
	router.RegisterSchedulerRoutes(httpapi.NewSchedulerHandler(svc, log))
	httpServer := &http.Server{
		Addr:    cfg.Scheduler.HTTPAddr,
		Handler: router,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 2)
	go func() {
		if err := svc.Start(ctx); err != nil {
			errChan <- err
		}
	}()
	go func() {
		log.Info("HTTP server listening", zap.String("addr", cfg.Scheduler.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	case err := <-errChan:
		log.Error("Service error", zap.Error(err))
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down HTTP server", zap.Error(err))
	}

	svc.Stop()

	log.Info("Service stopped")
}
