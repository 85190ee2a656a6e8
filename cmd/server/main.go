package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"storefront/backend/internal/app"
	"storefront/backend/internal/config"
	"storefront/backend/internal/platform/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	zl, restore, err := logger.Install(cfg.LogLevel, cfg.LogFormat, "storefront-api")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer restore()

	ctx := context.Background()
	a, err := app.New(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("startup failed", zap.Error(err))
	}
	a.StartBackground()

	stopCron := func() {}
	if cfg.ReconcileSchedule != "" {
		c, err := a.Reconciler.Schedule(cfg.ReconcileSchedule)
		if err != nil {
			zl.Fatal("reconcile schedule", zap.String("spec", cfg.ReconcileSchedule), zap.Error(err))
		}
		c.Start()
		stopCron = func() { <-c.Stop().Done() }
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		zl.Info("http server listening", zap.String("addr", cfg.HTTPAddr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("serve", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	zl.Info("shutting down http server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("http shutdown", zap.Error(err))
	}
	stopCron()
	if err := a.Close(shutdownCtx); err != nil {
		zl.Error("close", zap.Error(err))
	}
	zl.Info("http server stopped")
}
