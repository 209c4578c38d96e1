package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nounforge/entitykernel/internal/cdc"
	"github.com/nounforge/entitykernel/internal/dispatch/durable"
	"github.com/nounforge/entitykernel/internal/httpapi"
	"github.com/nounforge/entitykernel/internal/kernel"
	"github.com/nounforge/entitykernel/internal/observability"
	"github.com/nounforge/entitykernel/internal/platform/envutil"
	"github.com/nounforge/entitykernel/internal/platform/logger"
	"github.com/nounforge/entitykernel/internal/storage"
)

func main() {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	storageCfg := storage.ConfigFromEnv()
	metrics := observability.NewMetrics()

	opts := []kernel.Option{}

	if envutil.Bool("KERNEL_OUTBOX_ENABLED", false) {
		opts = append(opts, kernel.WithOutbox())
		log.Info("claim-based outbox drain enabled")
	}

	if bus, err := cdc.NewRedisBus(log); err != nil {
		log.Info("CDC redis bus not available, falling back to interval-only polling", "error", err)
	} else {
		opts = append(opts, kernel.WithBus(bus))
		log.Info("CDC redis bus attached")
	}

	if tc, err := durable.NewClient(log); err != nil {
		log.Warn("Temporal client init failed, durable dispatch disabled", "error", err)
	} else if tc != nil {
		opts = append(opts, kernel.WithTemporal(tc))
		log.Info("durable Temporal dispatch path enabled")
		defer tc.Close()
	}

	mgr := kernel.NewManager(storageCfg, log, metrics, opts...)
	defer mgr.Close()

	router := httpapi.NewRouter(mgr)

	port := envutil.Str("PORT", "8080")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("graceful shutdown failed", "error", err)
	}
}
