package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ribatshepo/WorkFlowOchestrator-sub001/internal/server"
	"github.com/ribatshepo/WorkFlowOchestrator-sub001/pkg/config"
	"github.com/ribatshepo/WorkFlowOchestrator-sub001/pkg/logger"
	"github.com/ribatshepo/WorkFlowOchestrator-sub001/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("executor")
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.Logger)

	tel, err := telemetry.New(telemetry.Config{
		Enabled:      cfg.Telemetry.Enabled,
		JaegerURL:    cfg.Telemetry.JaegerURL,
		ServiceName:  cfg.Telemetry.ServiceName,
		SamplingRate: cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		log.Fatal("Failed to initialize telemetry", "error", err)
	}

	srv, err := server.New(cfg, log)
	if err != nil {
		log.Fatal("Failed to create server", "error", err)
	}

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal("Server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down executor...")

	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}
	if err := tel.Close(); err != nil {
		log.Error("Failed to shutdown telemetry", "error", err)
	}

	log.Info("Executor exited")
}
