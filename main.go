package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/golfproxy/proxy/config"
	"github.com/golfproxy/proxy/internal/bootstrap"
	"github.com/golfproxy/proxy/internal/obslog"
)

const shutdownTimeout = 30 * time.Second

func main() {
	log := obslog.Init(obslog.Config{Level: "info"})
	obslog.SetGlobal(log)

	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
		os.Exit(1)
	}

	if cfg.IsDevelopment() {
		obslog.SetGlobal(obslog.Init(obslog.Config{Level: "debug", Pretty: true}))
	}

	runServer(cfg)
}

func runServer(cfg *config.Config) {
	app, cleanup, err := bootstrap.NewServer(cfg)
	if err != nil {
		obslog.L(context.Background()).WithError(err).Fatal("failed to initialize server")
		os.Exit(1)
	}
	defer cleanup()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		obslog.L(context.Background()).WithField("timeout", shutdownTimeout.String()).Info("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := app.ShutdownWithContext(ctx); err != nil {
			obslog.L(context.Background()).WithError(err).Error("error shutting down server")
		} else {
			obslog.L(context.Background()).Info("server shut down gracefully")
		}
	}()

	addr := ":" + cfg.Port
	obslog.L(context.Background()).WithField("addr", addr).Info("starting server")
	if err := app.Listen(addr); err != nil {
		obslog.L(context.Background()).WithError(err).Fatal("server stopped")
		os.Exit(1)
	}
}
