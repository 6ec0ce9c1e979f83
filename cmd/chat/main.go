package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fathima-sithara/messaging-core/internal/bootstrap"
)

func main() {
	cfgPath := flag.String("config", "config/config.yaml", "path to the config file")
	flag.Parse()

	app, cleanup, err := bootstrap.Init(*cfgPath)
	if err != nil {
		log.Fatalf("init: %v", err)
	}
	logger := app.Logger

	go func() {
		addr := app.Config.App.Addr()
		logger.Info("listening", zap.String("addr", addr))
		if err := app.App.Listen(addr); err != nil {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := app.App.ShutdownWithContext(ctx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	cleanup(ctx)
}
