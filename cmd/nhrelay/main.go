package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"go.uber.org/zap"

	"github.com/notehub/nhchat/internal/logging"
	"github.com/notehub/nhchat/internal/relay"
)

const shutdownTimeout = 10 * time.Second

func main() {
	envFile := flag.String("env", ".env", "dotenv file loaded before reading RELAY_* variables")
	flag.Parse()

	cfg, err := relay.LoadConfig(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewConsole("nhrelay", cfg.Debug)
	defer func() { _ = logger.Sync() }()

	srv, err := relay.New(cfg, logger)
	if err != nil {
		logger.Fatal("init relay", zap.Error(err))
	}
	if _, err := srv.Start(); err != nil {
		logger.Fatal("start relay", zap.Error(err))
	}

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"relay": srv.Shutdown,
		},
	)
	code := <-wait
	logger.Info("exiting", zap.Int("code", code))
	_ = logger.Sync()
	os.Exit(code)
}
