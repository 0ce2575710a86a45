package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"

	"sharing/internal/app"
	"sharing/internal/config"
)

const shutdownTimeout = 30 * time.Second

var configFile = flag.String("config", "", "JSON or YAML config file (default $SHARESTORE_CONFIG_FILE)")

func main() {
	flag.Parse()
	defer glog.Flush()

	if err := run(); err != nil {
		glog.Errorf("%v", err)
		glog.Flush()
		os.Exit(1)
	}
}

// run serves until SIGINT or SIGTERM, then shuts down gracefully
func run() error {
	path := *configFile
	if path == "" {
		path = os.Getenv("SHARESTORE_CONFIG_FILE")
	}
	cfg := config.LoadConfigWithPrecedence(path)

	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		_ = application.Stop(context.Background())
		return fmt.Errorf("application error: %w", err)
	}

	<-ctx.Done()
	glog.Infof("shutdown requested, stopping gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := application.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}
