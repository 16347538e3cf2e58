package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/medscanlab/neuroscan/internal/bootstrap"
	"github.com/medscanlab/neuroscan/internal/config"
	"github.com/medscanlab/neuroscan/internal/observability/logging"
)

func main() {
	cfg, err := config.Load("staff")
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := logging.NewJSONLogger("staff", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.NewStaff(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	if err := bootstrap.Serve(ctx, app, "staff"); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
