package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/medium-digest/internal/app"
	"github.com/JakeFAU/medium-digest/internal/config"
	"github.com/JakeFAU/medium-digest/internal/digest"
	"github.com/JakeFAU/medium-digest/internal/logging"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	payloadPath := flag.String("payload", "", "Process one digest file and exit")
	encoding := flag.String("encoding", "", "Transfer encoding of -payload (identity, quoted-printable)")
	flag.Parse()

	if err := run(*cfgPath, *payloadPath, digest.TransferEncoding(*encoding)); err != nil {
		fmt.Fprintf(os.Stderr, "digest: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgPath, payloadPath string, encoding digest.TransferEncoding) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config failed: %w", err)
	}
	logger, err := logging.New(logging.Config{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
	if err != nil {
		return fmt.Errorf("logger init failed: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		application.Close(closeCtx)
	}()

	if payloadPath == "" {
		return application.Run(ctx)
	}
	return runOnce(ctx, application, payloadPath, encoding)
}

func runOnce(ctx context.Context, application *app.App, path string, encoding digest.TransferEncoding) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read payload: %w", err)
	}
	payload, err := digest.PayloadFromEvent(data)
	if err != nil {
		return fmt.Errorf("payload: %w", err)
	}
	payload.Encoding = encoding

	report, runErr := application.RunOnce(ctx, payload)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if runErr != nil {
		return runErr
	}
	if report.Status() == digest.RunStatusFailed {
		return fmt.Errorf("all %d articles failed", report.Failed())
	}
	return nil
}
