package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bantamhq/cutman/internal/server"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Cutman server",
		RunE:  runServe,
	}

	cmd.Flags().String("host", "", "override the configured listen host")
	cmd.Flags().Int("port", 0, "override the configured listen port")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Server.Host = host
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.Server.Port = port
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}))

	st, err := initStore(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	hasAdmin, err := st.HasAdminToken(cmd.Context())
	if err != nil {
		return fmt.Errorf("check admin token: %w", err)
	}
	if !hasAdmin {
		logger.Warn("no admin token exists yet; run 'cutman admin init' before accepting traffic")
	}

	limits := server.Limits{
		MaxRequestBodyBytes: cfg.Limits.MaxRequestBodyBytes,
		MaxLFSObjectBytes:   cfg.Limits.MaxLFSObjectBytes,
	}
	srv := server.New(st, cfg.Storage.DataDir, limits, cfg.Auth.AllowUserTokenCreation, logger)

	idleTimeout := time.Duration(cfg.Server.IdleTimeoutSec) * time.Second

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "host", cfg.Server.Host, "port", cfg.Server.Port, "data_dir", cfg.Storage.DataDir)
		errCh <- srv.Start(cfg.Server.Host, cfg.Server.Port, idleTimeout)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server exited: %w", err)
		}
		return nil
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
