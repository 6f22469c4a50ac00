package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitushen/langdonboard/internal/config"
	"github.com/hitushen/langdonboard/internal/log"
	"github.com/hitushen/langdonboard/internal/server"
	"github.com/hitushen/langdonboard/internal/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error("langdonboard failed", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := log.New(cfg.Verbose)
	slog.SetDefault(logger)

	st, err := store.New(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := st.EnsureAdmin(ctx, cfg.AdminUser, cfg.AdminPassword); err != nil {
		return err
	}

	srv, err := server.New(cfg, st, logger)
	if err != nil {
		return err
	}
	defer srv.Close()

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("langdonboard listening", "addr", cfg.Addr, "db", cfg.DBPath, "mock", cfg.MockData)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// 优雅地关闭服务
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case <-stop:
	case err := <-errCh:
		return err
	}
	logger.Info("shutting down")

	// SSE 长连接在 Close 时结束，否则 Shutdown 会一直等待。
	srv.Close()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	return httpServer.Shutdown(shutdownCtx)
}
