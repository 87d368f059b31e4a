package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/arenabuilder"
	appcfg "github.com/park285/cheese-arena/internal/config"
	"github.com/park285/cheese-arena/internal/obslog"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.Init(cfg.Log); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()

	deps, err := arenabuilder.New(cfg)
	if err != nil {
		log.Fatalf("arena init error: %v", err)
	}
	defer deps.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := deps.Monitor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			obslog.L().Error("monitor_stopped", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           deps.Gateway.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		obslog.L().Info("arena_listening", zap.String("addr", cfg.ListenAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			obslog.L().Error("arena_server_failed", zap.Error(err))
			os.Exit(1)
		}
	}

	obslog.L().Info("arena_shutdown")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// hijacked WebSocket connections are not tracked by Shutdown
	if err := srv.Shutdown(sctx); err != nil {
		obslog.L().Warn("arena_shutdown_incomplete", zap.Error(err))
	}
}
