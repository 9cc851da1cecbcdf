// Package main запускает HTTP-сервер кассы StockPilot.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/stockpilot/internal/config"
	"github.com/mmeshcher/stockpilot/internal/handler"
	"github.com/mmeshcher/stockpilot/internal/middleware"
	"github.com/mmeshcher/stockpilot/internal/repository"
	"github.com/mmeshcher/stockpilot/internal/service"
	"github.com/mmeshcher/stockpilot/internal/stockapi"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	var store service.Store
	if cfg.DatabaseURI != "" {
		repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
		if err != nil {
			sugar.Fatalw("database initialization error", "error", err.Error())
		}
		store = repo
	} else {
		sugar.Infow("DATABASE_URI is empty, POS sessions are kept in memory")
		store = repository.NewMemoryRepository()
	}

	api := stockapi.NewClient(cfg.APIAddress, cfg.APIToken)

	svc := service.NewService(store, api, logger)
	defer svc.Close()

	sessions := middleware.NewSessionMiddleware(cfg.SessionSecret)
	if cfg.SessionSecret == "" {
		sugar.Warnw("SESSION_SECRET is empty, session cookies will not survive a restart")
	}

	h := handler.NewHandler(svc, logger, sessions)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Удаление простаивающих сессий
	g.Go(func() error {
		svc.StartSessionSweeper(ctx, cfg.CartIdleTTL)
		return nil
	})

	g.Go(func() error {
		sugar.Infow("starting stockpilot pos server",
			"addr", cfg.RunAddress,
			"api", cfg.APIAddress,
			"idleTTL", cfg.CartIdleTTL.String(),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown по сигналу или ошибке в другой горутине
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
