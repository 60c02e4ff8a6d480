package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fleetline/dispatchvoice/adapters/store"
	"github.com/fleetline/dispatchvoice/config"
	"github.com/fleetline/dispatchvoice/domain/repositories"
	"github.com/fleetline/dispatchvoice/internal/api"
	"github.com/fleetline/dispatchvoice/internal/auth"
	"github.com/fleetline/dispatchvoice/internal/call"
	"github.com/fleetline/dispatchvoice/internal/completion"
	"github.com/fleetline/dispatchvoice/internal/pipeline"
	"github.com/fleetline/dispatchvoice/internal/rooms"
	"github.com/fleetline/dispatchvoice/internal/session"
	"github.com/fleetline/dispatchvoice/internal/wsbridge"
)

const sessionRetention = 30 * time.Minute

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("loading configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	callStore, agents, cleanup, err := buildStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("connecting durable store", zap.Error(err))
	}
	defer cleanup()

	sessions := session.NewManager(logger)
	factory := pipeline.NewFactory(cfg, logger)
	finalizer := completion.NewFinalizer(callStore, logger)
	provisioner := rooms.NewDailyProvisioner(cfg.Daily, logger)
	bridge := wsbridge.NewRegistry(logger)
	authenticator := auth.New(cfg.JWTSecret)

	service := call.NewService(agents, callStore, sessions, factory, finalizer, provisioner, bridge, logger)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	api.NewServer(service, bridge, authenticator, logger).Register(e)

	// Terminal sessions are kept in memory for a while for diagnostics.
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if evicted := sessions.EvictOld(sessionRetention); evicted > 0 {
					logger.Info("evicted finished sessions", zap.Int("count", evicted))
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()
	logger.Info("server started", zap.String("port", cfg.Port))

	<-ctx.Done()
	logger.Info("server is shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}
	logger.Info("server exited")
}

// buildStore picks the durable store from configuration: Supabase when
// configured, Mongo when configured, otherwise the in-memory store for
// local development.
func buildStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories.CallStore, repositories.AgentConfigSource, func(), error) {
	noop := func() {}
	switch {
	case cfg.Supabase.URL != "":
		s, err := store.NewSupabase(cfg.Supabase.URL, cfg.Supabase.APIKey, logger)
		if err != nil {
			return nil, nil, noop, err
		}
		logger.Info("using supabase store")
		return s, s, noop, nil
	case cfg.Mongo.URI != "":
		m, err := store.NewMongo(ctx, cfg.Mongo, logger)
		if err != nil {
			return nil, nil, noop, err
		}
		logger.Info("using mongo store", zap.String("database", cfg.Mongo.Database))
		cleanup := func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := m.Close(closeCtx); err != nil {
				logger.Error("closing mongo store", zap.Error(err))
			}
		}
		return m, m, cleanup, nil
	default:
		logger.Warn("no durable store configured, using in-memory store")
		m := store.NewMemory()
		return m, m, noop, nil
	}
}
