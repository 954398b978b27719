package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/lamont-llp/safeguard-eldos-sub000/internal/app"
	"github.com/lamont-llp/safeguard-eldos-sub000/internal/app/maintenance"
	"github.com/lamont-llp/safeguard-eldos-sub000/internal/backend"
	"github.com/lamont-llp/safeguard-eldos-sub000/internal/incidents"
	"github.com/lamont-llp/safeguard-eldos-sub000/internal/notify"
	"github.com/lamont-llp/safeguard-eldos-sub000/internal/optimistic"
	"github.com/lamont-llp/safeguard-eldos-sub000/internal/push"
	"github.com/lamont-llp/safeguard-eldos-sub000/internal/realtime"
	"github.com/lamont-llp/safeguard-eldos-sub000/internal/storage"
	"github.com/lamont-llp/safeguard-eldos-sub000/internal/store"
	"github.com/lamont-llp/safeguard-eldos-sub000/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("safeguard-agent", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var configPath string
	fs.StringVar(&configPath, "config", "", "Path to configuration directory or file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadApplicationConfig(configPath)
	if err != nil {
		return err
	}

	if err := app.ConfigureLogging(cfg.Logging); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort

	log := logger.WithModule("bootstrap")

	db, kv := initialiseStorage(cfg, log)
	defer closeDatabase(db, log)
	localStore := storage.NewStore(kv, logger.WithModule("storage"))

	provider := initialisePush(cfg, log)

	engine, err := notify.NewEngine(ctx, localStore, provider, cfg.Backend.Origin, logger.WithModule("notify"))
	if err != nil {
		return fmt.Errorf("initialise delivery engine: %w", err)
	}
	if cfg.Push.Enabled {
		if state, err := engine.RequestPermission(ctx); err == nil {
			log.Info("push permission resolved", zap.String("state", string(state)))
		}
	}

	records := store.NewRecordStore()
	manager, err := optimistic.NewManager(records, logger.WithModule("optimistic"))
	if err != nil {
		return fmt.Errorf("initialise optimistic manager: %w", err)
	}

	api := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Token, logger.WithModule("backend"))

	service, err := incidents.NewService(records, manager, api, engine, logger.WithModule("incidents"))
	if err != nil {
		return fmt.Errorf("initialise incident service: %w", err)
	}

	controllers, err := subscribeTopics(ctx, cfg, service)
	if err != nil {
		return err
	}
	defer func() {
		for _, controller := range controllers {
			controller.Teardown()
		}
	}()

	cleaner := maintenance.NewCleaner(manager, engine, service.ResolverStats())
	if err := cleaner.Start(); err != nil {
		return fmt.Errorf("start maintenance jobs: %w", err)
	}
	defer func() {
		stopCtx := cleaner.Stop()
		if err := cleaner.RunOnce(stopCtx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}()

	metricsErr := make(chan error, 1)
	if cfg.Monitoring.Prometheus.Enabled {
		metricsServer := &http.Server{Addr: cfg.Monitoring.Prometheus.Address}
		mux := http.NewServeMux()
		mux.Handle(cfg.Monitoring.Prometheus.Endpoint, promhttp.Handler())
		metricsServer.Handler = mux

		go func() {
			log.Info("metrics listening", zap.String("addr", metricsServer.Addr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				metricsErr <- err
			}
			close(metricsErr)
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	log.Info("agent running",
		zap.String("backend", cfg.Backend.BaseURL),
		zap.String("realtime", cfg.Realtime.URL))

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-metricsErr:
		if err != nil {
			return fmt.Errorf("metrics server error: %w", err)
		}
	}

	log.Info("agent stopped gracefully")
	return nil
}

// subscribeTopics sets up a controller per topic. Both topics share the
// websocket provider; each controller owns its own connection and retry
// budget.
func subscribeTopics(ctx context.Context, cfg *app.Config, service *incidents.Service) ([]*realtime.Controller, error) {
	provider := realtime.NewWebSocketProvider(cfg.Realtime.URL, cfg.Backend.Token, logger.WithModule("realtime"))

	topics := []struct {
		name    string
		handler realtime.Handler
	}{
		{realtime.TopicIncidentChanges, func(event realtime.Event) {
			service.HandleChangeEvent(ctx, event)
		}},
		{realtime.TopicUrgentAlerts, func(event realtime.Event) {
			service.HandleUrgentAlert(ctx, event)
		}},
	}

	controllers := make([]*realtime.Controller, 0, len(topics))
	for _, topic := range topics {
		controller, err := realtime.NewController(realtime.Config{
			Topic:       topic.name,
			BaseDelay:   cfg.Realtime.BaseDelay,
			MaxDelay:    cfg.Realtime.MaxDelay,
			MaxAttempts: cfg.Realtime.MaxAttempts,
		}, provider, topic.handler, service.OnSyncStateChange, logger.WithModule("realtime"))
		if err != nil {
			return nil, fmt.Errorf("build %s controller: %w", topic.name, err)
		}
		if err := controller.Setup(ctx); err != nil {
			return nil, fmt.Errorf("subscribe %s: %w", topic.name, err)
		}
		controllers = append(controllers, controller)
	}
	return controllers, nil
}

// initialiseStorage opens the local database; failure degrades to in-memory
// persistence rather than refusing to start.
func initialiseStorage(cfg *app.Config, log *zap.Logger) (*gorm.DB, storage.KV) {
	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		log.Warn("local database unavailable", zap.String("path", cfg.Storage.Path), zap.Error(err))
		return nil, nil
	}

	kv, err := storage.NewGormKV(db)
	if err != nil {
		log.Warn("local persistence unavailable", zap.Error(err))
		return db, nil
	}
	return db, kv
}

func initialisePush(cfg *app.Config, log *zap.Logger) push.Provider {
	if !cfg.Push.Enabled {
		return push.NopProvider{}
	}

	provider, err := push.NewFCMProvider(cfg.Push.ServerKey, cfg.Push.DeviceToken, logger.WithModule("push"))
	if err != nil {
		log.Warn("push channel unavailable, falling back to in-app only", zap.Error(err))
		return push.NopProvider{}
	}
	return provider
}

func loadApplicationConfig(path string) (*app.Config, error) {
	switch {
	case strings.TrimSpace(path) == "":
		return app.LoadConfig()
	default:
		info, err := os.Stat(path)
		if err == nil {
			if info.IsDir() {
				return app.LoadConfig(path)
			}
			return app.LoadConfig(filepath.Dir(path))
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config path %q does not exist", path)
		}
		return nil, fmt.Errorf("stat config path: %w", err)
	}
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
