package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/asktourist/marketplace/config"
	"github.com/asktourist/marketplace/internal/data"
	httpx "github.com/asktourist/marketplace/internal/http"
	"github.com/asktourist/marketplace/internal/service"
)

const shutdownWaitTimeout = 15 * time.Second

// ServiceContainer holds the services shared by every enabled service mode.
type ServiceContainer struct {
	Auth         *AuthComponents
	Dashboard    *service.DashboardService
	HealthChecks map[string]httpx.HealthCheck
}

// ServiceDeps contains the infrastructure needed to build the services.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// NewServices builds the auth stack, the dashboard service and the readiness probes.
func NewServices(ctx context.Context, deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps missing AppConfig")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	auth, err := BuildAuth(ctx, AuthConfig{
		Auth:        deps.Config.Auth,
		DB:          deps.DB,
		RedisClient: deps.RedisClient,
		KeyPrefix:   deps.Config.Redis.KeyPrefix,
		Logger:      logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build auth: %w", err)
	}

	container := ServiceContainer{
		Auth:         auth,
		HealthChecks: healthChecks(deps.DB, deps.RedisClient),
	}
	if deps.DB != nil {
		container.Dashboard = service.NewDashboardService(data.NewDashboardRepo(deps.DB))
	}
	return container, nil
}

func healthChecks(db *sql.DB, client redis.UniversalClient) map[string]httpx.HealthCheck {
	checks := make(map[string]httpx.HealthCheck, 2)
	if db != nil {
		checks["postgres"] = db.PingContext
	}
	if client != nil {
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}
	return checks
}

// ServiceOrchestrationConfig contains dependencies for running the enabled services.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger

	// Signals overrides the OS signals that trigger shutdown (tests).
	Signals <-chan os.Signal
}

type backgroundService struct {
	name  string
	mode  config.ServiceMode
	start func(ctx context.Context) error
}

type backgroundServiceHandle struct {
	name string
	done <-chan struct{}
}

type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				deps.logger.WarnContext(ctx, "dropping background service error", "service", descriptor.name, "error", errMsg)
			}
		}
	}()

	deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	return done
}

func newOrphanReaperBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		name: "orphan reaper",
		mode: config.ServiceModeOrphanReaper,
		start: func(ctx context.Context) error {
			auth := deps.cfg.Services.Auth
			if auth == nil {
				return errors.New("orphan reaper requires the auth stack")
			}
			reaper, err := service.NewOrphanReaperService(service.OrphanReaperServiceOptions{
				Queue:    auth.Orphans,
				Identity: auth.Identity,
				Config:   deps.cfg.Config.OrphanReaper,
				Logger:   deps.logger,
			})
			if err != nil {
				return fmt.Errorf("create orphan reaper: %w", err)
			}
			return reaper.Run(ctx)
		},
	}
}

// ServiceStartupResult holds what has to be stopped on shutdown.
type ServiceStartupResult struct {
	HTTPServer *http.Server
	Background []backgroundServiceHandle
}

func startServices(deps *serviceStartupDeps) (ServiceStartupResult, error) {
	var result ServiceStartupResult

	if deps.enabledServices[config.ServiceModeHTTP] {
		// Stores consume the event bus, so the manager only runs alongside the web server.
		if err := deps.cfg.Services.Auth.States.Start(deps.ctx); err != nil {
			return result, fmt.Errorf("start auth state manager: %w", err)
		}
		srv, err := StartHTTPServer(&HTTPServerConfig{
			Config:   deps.cfg.Config,
			Services: deps.cfg.Services,
			Logger:   deps.logger,
		})
		if err != nil {
			return result, err
		}
		result.HTTPServer = srv
	}

	for _, svc := range []backgroundService{newOrphanReaperBackgroundService(deps)} {
		if done := launchBackground(deps.ctx, deps, svc); done != nil {
			result.Background = append(result.Background, backgroundServiceHandle{name: svc.name, done: done})
		}
	}
	return result, nil
}

// RunServicesWithShutdown starts the enabled services and blocks until a shutdown signal or a
// service error.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}
	if cfg.Services.Auth == nil {
		return errors.New("service orchestration config missing auth stack")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, len(enabledServices))

	stopCfg := shutdownConfig{
		cancel: cancel,
		errCh:  errCh,
		auth:   cfg.Services.Auth,
		logger: logger,
	}
	result, err := startServices(&serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	})
	stopCfg.httpServer = result.HTTPServer
	stopCfg.backgrounds = result.Background
	if err != nil {
		cancel()
		if stopErr := gracefulStop(stopCfg); stopErr != nil {
			logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}

	signals := cfg.Signals
	if signals == nil {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)
		signals = quit
	}
	stopCfg.signals = signals
	return waitForShutdown(stopCfg)
}

type shutdownConfig struct {
	cancel      context.CancelFunc
	errCh       <-chan error
	signals     <-chan os.Signal
	httpServer  *http.Server
	auth        *AuthComponents
	backgrounds []backgroundServiceHandle
	logger      *slog.Logger
}

func waitForShutdown(cfg shutdownConfig) error {
	select {
	case <-cfg.signals:
		cfg.logger.Info("shutting down services...")
		cfg.cancel()
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel()
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop closes the state stores, which ends open watch streams, then drains the HTTP
// server and waits for the workers.
func gracefulStop(cfg shutdownConfig) error {
	var errs []error
	if cfg.auth != nil && cfg.auth.States != nil {
		if err := cfg.auth.States.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close auth state manager: %w", err))
		}
	}

	if cfg.httpServer != nil {
		if err := ShutdownHTTPServer(ShutdownConfig{
			Context: context.Background(),
			Server:  cfg.httpServer,
			Logger:  cfg.logger,
		}); err != nil {
			errs = append(errs, err)
		}
	}

	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	return errors.Join(errs...)
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
