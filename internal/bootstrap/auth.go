package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/asktourist/marketplace/config"
	"github.com/asktourist/marketplace/internal/adapters/authroles"
	"github.com/asktourist/marketplace/internal/adapters/devauth"
	"github.com/asktourist/marketplace/internal/adapters/gotrue"
	"github.com/asktourist/marketplace/internal/adapters/oidc"
	redisadapter "github.com/asktourist/marketplace/internal/adapters/redis"
	"github.com/asktourist/marketplace/internal/authstate"
	"github.com/asktourist/marketplace/internal/data"
	"github.com/asktourist/marketplace/internal/devseed"
	domainauth "github.com/asktourist/marketplace/internal/domain/auth"
	"github.com/asktourist/marketplace/internal/ports"
	"github.com/asktourist/marketplace/internal/service"
)

// AuthConfig contains configuration for the auth stack.
type AuthConfig struct {
	Auth        config.AuthConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	KeyPrefix   string
	Logger      *slog.Logger

	// Profiles replaces the Postgres profile repository when set.
	Profiles ports.ProfileRepository
}

// AuthComponents is the wired auth stack shared by the HTTP server and the workers.
type AuthComponents struct {
	Identity  ports.IdentityProvider
	Profiles  ports.ProfileRepository
	Events    ports.AuthEventBus
	Orphans   ports.OrphanQueue
	Auth      *service.AuthService
	Approvals *service.ApprovalService
	States    *authstate.Manager
}

// BuildAuth creates the identity provider selected by the auth mode and the services around it.
// The returned state manager is not started.
func BuildAuth(ctx context.Context, cfg AuthConfig) (*AuthComponents, error) {
	if cfg.RedisClient == nil {
		return nil, errors.New("auth requires a redis client")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	profiles := cfg.Profiles
	if profiles == nil {
		if cfg.DB == nil {
			return nil, errors.New("auth requires a database")
		}
		profiles = data.NewProfileRepo(cfg.DB)
	}

	identity, err := buildIdentityProvider(ctx, cfg, profiles, logger)
	if err != nil {
		return nil, err
	}
	sso, err := buildSSO(cfg.Auth.SSO, logger)
	if err != nil {
		return nil, err
	}

	sessions := redisadapter.NewSessionStoreWithPrefix(cfg.RedisClient, cfg.KeyPrefix)
	events := redisadapter.NewEventBus(redisadapter.EventBusOptions{
		Client: cfg.RedisClient,
		Prefix: cfg.KeyPrefix,
		Logger: logger,
	})
	orphans := redisadapter.NewOrphanQueue(cfg.RedisClient, cfg.KeyPrefix)
	session := cfg.Auth.Session

	authSvc := service.NewAuthService(service.AuthServiceOptions{
		Identity: identity,
		Sessions: sessions,
		Profiles: profiles,
		SSO:      sso,
		Events:   events,
		Orphans:  orphans,
		Limiter:  service.NewLoginLimiter(session.LoginRate, session.LoginBurst),
		Session:  session,
		Logger:   logger,
	})

	return &AuthComponents{
		Identity: identity,
		Profiles: profiles,
		Events:   events,
		Orphans:  orphans,
		Auth:     authSvc,
		Approvals: service.NewApprovalService(service.ApprovalServiceOptions{
			Profiles: profiles,
			Events:   events,
			Logger:   logger,
		}),
		States: authstate.NewManager(authstate.ManagerOptions{
			Sessions:     authSvc,
			Profiles:     profiles,
			SignOuter:    authSvc,
			Events:       events,
			FetchTimeout: session.FetchTimeout,
			IdleTTL:      session.StoreIdleTTL,
			Logger:       logger,
		}),
	}, nil
}

//nolint:ireturn // the auth mode picks the implementation at runtime.
func buildIdentityProvider(
	ctx context.Context,
	cfg AuthConfig,
	profiles ports.ProfileRepository,
	logger *slog.Logger,
) (ports.IdentityProvider, error) {
	switch cfg.Auth.Mode {
	case config.AuthModeSupabase:
		sb := cfg.Auth.Supabase
		client, err := gotrue.NewClient(gotrue.Config{
			URL:            sb.URL,
			AnonKey:        sb.AnonKey,
			ServiceRoleKey: sb.ServiceRoleKey,
			JWKSURL:        sb.JWKSURL,
			NameClaim:      sb.NameClaim,
			HTTPClient:     &http.Client{Timeout: sb.Timeout},
			Logger:         logger,
		})
		if err != nil {
			return nil, fmt.Errorf("build identity client: %w", err)
		}
		if sb.ServiceRoleKey == "" {
			logger.Warn("SUPABASE_SERVICE_ROLE_KEY not set; failed sign-ups cannot be compensated")
		}
		return client, nil

	case config.AuthModeMock:
		prov := devauth.NewProvider(devauth.Config{SessionDuration: cfg.Auth.Session.AccessTTL})
		if err := seedDevAccounts(ctx, prov, profiles, cfg.Auth.DevAuth, logger); err != nil {
			return nil, err
		}
		logger.Warn("using in-process development identity service", "admin_email", cfg.Auth.DevAuth.AdminEmail)
		return prov, nil

	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.Auth.Mode)
	}
}

// seedDevAccounts creates the development admin and, when enabled, the demo accounts.
func seedDevAccounts(
	ctx context.Context,
	prov *devauth.Provider,
	profiles ports.ProfileRepository,
	cfg config.DevAuthConfig,
	logger *slog.Logger,
) error {
	var accounts []devseed.Account
	if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
		accounts = append(accounts, devseed.Account{
			Email:    cfg.AdminEmail,
			Password: cfg.AdminPassword,
			Name:     "Administrator",
			Role:     domainauth.RoleAdmin,
			Approved: true,
		})
	}
	if cfg.SeedDemo && cfg.DemoPassword != "" {
		accounts = append(accounts, devseed.DemoAccounts(cfg.DemoPassword)...)
	}
	if len(accounts) == 0 {
		return nil
	}
	if err := devseed.Run(ctx, devseed.Services{Identities: prov, Profiles: profiles}, accounts, logger); err != nil {
		return fmt.Errorf("seed dev accounts: %w", err)
	}
	return nil
}

func buildSSO(cfg config.SSOConfig, logger *slog.Logger) (service.SSOOptions, error) {
	if !cfg.Enabled {
		return service.SSOOptions{}, nil
	}
	if cfg.DiscoveryURL == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		logger.Warn("SSO enabled but required config missing; operator sign-in disabled",
			"discovery_url_empty", cfg.DiscoveryURL == "",
			"client_id_empty", cfg.ClientID == "",
			"client_secret_empty", cfg.ClientSecret == "",
		)
		return service.SSOOptions{}, nil
	}

	prov, err := oidc.NewProvider(oidc.ProviderConfig{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scope:        cfg.Scope,
		DiscoveryURL: cfg.DiscoveryURL,
	})
	if err != nil {
		return service.SSOOptions{}, fmt.Errorf("build SSO provider: %w", err)
	}
	return service.SSOOptions{
		Provider: prov,
		Roles:    authroles.GroupRoleMapper{AdminGroup: cfg.AdminGroup},
	}, nil
}
