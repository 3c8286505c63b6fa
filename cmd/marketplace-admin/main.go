// Command marketplace-admin runs operator tasks against the marketplace database and queues.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/asktourist/marketplace/config"
	"github.com/asktourist/marketplace/internal/bootstrap"
	domainauth "github.com/asktourist/marketplace/internal/domain/auth"
	"github.com/asktourist/marketplace/internal/ports"
	"github.com/asktourist/marketplace/internal/service"
)

const defaultCommandTimeout = 5 * time.Minute

// approvals is the slice of the approval service the CLI drives.
type approvals interface {
	ListPending(ctx context.Context, limit int) ([]domainauth.Profile, error)
	Approve(ctx context.Context, vendorUserID, actor string) (*domainauth.Profile, error)
	Reject(ctx context.Context, vendorUserID, actor string) (*domainauth.Profile, error)
}

// adminDeps are the live dependencies a command needs. close releases them.
type adminDeps struct {
	Approvals approvals
	Orphans   ports.OrphanQueue
	Identity  ports.IdentityProvider
	close     func() error
}

// adminEnv is shared by every command.
type adminEnv struct {
	Logger *slog.Logger
	Config config.AppConfig
	Out    io.Writer
	In     io.Reader

	connect func(ctx context.Context) (*adminDeps, error)
	migrate func(ctx context.Context) error
}

func main() {
	logger := bootstrap.InitLogger()

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.ErrorContext(context.Background(), "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}

	env := &adminEnv{Logger: logger, Config: cfg, Out: os.Stdout, In: os.Stdin}
	env.connect = env.connectInfra
	env.migrate = env.runMigrations

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(env).ExecuteContext(ctx); err != nil {
		logger.ErrorContext(ctx, "command failed", "error", err)
		stop()
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func newRootCmd(env *adminEnv) *cobra.Command {
	root := &cobra.Command{
		Use:           "marketplace-admin",
		Short:         "Operator tasks for the marketplace auth gate",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(env.Out)
	root.PersistentFlags().Duration("timeout", defaultCommandTimeout, "Maximum time a command may run")

	root.AddCommand(newMigrateCmd(env), newVendorsCmd(env), newOrphansCmd(env))
	return root
}

// commandContext bounds the command by its --timeout flag.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	timeout, err := cmd.Flags().GetDuration("timeout")
	if err != nil || timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	return context.WithTimeout(cmd.Context(), timeout)
}

// withDeps connects, runs fn and releases the connections again.
func (e *adminEnv) withDeps(ctx context.Context, fn func(*adminDeps) error) error {
	deps, err := e.connect(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if deps.close == nil {
			return
		}
		if cerr := deps.close(); cerr != nil {
			e.Logger.Warn("close connections failed", "error", cerr)
		}
	}()
	return fn(deps)
}

func newMigrateCmd(env *adminEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			env.Logger.Info("running database migrations")
			if err := env.migrate(ctx); err != nil {
				return err
			}
			return writeln(env.Out, "Migrations complete.")
		},
	}
}

func (e *adminEnv) runMigrations(ctx context.Context) error {
	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{DBConfig: e.Config.Postgres, Logger: e.Logger})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			e.Logger.Warn("db close failed", "error", closeErr)
		}
	}()
	return bootstrap.RunMigrations(ctx, db, e.Logger)
}

// connectInfra wires Postgres, Redis and the auth stack the same way the server does, so
// approvals made here reach running web processes through the event bus.
func (e *adminEnv) connectInfra(ctx context.Context) (*adminDeps, error) {
	dbCfg := bootstrap.DatabaseConfig{DBConfig: e.Config.Postgres, RedisConfig: e.Config.Redis, Logger: e.Logger}
	db, err := bootstrap.ConnectDB(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	client, err := bootstrap.ConnectRedis(dbCfg)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("connect redis: %w", err), db.Close())
	}
	closeAll := func() error { return errors.Join(client.Close(), db.Close()) }

	auth, err := bootstrap.BuildAuth(ctx, bootstrap.AuthConfig{
		Auth:        e.Config.Auth,
		DB:          db,
		RedisClient: client,
		KeyPrefix:   e.Config.Redis.KeyPrefix,
		Logger:      e.Logger,
	})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("build auth: %w", err), closeAll())
	}

	return &adminDeps{
		Approvals: auth.Approvals,
		Orphans:   auth.Orphans,
		Identity:  auth.Identity,
		close:     closeAll,
	}, nil
}

var _ approvals = (*service.ApprovalService)(nil)
