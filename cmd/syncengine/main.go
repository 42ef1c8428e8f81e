// Command syncengine runs the integration sync engine.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/syncengine/internal/adapters/driven/lease/redis"
	"github.com/custodia-labs/syncengine/internal/adapters/driven/notify"
	"github.com/custodia-labs/syncengine/internal/adapters/driven/secrets"
	"github.com/custodia-labs/syncengine/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/syncengine/internal/adapters/driven/userdir"
	"github.com/custodia-labs/syncengine/internal/adapters/driving/cli"
	"github.com/custodia-labs/syncengine/internal/adapters/driving/httpapi"
	"github.com/custodia-labs/syncengine/internal/config"
	"github.com/custodia-labs/syncengine/internal/connectors/builtin"
	"github.com/custodia-labs/syncengine/internal/core/domain"
	"github.com/custodia-labs/syncengine/internal/core/ports/driven"
	"github.com/custodia-labs/syncengine/internal/core/services"
	"github.com/custodia-labs/syncengine/internal/logger"
)

// version is set at build time.
var version = "dev"

func main() {
	if err := cli.Execute(bootstrap, version); err != nil {
		os.Exit(1)
	}
}

// bootstrap wires the engine from configuration.
func bootstrap(ctx context.Context, cfg config.Config) (*cli.Runtime, error) {
	store, err := sqlite.NewStore(cfg.Database.Dir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	closers := []func() error{store.Close}
	closeAll := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}
	fail := func(err error) (*cli.Runtime, error) {
		_ = closeAll()
		return nil, err
	}

	keyring, err := secrets.New(secrets.Options{
		File:      cfg.Secrets.KeyringFile,
		MasterKey: secrets.MasterKeyFromEnv(cfg.Secrets.MasterKeyEnv),
	})
	if err != nil {
		return fail(fmt.Errorf("%w: set %s or create %s", err, cfg.Secrets.MasterKeyEnv, cfg.Secrets.KeyringFile))
	}

	var leases driven.LeaseStore = store.LeaseStore()
	if cfg.Lease.Backend == config.LeaseRedis {
		client, err := redis.Connect(ctx, cfg.Lease.RedisAddr, cfg.Lease.RedisPassword, cfg.Lease.RedisDB)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, client.Close)
		leases = redis.NewLeaseStore(client, cfg.Lease.RedisPrefix)
	}

	adapters, err := builtin.Build(cfg.Connectors())
	if err != nil {
		return fail(err)
	}
	registry := services.NewProviderRegistry(adapters...)

	notifier := notify.Multi{notify.Log{}}
	if cfg.Notify.SlackWebhookURL != "" {
		notifier = append(notifier, notify.NewSlack(cfg.Notify.SlackWebhookURL, nil))
	}

	connections := store.ConnectionStore()
	vault := services.NewTokenVault(store.CredentialsStore(), keyring)

	authCfg := services.DefaultAuthConfig()
	authCfg.BaseURL = cfg.Server.BaseURL
	authCfg.StateTTL = cfg.Auth.StateTTL
	authCfg.RefreshSkew = cfg.Auth.RefreshSkew
	auth := services.NewAuthManager(registry, connections, store.AuthStateStore(), vault, nil, authCfg)

	syncCfg := services.DefaultSyncConfig()
	syncCfg.LeaseTTL = cfg.Sync.LeaseTTL
	syncCfg.CallTimeout = cfg.Sync.CallTimeout
	syncCfg.Retry = services.RetryPolicy{MaxRetries: cfg.Sync.MaxRetries, BaseDelay: cfg.Sync.BaseBackoff}
	syncCfg.ConflictWindow = cfg.Sync.ConflictWindow
	syncCfg.DefaultLookback = cfg.Sync.DefaultLookback
	syncCfg.UserParallelism = cfg.Sync.UserParallelism
	syncCfg.Holder = holderID()
	syncer := services.NewSyncManager(
		connections,
		store.MappingStore(),
		store.HistoryStore(),
		leases,
		store.EntityStore(),
		registry,
		auth,
		notifier,
		nil,
		syncCfg,
	)

	pool := services.NewWorkerPool(syncer, connections, services.WorkerPoolConfig{
		Workers:             cfg.Sync.Workers,
		QueueSize:           cfg.Sync.QueueSize,
		ProviderConcurrency: cfg.Sync.ProviderConcurrency,
	})
	auth.SetQueue(pool)
	syncer.SetQueue(pool)

	schedCfg := domain.DefaultSchedulerConfig()
	schedCfg.Enabled = cfg.Sync.SchedulerEnabled
	schedCfg.TaskConfigs[domain.TaskIDConnectionSync] = domain.TaskConfig{Enabled: true, Interval: cfg.Sync.Interval}
	schedCfg.TaskConfigs[domain.TaskIDStateCleanup] = domain.TaskConfig{Enabled: true, Interval: cfg.Sync.StateCleanupInterval}
	scheduler := services.NewScheduler(schedCfg, store.SchedulerStore(), connections, syncer, auth)

	var users *userdir.JWTDirectory
	if cfg.Auth.JWTSecret != "" {
		users, err = userdir.NewJWTDirectory([]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL)
		if err != nil {
			return fail(err)
		}
	}

	rt := &cli.Runtime{
		Config:      cfg,
		Auth:        auth,
		Connections: services.NewConnectionService(connections, store.HistoryStore()),
		Sync:        syncer,
		Secrets:     vault,
		Close:       closeAll,
	}
	if users != nil {
		rt.Tokens = users
	}

	rt.Serve = func(ctx context.Context) error {
		if users == nil {
			return errors.New("auth.jwt_secret must be set to serve the API")
		}
		if len(registry.Providers()) == 0 {
			logger.Warn("no providers configured; only the connection API is useful")
		}

		server := httpapi.NewServer(httpapi.Config{
			Addr:            cfg.Server.Addr,
			WebhookDeadline: cfg.Server.WebhookDeadline,
			MaxWebhookBytes: cfg.Server.MaxWebhookBytes,
			Debug:           cfg.Server.Debug,
		}, httpapi.Services{
			Auth:        auth,
			Connections: rt.Connections,
			Sync:        syncer,
			Queue:       pool,
			Webhooks:    services.NewWebhookGateway(registry, connections, pool),
			Users:       users,
			Ready:       store.Ping,
		})

		pool.Start(ctx)
		defer pool.Stop()

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error { return keyring.Watch(ctx) })
		g.Go(func() error { return scheduler.Start(ctx) })
		g.Go(func() error {
			<-ctx.Done()
			return scheduler.Stop()
		})
		g.Go(func() error { return server.Run(ctx) })

		logger.Info("syncengine %s serving %d providers", version, len(registry.Providers()))
		return g.Wait()
	}
	return rt, nil
}

// holderID identifies this process in lease records.
func holderID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "syncengine"
	}
	return host + "-" + uuid.NewString()[:8]
}
