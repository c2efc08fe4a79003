// Package bootstrap wires the ledger, the remote session, and the backup
// services from configuration. cmd/api and cmd/ledgerctl share it.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/colmadogutierrez/debtbook/internal/auth"
	"github.com/colmadogutierrez/debtbook/internal/backup"
	"github.com/colmadogutierrez/debtbook/internal/clients"
	"github.com/colmadogutierrez/debtbook/internal/ledger"
	"github.com/colmadogutierrez/debtbook/pkg/config"
	"github.com/colmadogutierrez/debtbook/pkg/db"
	"github.com/colmadogutierrez/debtbook/pkg/httpretry"
	"github.com/colmadogutierrez/debtbook/pkg/kv"
	"github.com/colmadogutierrez/debtbook/pkg/logger"
	"github.com/colmadogutierrez/debtbook/pkg/metrics"
	"github.com/colmadogutierrez/debtbook/pkg/migrate"
	"github.com/colmadogutierrez/debtbook/pkg/netprobe"
	"github.com/colmadogutierrez/debtbook/pkg/redis"
	"github.com/colmadogutierrez/debtbook/pkg/storage/drive"
)

const backupLockName = "backup"

// App holds every long-lived dependency of a debtbook process.
type App struct {
	Config   *config.Config
	Logger   *logger.Logger
	Registry *prometheus.Registry

	DB    *db.Client
	Redis *redis.Client
	KV    kv.Store

	Ledger   *ledger.Store
	Clients  clients.Service
	Tokens   *auth.TokenStore
	Probe    *netprobe.HTTPProbe
	Drive    *drive.Client
	Backups  *backup.Coordinator
	Restorer *backup.Restorer

	stopWatch func()
}

// New connects the storage backends, hydrates the ledger and builds the
// services on top of it. The backup coordinator is subscribed before
// hydration; callers start its loop with Backups.Run.
func New(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*App, error) {
	app := &App{Config: cfg, Logger: logg, Registry: prometheus.NewRegistry()}
	if err := app.build(ctx); err != nil {
		if closeErr := app.Close(ctx); closeErr != nil {
			logg.Error(ctx, "cleanup after failed bootstrap", closeErr)
		}
		return nil, err
	}
	return app, nil
}

func (a *App) build(ctx context.Context) error {
	cfg, logg := a.Config, a.Logger

	if cfg.Storage.UsesSQL() {
		client, err := db.New(ctx, cfg.DB, logg)
		if err != nil {
			return fmt.Errorf("bootstrap database: %w", err)
		}
		a.DB = client
		if err := migrate.MaybeRun(ctx, cfg, logg, client); err != nil {
			return fmt.Errorf("auto-migrate: %w", err)
		}
	}

	// Redis backs the kv store when selected and otherwise only the backup
	// lock, which falls back to an in-process mutex without it.
	if cfg.Storage.Driver == config.StorageDriverRedis || cfg.Redis.URL != "" || cfg.Redis.Address != "" {
		client, err := redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return fmt.Errorf("bootstrap redis: %w", err)
		}
		a.Redis = client
	}

	store, err := kv.Open(cfg.Storage, a.DB, a.Redis)
	if err != nil {
		return fmt.Errorf("open kv store: %w", err)
	}
	a.KV = store

	backupMetrics := metrics.NewBackupMetrics(a.Registry)
	a.Ledger, err = ledger.NewStore(ledger.StoreParams{
		KV:      store,
		Logger:  logg,
		Metrics: metrics.NewLedgerMetrics(a.Registry),
	})
	if err != nil {
		return fmt.Errorf("ledger store: %w", err)
	}

	a.Clients, err = clients.NewService(clients.ServiceParams{Ledger: a.Ledger, Logger: logg})
	if err != nil {
		return fmt.Errorf("client service: %w", err)
	}

	a.Probe = netprobe.New(
		netprobe.WithURL(cfg.Backup.ProbeURL),
		netprobe.WithTimeout(cfg.Backup.ProbeTimeout),
	)

	httpClient := &http.Client{Timeout: cfg.Google.HTTPTimeout}
	a.Tokens, err = auth.NewTokenStore(auth.TokenStoreParams{
		KV:         store,
		Logger:     logg,
		Probe:      a.Probe,
		Google:     cfg.Google,
		HTTPClient: httpClient,
	})
	if err != nil {
		return fmt.Errorf("token store: %w", err)
	}

	requester := httpretry.New(a.Probe,
		httpretry.WithHTTPClient(httpClient),
		httpretry.WithMaxAttempts(cfg.Retry.MaxAttempts),
		httpretry.WithBaseDelay(cfg.Retry.BaseDelay),
		httpretry.WithLogger(logg),
	)
	a.Drive, err = drive.NewClient(requester, a.Tokens,
		drive.WithBaseURL(cfg.Google.DriveBaseURL),
		drive.WithUploadBaseURL(cfg.Google.UploadBaseURL),
	)
	if err != nil {
		return fmt.Errorf("drive client: %w", err)
	}

	var lock backup.Lock = &backup.LocalLock{}
	if a.Redis != nil {
		redisLock, err := backup.NewRedisLock(a.Redis, a.Redis.LockKey(backupLockName), 0)
		if err != nil {
			return fmt.Errorf("backup lock: %w", err)
		}
		lock = redisLock
	}

	a.Backups, err = backup.NewCoordinator(backup.CoordinatorParams{
		Ledger:  a.Ledger,
		Remote:  a.Drive,
		Session: a.Tokens,
		Probe:   a.Probe,
		Lock:    lock,
		Logger:  logg,
		Metrics: backupMetrics,
		Config:  cfg.Backup,
	})
	if err != nil {
		return fmt.Errorf("backup coordinator: %w", err)
	}
	a.Restorer, err = backup.NewRestorer(backup.RestorerParams{
		Ledger:  a.Ledger,
		Remote:  a.Drive,
		Session: a.Tokens,
		Probe:   a.Probe,
		Logger:  logg,
		Metrics: backupMetrics,
		Config:  cfg.Backup,
	})
	if err != nil {
		return fmt.Errorf("restorer: %w", err)
	}

	a.stopWatch = a.Backups.Watch()
	if err := a.Ledger.Load(ctx); err != nil {
		return fmt.Errorf("hydrate ledger: %w", err)
	}
	return nil
}

// Close flushes the ledger and releases the storage connections.
func (a *App) Close(ctx context.Context) error {
	var err error
	if a.stopWatch != nil {
		a.stopWatch()
	}
	if a.Ledger != nil {
		err = multierr.Append(err, a.Ledger.Close(ctx))
	}
	if a.Redis != nil {
		err = multierr.Append(err, a.Redis.Close())
	}
	if a.DB != nil {
		err = multierr.Append(err, a.DB.Close())
	}
	return err
}
