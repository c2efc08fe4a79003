// Package kv is the local key-value persistence used for the ledger record
// ("clients") and the auth record ("@auth_data").
package kv

import (
	"context"
	"fmt"

	"github.com/colmadogutierrez/debtbook/pkg/config"
	"github.com/colmadogutierrez/debtbook/pkg/db"
	"github.com/colmadogutierrez/debtbook/pkg/redis"
)

// Store persists opaque string values under string keys.
type Store interface {
	// Get returns the stored value; found is false when the key is absent.
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

// Open selects the backend for the configured storage driver. Exactly one of
// sqlClient / redisClient is expected to be non-nil for the chosen driver.
func Open(cfg config.StorageConfig, sqlClient *db.Client, redisClient *redis.Client) (Store, error) {
	switch cfg.Driver {
	case config.StorageDriverSQLite, config.StorageDriverPostgres:
		if sqlClient == nil {
			return nil, fmt.Errorf("sql client required for %s storage", cfg.Driver)
		}
		return NewSQLStore(sqlClient), nil
	case config.StorageDriverRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("redis client required for redis storage")
		}
		return NewRedisStore(redisClient), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}
