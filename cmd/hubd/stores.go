package main

import (
	"context"
	"fmt"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/kv"
	"github.com/xraph/grove/kv/drivers/redisdriver"

	"github.com/arelis/hub/store"
	"github.com/arelis/hub/store/memory"
	"github.com/arelis/hub/store/mongo"
	"github.com/arelis/hub/store/postgres"
	"github.com/arelis/hub/store/redis"
	"github.com/arelis/hub/store/sqlite"
)

// openStore connects the configured backend.
func openStore(ctx context.Context, c StoreConfig) (store.Store, error) {
	switch c.Driver {
	case "memory":
		return memory.New(), nil

	case "postgres":
		drv := pgdriver.New()
		if err := drv.Open(ctx, c.DSN); err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		db, err := grove.Open(drv)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return postgres.New(db), nil

	case "sqlite":
		drv := sqlitedriver.New()
		if err := drv.Open(ctx, c.DSN); err != nil {
			return nil, fmt.Errorf("connect sqlite: %w", err)
		}
		db, err := grove.Open(drv)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return sqlite.New(db), nil

	case "mongo":
		drv := mongodriver.New()
		if err := drv.Open(ctx, c.DSN); err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		db, err := grove.Open(drv)
		if err != nil {
			return nil, fmt.Errorf("open mongo: %w", err)
		}
		return mongo.New(db), nil

	case "redis":
		drv := redisdriver.New()
		if err := drv.Open(ctx, c.DSN); err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		kvs, err := kv.Open(drv)
		if err != nil {
			return nil, fmt.Errorf("open redis: %w", err)
		}
		return redis.New(kvs), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", c.Driver)
}
