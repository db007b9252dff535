package main

import (
	"fmt"

	"github.com/cwbudde/annealcycle/internal/config"
	"github.com/cwbudde/annealcycle/internal/store"
)

// openStore builds the configured checkpoint backend. The returned close
// function is never nil.
func openStore(sc config.StoreConfig) (store.Store, func() error, error) {
	switch sc.Backend {
	case "", "fs":
		fs, err := store.NewFSStore(sc.DataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create checkpoint store: %w", err)
		}
		return fs, func() error { return nil }, nil
	case "redis":
		rs, err := store.NewRedisStore(store.RedisOptions{
			Addr:     sc.Redis.Addr,
			Password: sc.Redis.Password,
			DB:       sc.Redis.DB,
			Prefix:   sc.Redis.Prefix,
			TTL:      sc.Redis.TTL,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect checkpoint store: %w", err)
		}
		return rs, rs.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend: %q", sc.Backend)
	}
}
