package docstore

import (
	"context"
	"fmt"

	"github.com/lepinkainen/backlogsync/internal/config"
	"github.com/redis/go-redis/v9"
)

// Open validates the store configuration and returns the selected backend.
// Missing credentials fail here, before any network call.
func Open(ctx context.Context, cfg *config.Config) (Backend, error) {
	if err := cfg.ValidateStore(); err != nil {
		return nil, err
	}

	switch cfg.Store.Backend {
	case "sqlite":
		store := NewSQLite(cfg.Store.SQLite.DBFile, cfg.Store.SQLite.Name)
		if err := store.Connect(); err != nil {
			return nil, err
		}
		return store, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:        cfg.Store.Redis.Addr,
			Password:    cfg.Store.Redis.Password,
			DB:          cfg.Store.Redis.DB,
			ReadTimeout: cfg.Store.Timeout,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Store.Redis.Addr, err)
		}
		return NewRedis(client, cfg.Store.Redis.Key), nil
	default:
		gh := cfg.Store.GitHub
		return NewGitHub(GitHubOptions{
			APIURL:  gh.APIURL,
			Owner:   gh.Owner,
			Repo:    gh.Repo,
			Branch:  gh.Branch,
			Path:    gh.Path,
			Token:   gh.Token,
			Timeout: cfg.Store.Timeout,
		}), nil
	}
}
