package model

import (
	"context"
	"fmt"
	"io/fs"

	"GistAPI/internal/logger"

	"github.com/redis/go-redis/v9"
)

const (
	reloadChannel = "gist:registry"
	versionKey    = "gist:registry:version"
)

// Reload rebuilds the registry from fsys and swaps it in when the definitions
// changed. It reports whether a new snapshot was installed.
func Reload(fsys fs.FS) (bool, error) {
	next, err := Build(fsys)
	if err != nil {
		return false, err
	}
	prev := current.Load()
	if prev != nil && prev.version == next.version {
		return false, nil
	}
	current.Store(next)
	fields := map[string]any{"version": next.version}
	if prev != nil {
		fields["previous"] = prev.version
	}
	logger.Info("registry_reloaded", fields)
	return true, nil
}

// PublishReload asks every running instance to reload its schema definitions.
func PublishReload(ctx context.Context, rdb *redis.Client) error {
	version := ""
	if s := current.Load(); s != nil {
		version = s.version
	}
	if err := rdb.Set(ctx, versionKey, version, 0).Err(); err != nil {
		return fmt.Errorf("store registry version: %w", err)
	}
	if err := rdb.Publish(ctx, reloadChannel, version).Err(); err != nil {
		return fmt.Errorf("publish reload: %w", err)
	}
	return nil
}

// WatchReload reloads the registry whenever a reload is published, until ctx
// is cancelled.
func WatchReload(ctx context.Context, rdb *redis.Client, fsys fs.FS) error {
	sub := rdb.Subscribe(ctx, reloadChannel)
	defer sub.Close()

	// дожидаемся подтверждения подписки
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", reloadChannel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			changed, err := Reload(fsys)
			if err != nil {
				logger.Error("registry_reload_failed", map[string]any{
					"error":     err.Error(),
					"requested": msg.Payload,
				})
				continue
			}
			if !changed {
				logger.Debug("registry_reload_noop", map[string]any{"requested": msg.Payload})
			}
		}
	}
}
