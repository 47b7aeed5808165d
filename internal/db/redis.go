package db

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"GistAPI/internal/logger"
)

// RDB is nil when no REDIS_ADDR is configured; registry reloads then stay local.
var RDB *redis.Client

// InitRedis принимает адрес явно (а не через os.Getenv)
func InitRedis(addr string) error {
	if addr == "" {
		logger.Warn("redis_disabled", nil)
		return nil
	}
	RDB = redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := RDB.Ping(ctx).Err(); err != nil {
		_ = RDB.Close()
		RDB = nil
		return err
	}
	return nil
}

func CloseRedis() {
	if RDB != nil {
		_ = RDB.Close()
	}
}
