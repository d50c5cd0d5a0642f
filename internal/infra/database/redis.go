package database

import (
	"github.com/redis/go-redis/v9"
)

// NewRedis returns nil when addr is empty so that status events are
// skipped in deployments without redis.
func NewRedis(addr string, password string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}
