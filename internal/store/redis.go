package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis holds the rate-limiter backend. Timeouts are deliberately short: a
// slow redis answer must not stall a kiosk tap, and the limiter degrades to
// its in-process fallback on error anyway.
type Redis struct {
	Client *redis.Client
}

// NewRedis builds the client. Connectivity is checked lazily; /healthz
// reports it rather than startup failing on it.
func NewRedis(addr, password string, db int) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})
	return &Redis{Client: client}
}

// Healthy verifies redis connectivity.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}
