package httpmiddleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RedisWindow enforces a fixed per-minute window per client IP across all
// processes sharing the redis instance. Kiosk taps go through this one so a
// wedged kiosk cannot flood the ledger from any replica.
type RedisWindow struct {
	client    *redis.Client
	keyPrefix string
	perMinute int
	fallback  *SimpleTokenBucket
}

// NewRedisWindow builds the limiter. When redis calls fail it degrades to an
// in-process token bucket rather than rejecting traffic.
func NewRedisWindow(client *redis.Client, keyPrefix string, perMinute int) *RedisWindow {
	if keyPrefix == "" {
		keyPrefix = "shiftboard:ratelimit"
	}
	if perMinute <= 0 {
		perMinute = 60
	}
	return &RedisWindow{
		client:    client,
		keyPrefix: keyPrefix,
		perMinute: perMinute,
		fallback:  NewSimpleTokenBucket(perMinute, perMinute),
	}
}

// GinMiddleware returns gin handler enforcing the window.
func (l *RedisWindow) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		if !l.allow(c, ip) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit"})
			return
		}
		c.Next()
	}
}

func (l *RedisWindow) allow(c *gin.Context, ip string) bool {
	ctx := c.Request.Context()
	key := l.keyPrefix + ":" + ip + ":" + time.Now().UTC().Format("200601021504")

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return l.fallback.allow(ip)
	}
	if count == 1 {
		_ = l.client.Expire(ctx, key, 2*time.Minute).Err()
	}
	return count <= int64(l.perMinute)
}
