package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/orrn/printfarm/internal/logging"
)

type RateLimiterConfig struct {
	RedisClient *redis.Client
	Limit       int
	Window      time.Duration
	KeyPrefix   string
	Extractor   func(c *gin.Context) string
}

// ClientIP keys a limiter on the first X-Forwarded-For hop, then the remote
// address.
func ClientIP(c *gin.Context) string {
	if xff := c.Request.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	return c.ClientIP()
}

// NewRateLimiter is a fixed-window counter in Redis. Redis errors let the
// request through.
func NewRateLimiter(cfg RateLimiterConfig) gin.HandlerFunc {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "rl:"
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 60
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Extractor == nil {
		cfg.Extractor = ClientIP
	}
	log := logging.Component("ratelimit")

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		id := cfg.Extractor(c)
		if id == "" {
			id = "anonymous"
		}
		key := cfg.KeyPrefix + id

		count, err := cfg.RedisClient.Incr(ctx, key).Result()
		if err != nil {
			log.WithError(err).WithField("key", key).Warn("rate limiter unavailable")
			c.Next()
			return
		}
		if count == 1 {
			cfg.RedisClient.Expire(ctx, key, cfg.Window)
		}

		ttl, _ := cfg.RedisClient.TTL(ctx, key).Result()
		reset := int(ttl.Seconds())
		if reset < 0 {
			reset = 0
		}
		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", cfg.Limit))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", reset))

		if count > int64(cfg.Limit) {
			c.Header("X-RateLimit-Remaining", "0")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":             "rate_limited",
				"message":           "rate limit exceeded",
				"rate_limit":        cfg.Limit,
				"rate_limit_window": cfg.Window.String(),
				"retry_after_sec":   reset,
			})
			return
		}

		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", cfg.Limit-int(count)))
		c.Next()
	}
}
