package middlewares

import (
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimiter enforces a fixed window per derived key. Counters live
// in Redis so every API replica sees the same budget; with no Redis
// client it degrades to per-process in-memory counters.
type RateLimiter struct {
	rdb    *redis.Client
	window time.Duration
	limit  int

	mu      sync.Mutex
	clients map[string]*clientBucket
}

type clientBucket struct {
	count     int
	windowEnd time.Time
}

func NewRateLimiter(rdb *redis.Client, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		rdb:     rdb,
		limit:   limit,
		window:  window,
		clients: make(map[string]*clientBucket),
	}
}

// Middleware returns a gin.HandlerFunc that enforces the limit for a derived key.
func (rl *RateLimiter) RateLimiterMiddleware(keyFn func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFn(c)

		if key == "" {
			// fallback to IP if key cannot be derived
			key = clientIP(c)
		}

		var (
			allowed    bool
			retryAfter int
		)
		if rl.rdb != nil {
			allowed, retryAfter = rl.allowRedis(c, key)
		} else {
			allowed, retryAfter = rl.allowLocal(key)
		}

		if !allowed {
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(429, gin.H{
				"error": gin.H{
					"code":    "rate_limited",
					"message": "Too many requests. Please try again shortly.",
				},
			})
			return
		}

		c.Next()
	}
}

func (rl *RateLimiter) allowRedis(c *gin.Context, key string) (bool, int) {
	ctx := c.Request.Context()
	rkey := "ratelimit:" + key

	pipe := rl.rdb.TxPipeline()
	incr := pipe.Incr(ctx, rkey)
	pipe.ExpireNX(ctx, rkey, rl.window)
	if _, err := pipe.Exec(ctx); err != nil {
		// Redis down must not take the API with it.
		slog.Default().WarnContext(ctx, "rate_limiter_redis_error", "err", err)
		return true, 0
	}

	if int(incr.Val()) > rl.limit {
		ttl, err := rl.rdb.TTL(ctx, rkey).Result()
		if err != nil || ttl < 0 {
			ttl = rl.window
		}
		return false, int(ttl.Seconds())
	}
	return true, 0
}

func (rl *RateLimiter) allowLocal(key string) (bool, int) {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.clients[key]
	if !ok || now.After(b.windowEnd) {
		rl.clients[key] = &clientBucket{
			count:     1,
			windowEnd: now.Add(rl.window),
		}
		return true, 0
	}

	if b.count >= rl.limit {
		retryAfter := int(time.Until(b.windowEnd).Seconds())
		if retryAfter < 0 {
			retryAfter = 0
		}
		return false, retryAfter
	}

	b.count++
	return true, 0
}

// for unauthenticated endpoints: rate limit by IP
func KeyByIP(c *gin.Context) string {
	return clientIP(c)
}

// for authenticated endpoints: rate limit by userID if available
func KeyByUserOrIP(c *gin.Context) string {
	id, ok := UserIDFromContext(c)

	if ok && id != "" {
		return "user:" + id
	}

	return clientIP(c)
}

func clientIP(c *gin.Context) string {
	// Gin's ClientIP respects X-Forwarded-For / X-Real-IP if configured.
	ip := c.ClientIP()

	host, _, err := net.SplitHostPort(ip)
	if err == nil && host != "" {
		return host
	}

	return ip
}
