package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window limiter backed by Redis INCR/EXPIRE. Without
// a Redis client it counts in process memory instead.
type RateLimiter struct {
	client *redis.Client
	local  *localWindows
}

func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{client: client, local: newLocalWindows()}
}

// ByIP limits requests per client IP.
// key format: rl:<name>:<window_seconds>:<ip>
func (l *RateLimiter) ByIP(name string, maxRequests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "rl:" + name + ":" + strconv.FormatInt(int64(window.Seconds()), 10) + ":" + c.ClientIP()
		l.handle(c, name, key, maxRequests, window)
	}
}

// ByUser limits requests per authenticated user. Requires JWT to run first.
// key format: rl:<name>:<window_seconds>:u<user_id>
func (l *RateLimiter) ByUser(name string, maxRequests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := c.Get(UserIDKey)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		id, _ := userID.(int64)
		key := "rl:" + name + ":" + strconv.FormatInt(int64(window.Seconds()), 10) + ":u" + strconv.FormatInt(id, 10)
		l.handle(c, name, key, maxRequests, window)
	}
}

func (l *RateLimiter) handle(c *gin.Context, name, key string, maxRequests int, window time.Duration) {
	endpoint := name + ":" + c.FullPath()

	val, err := l.incr(c.Request.Context(), key, window)
	if err != nil {
		// on Redis error, fail-open (allow) but set header
		c.Header("X-RateLimit-Error", "redis-error")
		c.Next()
		return
	}

	c.Header("X-RateLimit-Limit", strconv.Itoa(maxRequests))
	c.Header("X-RateLimit-Remaining", strconv.FormatInt(max(0, int64(maxRequests)-val), 10))

	if val > int64(maxRequests) {
		RLBlocked.WithLabelValues(endpoint).Inc()
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":       "rate limit exceeded",
			"retry_after": int(window.Seconds()),
		})
		return
	}

	RLRequests.WithLabelValues(endpoint).Inc()
	c.Next()
}

func (l *RateLimiter) incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	if l.client == nil {
		return l.local.incr(key, window, time.Now()), nil
	}

	val, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if val == 1 {
		// first increment, set expiry
		l.client.Expire(ctx, key, window)
	}
	return val, nil
}
