// middleware/ratelimit.go
package middleware

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// Token bucket rate limiter, used when no Redis connection is configured.
type TokenBucket struct {
	tokens         float64
	maxTokens      float64
	refillRate     float64 // tokens per second
	lastRefillTime time.Time
	mu             sync.Mutex
}

func NewTokenBucket(maxTokens, refillRate float64) *TokenBucket {
	return &TokenBucket{
		tokens:         maxTokens,
		maxTokens:      maxTokens,
		refillRate:     refillRate,
		lastRefillTime: time.Now(),
	}
}

func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(tb.lastRefillTime).Seconds()
	tb.tokens += elapsed * tb.refillRate
	if tb.tokens > tb.maxTokens {
		tb.tokens = tb.maxTokens
	}
	tb.lastRefillTime = now

	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

// RateLimiter counts requests per key. With Redis it uses a fixed window
// (INCR + EXPIRE) shared across instances; without it, per-process buckets.
type RateLimiter struct {
	buckets map[string]*TokenBucket
	mu      sync.RWMutex

	redis  *redis.Client
	prefix string

	maxRequests   int
	windowSeconds int
}

var (
	generalLimiter *RateLimiter
	submitLimiter  *RateLimiter
	authLimiter    *RateLimiter
)

// InitRateLimiters wires the limiters; client may be nil.
func InitRateLimiters(client *redis.Client) {
	generalMaxReq := getEnvInt("RATE_LIMIT_MAX_REQUESTS", 100)
	generalWindow := getEnvInt("RATE_LIMIT_WINDOW_MS", 900000) / 1000 // 15 min default
	if generalWindow <= 0 {
		generalWindow = 900
	}
	submitMaxReq := getEnvInt("SUBMIT_RATE_LIMIT_MAX", 10)
	submitWindow := getEnvInt("SUBMIT_RATE_LIMIT_WINDOW_MS", 60000) / 1000 // 1 min default
	if submitWindow <= 0 {
		submitWindow = 60
	}
	authMaxReq := getEnvInt("AUTH_RATE_LIMIT_MAX", 5)
	authWindow := getEnvInt("AUTH_RATE_LIMIT_WINDOW_MS", 300000) / 1000 // 5 min default
	if authWindow <= 0 {
		authWindow = 300
	}

	generalLimiter = NewRateLimiter(client, "rl:general", generalMaxReq, generalWindow)
	submitLimiter = NewRateLimiter(client, "rl:submit", submitMaxReq, submitWindow)
	authLimiter = NewRateLimiter(client, "rl:auth", authMaxReq, authWindow)

	go startCleanupRoutine()
}

func NewRateLimiter(client *redis.Client, prefix string, maxRequests, windowSeconds int) *RateLimiter {
	return &RateLimiter{
		buckets:       make(map[string]*TokenBucket),
		redis:         client,
		prefix:        prefix,
		maxRequests:   maxRequests,
		windowSeconds: windowSeconds,
	}
}

func (rl *RateLimiter) Allow(key string) bool {
	if rl.redis != nil {
		return rl.allowRedis(key)
	}
	return rl.getBucket(key).Allow()
}

func (rl *RateLimiter) allowRedis(key string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	redisKey := fmt.Sprintf("%s:%s", rl.prefix, key)
	count, err := rl.redis.Incr(ctx, redisKey).Result()
	if err != nil {
		// Fail open so a Redis blip does not take down the API.
		log.Printf("Rate limiter: redis error for %s: %v", redisKey, err)
		return true
	}
	if count == 1 {
		rl.redis.Expire(ctx, redisKey, time.Duration(rl.windowSeconds)*time.Second)
	}
	return count <= int64(rl.maxRequests)
}

func (rl *RateLimiter) getBucket(key string) *TokenBucket {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	bucket, exists := rl.buckets[key]
	if !exists {
		refillRate := float64(rl.maxRequests) / float64(rl.windowSeconds)
		bucket = NewTokenBucket(float64(rl.maxRequests), refillRate)
		rl.buckets[key] = bucket
	}
	return bucket
}

func startCleanupRoutine() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		cleanupOldBuckets(generalLimiter)
		cleanupOldBuckets(submitLimiter)
		cleanupOldBuckets(authLimiter)
	}
}

func cleanupOldBuckets(rl *RateLimiter) {
	if rl == nil {
		return
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for key, bucket := range rl.buckets {
		bucket.mu.Lock()
		if now.Sub(bucket.lastRefillTime) > 30*time.Minute {
			delete(rl.buckets, key)
		}
		bucket.mu.Unlock()
	}
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return def
}

func rateLimitDisabled() bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")))
	return val == "false" || val == "0" || val == "no"
}

// RateLimitMiddleware applies general per-IP rate limiting.
func RateLimitMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if rateLimitDisabled() || generalLimiter == nil {
			return c.Next()
		}
		path := c.Path()
		if path == "/health" || path == "/api/health" {
			return c.Next()
		}

		if !generalLimiter.Allow(c.IP()) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success": false,
				"error":   "Rate limit exceeded. Please try again later.",
			})
		}
		return c.Next()
	}
}

// SubmitRateLimitMiddleware limits answer submissions per authenticated
// player, falling back to the client IP before authentication.
func SubmitRateLimitMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if rateLimitDisabled() || submitLimiter == nil {
			return c.Next()
		}

		key := c.IP()
		if playerID, err := GetUserID(c); err == nil {
			key = fmt.Sprintf("player:%d", playerID)
		}

		if !submitLimiter.Allow(key) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success": false,
				"error":   "Too many submissions. Please slow down.",
			})
		}
		return c.Next()
	}
}

// AuthRateLimitMiddleware applies stricter limits on login/register.
func AuthRateLimitMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if rateLimitDisabled() || authLimiter == nil {
			return c.Next()
		}
		if !authLimiter.Allow(c.IP()) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success": false,
				"message": "Too many authentication attempts. Please try again in 5 minutes.",
			})
		}
		return c.Next()
	}
}
