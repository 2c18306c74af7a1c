// Package ratelimit counts requests per key in fixed Redis windows.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/DarshiBhavsar/chat-app-sub000/config"
)

// Rule is a budget of Limit requests per Window.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Decision is the outcome of one check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter is the contract the HTTP middleware depends on.
type Limiter interface {
	Allow(ctx context.Context, key string, rule Rule) (Decision, error)
	Reset(ctx context.Context, key string, rule Rule) error
}

// WindowLimiter implements Limiter with INCR and EXPIRE on a key per window.
type WindowLimiter struct {
	redisClient *redis.Client
	logger      *zap.Logger
	failOpen    bool // allow requests when Redis is unavailable
	now         func() time.Time
}

func NewWindowLimiter(redisClient *redis.Client, logger *zap.Logger, failOpen bool) *WindowLimiter {
	return &WindowLimiter{
		redisClient: redisClient,
		logger:      logger,
		failOpen:    failOpen,
		now:         time.Now,
	}
}

func (l *WindowLimiter) Allow(ctx context.Context, key string, rule Rule) (Decision, error) {
	if rule.Limit <= 0 {
		return Decision{Allowed: true, Remaining: -1}, nil
	}

	now := l.now()
	start := now.Truncate(rule.Window)
	bucketKey := bucketKey(key, start, rule.Window)

	pipe := l.redisClient.Pipeline()
	incr := pipe.Incr(ctx, bucketKey)
	pipe.Expire(ctx, bucketKey, rule.Window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.Error("rate limit check failed", zap.String("key", bucketKey), zap.Error(err))
		if l.failOpen {
			return Decision{Allowed: true, Remaining: -1}, nil
		}
		return Decision{}, fmt.Errorf("rate limit check failed: %w", err)
	}

	count := int(incr.Val())
	d := Decision{Allowed: count <= rule.Limit, Remaining: max(rule.Limit-count, 0)}
	if !d.Allowed {
		d.RetryAfter = start.Add(rule.Window).Sub(now)
		l.logger.Warn("rate limit exceeded",
			zap.String("key", key),
			zap.Int("count", count),
			zap.Int("limit", rule.Limit),
		)
	}
	return d, nil
}

// Reset clears the current window of key.
func (l *WindowLimiter) Reset(ctx context.Context, key string, rule Rule) error {
	start := l.now().Truncate(rule.Window)
	if err := l.redisClient.Del(ctx, bucketKey(key, start, rule.Window)).Err(); err != nil {
		return fmt.Errorf("failed to reset rate limit for key %s: %w", key, err)
	}
	return nil
}

func bucketKey(key string, start time.Time, window time.Duration) string {
	return fmt.Sprintf("ratelimit:%s:%d:%d", key, int64(window.Seconds()), start.Unix())
}

// Endpoint names used by the router.
const (
	EndpointRegister = "register"
	EndpointLogin    = "login"
	EndpointMessage  = "message"
	EndpointUpload   = "upload"
	EndpointAPI      = "api"
)

// RuleFor maps an endpoint name to its per-minute budget.
func RuleFor(endpoint string, cfg *config.RateLimitConfig) Rule {
	limit := 100
	switch endpoint {
	case EndpointRegister:
		limit = cfg.RegisterPerMinute
	case EndpointLogin:
		limit = cfg.LoginPerMinute
	case EndpointMessage:
		limit = cfg.MessagePerMinute
	case EndpointUpload:
		limit = cfg.UploadPerMinute
	case EndpointAPI:
		limit = cfg.APIPerMinute
	}
	return Rule{Limit: limit, Window: time.Minute}
}
