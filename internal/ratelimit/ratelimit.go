package ratelimit

import (
	"context"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
)

type KeyType string

const (
	KeyProjectID KeyType = "project_id"
	KeyIP        KeyType = "ip"
)

// Key identifies who is being limited: a project for API callers, an IP for
// anonymous ones.
type Key struct {
	Type  KeyType
	Value string
}

// Bucket is one named limit class (embeddings, sections, search) with its
// own window.
type Bucket struct {
	Name   string
	Limit  int64
	Window time.Duration
}

// Result reports the outcome of a limit check. When Success is false the
// caller must not attempt the gated operation.
type Result struct {
	Success           bool  `json:"success"`
	Limit             int64 `json:"limit"`
	Remaining         int64 `json:"remaining"`
	RetryAfterHours   int   `json:"retry_after_hours"`
	RetryAfterMinutes int   `json:"retry_after_minutes"`
}

// Limiter is a fixed-window counter over a shared redis store, so limits
// hold across all instances of the service.
type Limiter struct {
	client *redisv9.Client
}

func NewLimiter(client *redisv9.Client) *Limiter {
	return &Limiter{client: client}
}

func (l *Limiter) Check(ctx context.Context, bucket Bucket, key Key) (*Result, error) {
	redisKey := fmt.Sprintf("ratelimit:%s:%s:%s", bucket.Name, key.Type, key.Value)

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis incr rate limit failed: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, redisKey, bucket.Window).Err(); err != nil {
			return nil, fmt.Errorf("redis expire rate limit failed: %w", err)
		}
	}

	remaining := bucket.Limit - count
	if remaining < 0 {
		remaining = 0
	}
	result := &Result{
		Success:   count <= bucket.Limit,
		Limit:     bucket.Limit,
		Remaining: remaining,
	}
	if !result.Success {
		ttl, err := l.client.TTL(ctx, redisKey).Result()
		if err != nil || ttl < 0 {
			ttl = bucket.Window
		}
		result.RetryAfterHours, result.RetryAfterMinutes = splitRetryAfter(ttl)
	}
	return result, nil
}

// splitRetryAfter renders a wait duration as whole hours plus leftover
// minutes, rounding sub-minute waits up to one minute.
func splitRetryAfter(d time.Duration) (hours, minutes int) {
	if d <= 0 {
		return 0, 0
	}
	totalMinutes := int(d / time.Minute)
	if d%time.Minute > 0 {
		totalMinutes++
	}
	return totalMinutes / 60, totalMinutes % 60
}
