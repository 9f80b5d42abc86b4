package middleware

import (
	"context"
	"log"
	"strconv"

	"github.com/gin-gonic/gin"

	"markprompt/internal/ratelimit"
	"markprompt/internal/transport/http/response"
)

type limitChecker interface {
	Check(ctx context.Context, bucket ratelimit.Bucket, key ratelimit.Key) (*ratelimit.Result, error)
}

// RateLimit rejects requests over the bucket's window limit before any
// gated work runs. Project-keyed buckets need auth to have run first;
// IP-keyed buckets work for anonymous callers too. A limiter outage fails
// open: serving unmetered beats serving nothing.
func RateLimit(limiter limitChecker, bucket ratelimit.Bucket, keyType ratelimit.KeyType) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := ratelimit.Key{Type: keyType}
		switch keyType {
		case ratelimit.KeyProjectID:
			key.Value = strconv.FormatUint(uint64(ProjectID(c)), 10)
		default:
			key.Value = c.ClientIP()
		}

		result, err := limiter.Check(c.Request.Context(), bucket, key)
		if err != nil {
			log.Printf("rate limit check failed for bucket %s: %v", bucket.Name, err)
			c.Next()
			return
		}
		if !result.Success {
			response.TooManyRequests(c, result.RetryAfterHours, result.RetryAfterMinutes)
			c.Abort()
			return
		}
		c.Next()
	}
}
