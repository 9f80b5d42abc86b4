package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"markprompt/internal/model"
	"markprompt/internal/pkg/jwtutil"
	"markprompt/internal/ratelimit"
)

type fakeLimiter struct {
	result *ratelimit.Result
	err    error
	keys   []ratelimit.Key
}

func (f *fakeLimiter) Check(ctx context.Context, bucket ratelimit.Bucket, key ratelimit.Key) (*ratelimit.Result, error) {
	f.keys = append(f.keys, key)
	return f.result, f.err
}

func limitedRouter(limiter limitChecker, keyType ratelimit.KeyType, handled *int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	bucket := ratelimit.Bucket{Name: "sections", Limit: 10, Window: time.Minute}
	r.GET("/gated",
		func(c *gin.Context) { c.Set(ContextProjectIDKey, uint(7)) },
		RateLimit(limiter, bucket, keyType),
		func(c *gin.Context) { *handled++; c.Status(http.StatusOK) },
	)
	return r
}

func TestRateLimitRejectsOverLimit(t *testing.T) {
	handled := 0
	limiter := &fakeLimiter{result: &ratelimit.Result{Success: false, RetryAfterHours: 1, RetryAfterMinutes: 30}}
	r := limitedRouter(limiter, ratelimit.KeyProjectID, &handled)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/gated", nil))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, 0, handled, "a limited request must not reach the handler")
	assert.Contains(t, w.Body.String(), "1 hour 30 minutes")

	require.Len(t, limiter.keys, 1)
	assert.Equal(t, ratelimit.KeyProjectID, limiter.keys[0].Type)
	assert.Equal(t, "7", limiter.keys[0].Value)
}

func TestRateLimitAllowsUnderLimit(t *testing.T) {
	handled := 0
	limiter := &fakeLimiter{result: &ratelimit.Result{Success: true, Remaining: 9}}
	r := limitedRouter(limiter, ratelimit.KeyProjectID, &handled)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/gated", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, handled)
}

func TestRateLimitFailsOpenOnLimiterError(t *testing.T) {
	handled := 0
	limiter := &fakeLimiter{err: errors.New("redis down")}
	r := limitedRouter(limiter, ratelimit.KeyProjectID, &handled)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/gated", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, handled)
}

func TestRateLimitKeysAnonymousCallersByIP(t *testing.T) {
	handled := 0
	limiter := &fakeLimiter{result: &ratelimit.Result{Success: true}}
	r := limitedRouter(limiter, ratelimit.KeyIP, &handled)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/gated", nil)
	req.RemoteAddr = "198.51.100.7:4242"
	r.ServeHTTP(w, req)

	require.Len(t, limiter.keys, 1)
	assert.Equal(t, ratelimit.KeyIP, limiter.keys[0].Type)
	assert.Equal(t, "198.51.100.7", limiter.keys[0].Value)
}

func TestAuthProjectTokenSetsIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var gotProject, gotTeam uint
	var gotTier model.Tier
	var gotFP bool
	r.GET("/me", AuthProjectToken("secret"), func(c *gin.Context) {
		gotProject = ProjectID(c)
		gotTeam = TeamID(c)
		gotTier = CallerTier(c)
		gotFP = IsFirstParty(c)
		c.Status(http.StatusOK)
	})

	token, err := jwtutil.SignToken("secret", jwtutil.Claims{ProjectID: 11, TeamID: 3, Tier: "enterprise"}, time.Hour)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, uint(11), gotProject)
	assert.Equal(t, uint(3), gotTeam)
	assert.Equal(t, model.TierEnterprise, gotTier)
	assert.False(t, gotFP)
}

func TestAuthProjectTokenRejectsBadTokens(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", AuthProjectToken("secret"), func(c *gin.Context) { c.Status(http.StatusOK) })

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic abc"},
		{"garbage token", "Bearer not-a-jwt"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			r.ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}

	t.Run("wrong secret", func(t *testing.T) {
		token, err := jwtutil.SignToken("other-secret", jwtutil.Claims{ProjectID: 11}, time.Hour)
		require.NoError(t, err)
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
