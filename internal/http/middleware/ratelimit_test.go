package middleware

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext(remote string) *gin.Context {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.RemoteAddr = net.JoinHostPort(remote, "40000")
	return c
}

func TestKeyFuncs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c := testContext("203.0.113.9")

	assert.Equal(t, "ip:203.0.113.9", KeyByUserOrIP()(c))
	assert.Equal(t, "link:203.0.113.9", KeyByIP("link")(c))

	c.Set(userIDKey, "u123")
	assert.Equal(t, "user:u123", KeyByUserOrIP()(c))
	assert.Equal(t, "link:203.0.113.9", KeyByIP("link")(c), "namespace key ignores the user")

	c.Set(userIDKey, 42)
	assert.Equal(t, "ip:203.0.113.9", KeyByUserOrIP()(c))
}

func TestRateLimiter_BucketReuseAndSweep(t *testing.T) {
	rl := NewRateLimiter(2, 0, KeyByUserOrIP())
	require.Equal(t, 1, rl.burst)

	now := time.Now()
	lim := rl.limiterFor("a", now.Add(-time.Hour))
	assert.Same(t, lim, rl.limiterFor("a", now.Add(-time.Hour)))
	rl.limiterFor("b", now)

	assert.Equal(t, 1, rl.Sweep(now))
	rl.mu.Lock()
	_, hasA := rl.buckets["a"]
	_, hasB := rl.buckets["b"]
	rl.mu.Unlock()
	assert.False(t, hasA)
	assert.True(t, hasB)
	assert.Zero(t, rl.Sweep(now))
}

func TestRateLimiter_RunStopsWithContext(t *testing.T) {
	rl := NewRateLimiter(1, 1, KeyByIP("x"))
	rl.idleTTL = 0
	rl.limiterFor("k", time.Now().Add(-time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rl.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		rl.mu.Lock()
		defer rl.mu.Unlock()
		return len(rl.buckets) == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestIsRateBypass(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c := testContext("192.0.2.1")

	assert.False(t, IsRateBypass(c))
	c.Set(ctxKeyRateBypass, true)
	assert.True(t, IsRateBypass(c))
	c.Set(ctxKeyRateBypass, "yes")
	assert.False(t, IsRateBypass(c))
}

func TestRateLimiter_Handler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(1, 1, KeyByUserOrIP())

	r := gin.New()
	r.Use(RequestID(), rl.Handler())
	r.POST("/api/claims/create", func(c *gin.Context) { c.Status(http.StatusCreated) })

	send := func(remote, rid string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/claims/create", nil)
		req.RemoteAddr = net.JoinHostPort(remote, "1234")
		req.Header.Set(requestIDHeader, rid)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	require.Equal(t, http.StatusCreated, send("198.51.100.1", "r1").Code)

	w := send("198.51.100.1", "r2")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "too_many_requests", body["code"])
	assert.Equal(t, "r2", body["request_id"])
	assert.Contains(t, body["message"], "Zu viele Anfragen")

	assert.Equal(t, http.StatusCreated, send("198.51.100.2", "r3").Code, "other client has its own bucket")

	replay := gin.New()
	replay.Use(func(c *gin.Context) { c.Set(ctxKeyRateBypass, true); c.Next() }, rl.Handler())
	replay.POST("/api/claims/create", func(c *gin.Context) { c.Status(http.StatusCreated) })
	req := httptest.NewRequest(http.MethodPost, "/api/claims/create", nil)
	req.RemoteAddr = net.JoinHostPort("198.51.100.1", "1234")
	w = httptest.NewRecorder()
	replay.ServeHTTP(w, req)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, 20, NewRateLimiter(0.05, 3, KeyByIP("link")).retryAfter())
	assert.Equal(t, 30, NewRateLimiter(1.0/30, 1, KeyByIP("link")).retryAfter())
	assert.Equal(t, 1, NewRateLimiter(50, 10, KeyByIP("x")).retryAfter())
	assert.Equal(t, 1, NewRateLimiter(0, 1, KeyByIP("x")).retryAfter())
}
