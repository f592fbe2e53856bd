package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/samuelarogbonlo/dot-escrow/internal/validation"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newLimiter(t *testing.T, rpm, burst int) (*Limiter, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	l := New(Config{RequestsPerMinute: rpm, BurstSize: burst, CleanupInterval: time.Hour})
	l.now = clock.Now
	t.Cleanup(l.Stop)
	return l, clock
}

func TestLimiter_BurstThenRefill(t *testing.T) {
	l, clock := newLimiter(t, 60, 5)

	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow("k"), "request %d within burst", i)
	}
	assert.False(t, l.Allow("k"))

	// 60/min refills one token per second
	clock.Advance(time.Second)
	assert.True(t, l.Allow("k"))
	assert.False(t, l.Allow("k"))
}

func TestLimiter_DeniedRequestsDoNotBorrow(t *testing.T) {
	l, clock := newLimiter(t, 60, 1)

	assert.True(t, l.Allow("k"))
	for i := 0; i < 10; i++ {
		assert.False(t, l.Allow("k"))
	}
	clock.Advance(time.Second)
	assert.True(t, l.Allow("k"))
}

func TestLimiter_SeparateKeys(t *testing.T) {
	l, _ := newLimiter(t, 60, 3)

	for i := 0; i < 3; i++ {
		l.Allow("client-a")
	}
	assert.False(t, l.Allow("client-a"))
	assert.True(t, l.Allow("client-b"))
}

func TestLimiter_SweepDropsIdleBuckets(t *testing.T) {
	l, clock := newLimiter(t, 60, 1)

	l.Allow("idle")
	clock.Advance(time.Minute)
	l.Allow("active")
	clock.Advance(90 * time.Second)
	l.sweep()

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.NotContains(t, l.buckets, "idle")
	assert.Contains(t, l.buckets, "active")
}

func TestLimiter_StopTwice(t *testing.T) {
	l := New(DefaultConfig())
	l.Stop()
	assert.NotPanics(t, l.Stop)
}

func TestConfigFor(t *testing.T) {
	assert.Equal(t, DefaultConfig(), ConfigFor(0))

	cfg := ConfigFor(600)
	assert.Equal(t, 600, cfg.RequestsPerMinute)
	assert.Equal(t, 100, cfg.BurstSize)

	assert.Equal(t, 1, ConfigFor(3).BurstSize)
}

func TestMiddleware_KeysByCaller(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l, _ := newLimiter(t, 1, 1)

	router := gin.New()
	router.Use(validation.CallerMiddleware(), l.Middleware())
	router.GET("/test", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	send := func(caller string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		if caller != "" {
			req.Header.Set(validation.CallerHeader, caller)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	alice := "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"
	bob := "5FHneW46xGXgs5mUiveU4sbTyGBzmstUspZC92UhjJM694ty"

	assert.Equal(t, http.StatusOK, send(alice).Code)

	w := send(alice)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "rate_limit_exceeded")

	assert.Equal(t, http.StatusOK, send(bob).Code)
	assert.Equal(t, http.StatusOK, send("").Code)
}
