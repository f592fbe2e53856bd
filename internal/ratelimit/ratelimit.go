// Package ratelimit provides per-caller rate limiting middleware for the
// escrow API.
package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/samuelarogbonlo/dot-escrow/internal/validation"
)

// Config configures rate limiting.
type Config struct {
	RequestsPerMinute int
	BurstSize         int
	// Buckets idle longer than IdleTTL are dropped on the next sweep.
	CleanupInterval time.Duration
	IdleTTL         time.Duration
}

// DefaultConfig allows 2 req/s on average with bursts of 20.
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 120,
		BurstSize:         20,
		CleanupInterval:   time.Minute,
		IdleTTL:           2 * time.Minute,
	}
}

// ConfigFor scales the default burst to rpm. Zero or negative rpm keeps
// the defaults.
func ConfigFor(rpm int) Config {
	cfg := DefaultConfig()
	if rpm > 0 {
		cfg.RequestsPerMinute = rpm
		cfg.BurstSize = max(1, rpm/6)
	}
	return cfg
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter keeps one token bucket per key.
type Limiter struct {
	cfg     Config
	limit   rate.Limit
	now     func() time.Time
	mu      sync.Mutex
	buckets map[string]*bucket
	stop    chan struct{}
	once    sync.Once
}

// New starts a limiter and its cleanup loop. Call Stop when done.
func New(cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = def.RequestsPerMinute
	}
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = 1
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = def.IdleTTL
	}
	l := &Limiter{
		cfg:     cfg,
		limit:   rate.Limit(float64(cfg.RequestsPerMinute) / 60.0),
		now:     time.Now,
		buckets: make(map[string]*bucket),
		stop:    make(chan struct{}),
	}
	go l.cleanup()
	return l
}

func (l *Limiter) cleanup() {
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.stop:
			return
		}
	}
}

func (l *Limiter) sweep() {
	cutoff := l.now().Add(-l.cfg.IdleTTL)
	l.mu.Lock()
	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
	l.mu.Unlock()
}

// Stop ends the cleanup loop. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}

func (l *Limiter) reserve(key string) *rate.Reservation {
	now := l.now()
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.cfg.BurstSize)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()
	return b.limiter.ReserveN(now, 1)
}

// Allow takes a token for key if one is available.
func (l *Limiter) Allow(key string) bool {
	ok, _ := l.take(key)
	return ok
}

// take reports whether a token was taken and, if not, how long until one is.
func (l *Limiter) take(key string) (bool, time.Duration) {
	r := l.reserve(key)
	now := l.now()
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return false, d
	}
	return true, 0
}

// Middleware returns a Gin middleware that rate limits by caller account,
// or by IP for requests without one. It must run after
// validation.CallerMiddleware.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if caller := validation.Caller(c); caller != "" {
			key = "caller:" + caller
		}

		ok, wait := l.take(key)
		if !ok {
			retry := int(math.Ceil(wait.Seconds()))
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate_limit_exceeded",
				"message":     "Too many requests. Please slow down.",
				"retry_after": retry,
			})
			return
		}
		c.Next()
	}
}
