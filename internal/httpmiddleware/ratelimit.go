package httpmiddleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"classroll/internal/auth"
)

// KeyFunc picks the bucket a request is charged to.
type KeyFunc func(c *gin.Context) string

// ByClientIP charges requests to the caller's IP address.
func ByClientIP(c *gin.Context) string {
	if ip := c.ClientIP(); ip != "" {
		return "ip:" + ip
	}
	return "ip:unknown"
}

// BySession charges authenticated requests to the session and falls back to the IP.
// It must run after auth.SessionAuth.
func BySession(c *gin.Context) string {
	if id, ok := auth.IdentityFrom(c); ok && id.SessionID != "" {
		return "session:" + id.SessionID
	}
	return ByClientIP(c)
}

// SimpleTokenBucket is an in-memory rate limiter keyed by KeyFunc.
type SimpleTokenBucket struct {
	capacity int
	rate     int
	mu       sync.Mutex
	state    map[string]*bucket
	now      func() time.Time
}

type bucket struct {
	tokens int
	last   time.Time
}

// NewSimpleTokenBucket creates limiter with capacity tokens and rate per minute.
func NewSimpleTokenBucket(capacity, perMinute int) *SimpleTokenBucket {
	if capacity <= 0 {
		capacity = perMinute
	}
	return &SimpleTokenBucket{
		capacity: capacity,
		rate:     perMinute,
		state:    make(map[string]*bucket),
		now:      time.Now,
	}
}

// GinMiddleware returns gin handler enforcing limits per key.
func (l *SimpleTokenBucket) GinMiddleware(key KeyFunc) gin.HandlerFunc {
	if key == nil {
		key = ByClientIP
	}
	return func(c *gin.Context) {
		if !l.allow(key(c)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit"})
			return
		}
		c.Next()
	}
}

// Sweep forgets buckets that have refilled completely, so idle callers do not accumulate.
func (l *SimpleTokenBucket) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rate <= 0 {
		return 0
	}
	full := time.Duration(float64(l.capacity) / float64(l.rate) * float64(time.Minute))
	now := l.now()
	removed := 0
	for k, b := range l.state {
		if now.Sub(b.last) >= full {
			delete(l.state, k)
			removed++
		}
	}
	return removed
}

func (l *SimpleTokenBucket) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.state[key]
	now := l.now()
	if !ok {
		b = &bucket{tokens: l.capacity - 1, last: now}
		l.state[key] = b
		return true
	}
	elapsed := now.Sub(b.last).Minutes()
	refill := int(elapsed * float64(l.rate))
	if refill > 0 {
		b.tokens += refill
		if b.tokens > l.capacity {
			b.tokens = l.capacity
		}
		b.last = now
	}
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}
