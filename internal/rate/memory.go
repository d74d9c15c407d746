package rate

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

type bucket struct {
	mu     sync.Mutex
	tokens float64
	last   time.Time
}

// MemoryLimiter: token bucket por clave, respaldado en go-cache para que
// las claves inactivas se desalojen solas.
type MemoryLimiter struct {
	capacity float64
	refill   time.Duration // tiempo para reponer un token
	buckets  *gocache.Cache
	mu       sync.Mutex // protege la creación de buckets
	now      func() time.Time
}

// NewMemoryLimiter crea un limiter que admite capacity hits de ráfaga y
// repone capacity tokens por window. Si now es nil usa time.Now.
func NewMemoryLimiter(capacity int, window time.Duration, now func() time.Time) *MemoryLimiter {
	if capacity < 1 {
		capacity = 1
	}
	if now == nil {
		now = time.Now
	}
	idle := 2 * window
	return &MemoryLimiter{
		capacity: float64(capacity),
		refill:   window / time.Duration(capacity),
		buckets:  gocache.New(idle, idle),
		now:      now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	b := l.bucketFor(key)

	b.mu.Lock()
	defer b.mu.Unlock()

	now := l.now()
	elapsed := now.Sub(b.last)
	if elapsed > 0 {
		b.tokens += float64(elapsed) / float64(l.refill)
		if b.tokens > l.capacity {
			b.tokens = l.capacity
		}
		b.last = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return Result{Allowed: true, Remaining: int64(b.tokens)}, nil
	}

	wait := time.Duration((1 - b.tokens) * float64(l.refill))
	return Result{Allowed: false, Remaining: 0, RetryAfter: wait}, nil
}

func (l *MemoryLimiter) bucketFor(key string) *bucket {
	if v, ok := l.buckets.Get(key); ok {
		l.buckets.SetDefault(key, v) // renovar TTL
		return v.(*bucket)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if v, ok := l.buckets.Get(key); ok {
		return v.(*bucket)
	}
	b := &bucket{tokens: l.capacity, last: l.now()}
	l.buckets.SetDefault(key, b)
	return b
}
