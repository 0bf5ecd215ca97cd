package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RateLimiter is the interface both the in-memory and the Redis-backed
// limiter implement.
type RateLimiter interface {
	// Allow reports whether a request is allowed for the given key.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)

	// GetRemaining returns the number of remaining requests for the key.
	GetRemaining(ctx context.Context, key string, limit int, window time.Duration) (int, error)

	// Reset clears the rate limit data for the given key.
	Reset(ctx context.Context, key string) error
}

// TokenBucket is a refilling bucket guarding a single key.
type TokenBucket struct {
	tokens   int
	capacity int
	refillAt time.Time
	window   time.Duration
	mutex    sync.RWMutex
}

func NewTokenBucket(capacity int, window time.Duration) *TokenBucket {
	return &TokenBucket{
		tokens:   capacity,
		capacity: capacity,
		refillAt: time.Now(),
		window:   window,
	}
}

// Take attempts to take a token from the bucket.
func (tb *TokenBucket) Take() bool {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()

	now := time.Now()

	if now.After(tb.refillAt.Add(tb.window)) {
		tb.tokens = tb.capacity
		tb.refillAt = now
	} else {
		elapsed := now.Sub(tb.refillAt)
		tokensToAdd := int(elapsed.Nanoseconds() * int64(tb.capacity) / tb.window.Nanoseconds())
		tb.tokens = min(tb.capacity, tb.tokens+tokensToAdd)

		if tokensToAdd > 0 {
			tb.refillAt = now
		}
	}

	if tb.tokens > 0 {
		tb.tokens--
		return true
	}

	return false
}

// Tokens returns the current number of available tokens without taking one.
func (tb *TokenBucket) Tokens() int {
	tb.mutex.RLock()
	defer tb.mutex.RUnlock()

	now := time.Now()

	if now.After(tb.refillAt.Add(tb.window)) {
		return tb.capacity
	}

	elapsed := now.Sub(tb.refillAt)
	tokensToAdd := int(elapsed.Nanoseconds() * int64(tb.capacity) / tb.window.Nanoseconds())
	return min(tb.capacity, tb.tokens+tokensToAdd)
}

// InMemoryRateLimiter implements RateLimiter with per-key token buckets.
// Limits only hold within one process; multi-instance deployments should
// use the Redis limiter instead.
type InMemoryRateLimiter struct {
	buckets map[string]*TokenBucket
	mutex   sync.RWMutex
	janitor *janitor
}

func NewInMemoryRateLimiter() *InMemoryRateLimiter {
	rl := &InMemoryRateLimiter{
		buckets: make(map[string]*TokenBucket),
	}

	rl.janitor = &janitor{
		interval: 5 * time.Minute,
		stop:     make(chan bool),
	}
	go rl.janitor.run(rl)

	return rl
}

func (rl *InMemoryRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	bucketKey := fmt.Sprintf("%s:%d:%s", key, limit, window.String())

	rl.mutex.Lock()
	bucket, exists := rl.buckets[bucketKey]
	if !exists {
		bucket = NewTokenBucket(limit, window)
		rl.buckets[bucketKey] = bucket
	}
	rl.mutex.Unlock()

	return bucket.Take(), nil
}

func (rl *InMemoryRateLimiter) GetRemaining(ctx context.Context, key string, limit int, window time.Duration) (int, error) {
	bucketKey := fmt.Sprintf("%s:%d:%s", key, limit, window.String())

	rl.mutex.RLock()
	bucket, exists := rl.buckets[bucketKey]
	rl.mutex.RUnlock()

	if !exists {
		return limit, nil
	}

	return bucket.Tokens(), nil
}

func (rl *InMemoryRateLimiter) Reset(ctx context.Context, key string) error {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	for bucketKey := range rl.buckets {
		if len(bucketKey) >= len(key) && bucketKey[:len(key)] == key {
			delete(rl.buckets, bucketKey)
		}
	}

	return nil
}

// Close stops the cleanup goroutine.
func (rl *InMemoryRateLimiter) Close() error {
	if rl.janitor != nil {
		rl.janitor.stop <- true
	}
	return nil
}

// janitor runs periodic cleanup of stale buckets.
type janitor struct {
	interval time.Duration
	stop     chan bool
}

func (j *janitor) run(rl *InMemoryRateLimiter) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-j.stop:
			return
		}
	}
}

func (rl *InMemoryRateLimiter) cleanup() {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := time.Now()
	for key, bucket := range rl.buckets {
		bucket.mutex.RLock()
		if now.Sub(bucket.refillAt) > bucket.window*2 {
			delete(rl.buckets, key)
		}
		bucket.mutex.RUnlock()
	}
}
