package middleware

import (
	"context"
	"sync"
	"time"
)

// RateLimiter 限流器接口。
type RateLimiter interface {
	Allow(ctx context.Context) bool
}

// TokenBucket 令牌桶。表格端点的写入限速用它：桶容量给突发留余地，
// 补充速率就是长期平均写入速率。
type TokenBucket struct {
	capacity   int64
	tokens     int64
	refillRate int64 // 每秒补充的令牌数
	lastRefill time.Time
	mu         sync.Mutex
}

func NewTokenBucket(capacity, refillRate int64) *TokenBucket {
	if capacity <= 0 {
		capacity = 1
	}
	if refillRate <= 0 {
		refillRate = 1
	}
	return &TokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Allow 拿到令牌返回 true，拿不到直接返回 false 不等。
func (tb *TokenBucket) Allow(ctx context.Context) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	refill := int64(now.Sub(tb.lastRefill).Seconds() * float64(tb.refillRate))
	if refill > 0 {
		tb.tokens = min(tb.tokens+refill, tb.capacity)
		tb.lastRefill = now
	}

	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

// Wait 阻塞直到拿到令牌或 ctx 结束。
// 对外部配额类下游（表格端点）用 Wait 而不是丢弃请求。
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if tb.Allow(ctx) {
			return nil
		}

		// 按补充速率估一个重试间隔，避免空转
		interval := time.Second / time.Duration(tb.refillRate)
		if interval < 10*time.Millisecond {
			interval = 10 * time.Millisecond
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// SlidingWindow 滑动窗口：窗口内最多放行 maxRequests 个请求。
// 登录接口防爆破用，量级小，直接记请求时间戳。
type SlidingWindow struct {
	requests    []time.Time
	window      time.Duration
	maxRequests int
	mu          sync.Mutex
}

func NewSlidingWindow(window time.Duration, maxRequests int) *SlidingWindow {
	if window <= 0 {
		window = time.Minute
	}
	if maxRequests <= 0 {
		maxRequests = 1
	}
	return &SlidingWindow{window: window, maxRequests: maxRequests}
}

// Allow 检查窗口内请求数是否超限。
func (sw *SlidingWindow) Allow(ctx context.Context) bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	cutoff := time.Now().Add(-sw.window)
	kept := sw.requests[:0]
	for _, at := range sw.requests {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	sw.requests = kept

	if len(sw.requests) >= sw.maxRequests {
		return false
	}
	sw.requests = append(sw.requests, time.Now())
	return true
}
