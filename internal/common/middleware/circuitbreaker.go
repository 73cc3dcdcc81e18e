package middleware

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrBreakerOpen 熔断期间直接拒绝调用。
// 调用方据此区分“下游坏了”和“本次调用真的失败”。
var ErrBreakerOpen = errors.New("circuit breaker is open")

// CircuitBreakerState 熔断器状态。
type CircuitBreakerState int

const (
	StateClosed   CircuitBreakerState = iota // 正常放行
	StateOpen                                // 熔断中，直接拒绝
	StateHalfOpen                            // 冷却期过了，放少量探测流量
)

func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker 连续失败计数式熔断器。表格端点挂了的时候别反复打它，
// 等 resetTimeout 再探。
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int // 半开时最多放几个探测

	mu            sync.RWMutex
	state         CircuitBreakerState
	failures      int
	halfOpenCount int
	lastFailTime  time.Time
}

func NewCircuitBreaker(name string, maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if resetTimeout <= 0 {
		resetTimeout = time.Minute
	}
	return &CircuitBreaker{
		name:         name,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		halfOpenMax:  3,
		state:        StateClosed,
	}
}

// Call 走熔断器执行 fn。open 直接拒绝；冷却期过了先放探测流量，
// 探测成功恢复 closed，失败立刻回 open。
func (cb *CircuitBreaker) Call(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := cb.admit(); err != nil {
		return err
	}

	err := fn()
	cb.record(err)
	return err
}

// admit 入口检查，需要时做 open -> half-open 的状态迁移。
func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if time.Since(cb.lastFailTime) < cb.resetTimeout {
			return ErrBreakerOpen
		}
		cb.state = StateHalfOpen
		cb.halfOpenCount = 0
	}
	if cb.state == StateHalfOpen {
		if cb.halfOpenCount >= cb.halfOpenMax {
			return ErrBreakerOpen
		}
		cb.halfOpenCount++
	}
	return nil
}

// record 按调用结果推进状态。
func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		if cb.state == StateHalfOpen {
			cb.state = StateClosed
			cb.halfOpenCount = 0
		}
		cb.failures = 0
		return
	}

	// 调用方主动取消不算下游失败；半开时把占的探测名额还回去
	if errors.Is(err, context.Canceled) {
		if cb.state == StateHalfOpen && cb.halfOpenCount > 0 {
			cb.halfOpenCount--
		}
		return
	}

	cb.failures++
	cb.lastFailTime = time.Now()
	switch {
	case cb.state == StateHalfOpen:
		cb.state = StateOpen
		cb.halfOpenCount = 0
	case cb.failures >= cb.maxFailures:
		cb.state = StateOpen
	}
}

// GetState 当前状态。
func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}
