package middleware

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	cb := NewCircuitBreaker("test", 2, time.Hour)
	ctx := context.Background()
	boom := errors.New("boom")

	for i := 0; i < 2; i++ {
		if err := cb.Call(ctx, func() error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if cb.GetState() != StateOpen {
		t.Fatalf("state = %v, want open", cb.GetState())
	}

	err := cb.Call(ctx, func() error { return nil })
	if !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("expected ErrBreakerOpen, got %v", err)
	}
}

func TestCircuitBreakerRecovers(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, 10*time.Millisecond)
	ctx := context.Background()

	if err := cb.Call(ctx, func() error { return errors.New("boom") }); err == nil {
		t.Fatalf("expected failure")
	}
	if cb.GetState() != StateOpen {
		t.Fatalf("state = %v, want open", cb.GetState())
	}

	time.Sleep(20 * time.Millisecond)

	// 半开放行一次，成功后恢复 closed
	if err := cb.Call(ctx, func() error { return nil }); err != nil {
		t.Fatalf("half-open call: %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Fatalf("state = %v, want closed", cb.GetState())
	}
}

func TestCircuitBreakerSuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker("test", 2, time.Hour)
	ctx := context.Background()

	if err := cb.Call(ctx, func() error { return errors.New("boom") }); err == nil {
		t.Fatalf("expected failure")
	}
	if err := cb.Call(ctx, func() error { return nil }); err != nil {
		t.Fatalf("success call: %v", err)
	}
	// 连续失败计数被成功清零，再失败一次不应触发熔断
	if err := cb.Call(ctx, func() error { return errors.New("boom") }); err == nil {
		t.Fatalf("expected failure")
	}
	if cb.GetState() != StateClosed {
		t.Fatalf("state = %v, want closed", cb.GetState())
	}
}
