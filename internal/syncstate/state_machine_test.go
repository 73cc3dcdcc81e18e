package syncstate

import (
	"errors"
	"testing"
	"time"
)

func TestCanTransitionAndApply(t *testing.T) {
	if !CanTransition(StatusPending, StatusSynced) {
		t.Fatalf("expected pending -> synced allowed")
	}
	if CanTransition(StatusConflict, StatusSynced) {
		t.Fatalf("expected conflict -> synced not allowed")
	}
	if !CanTransition(StatusSynced, StatusPending) {
		t.Fatalf("expected synced -> pending allowed (local edit)")
	}

	m := &Meta{SyncStatus: StatusPending, SyncAttempts: 3, LastSyncError: "boom"}
	now := time.Now()
	if err := ApplyTransition(m, StatusSynced, now); err != nil {
		t.Fatalf("ApplyTransition: %v", err)
	}
	if m.SyncStatus != StatusSynced {
		t.Fatalf("expected status synced, got %s", m.SyncStatus)
	}
	if m.SyncedAt == nil || !m.SyncedAt.Equal(now) {
		t.Fatalf("expected synced_at = now")
	}
	if m.SyncAttempts != 0 || m.LastSyncError != "" {
		t.Fatalf("expected attempts/error cleared, got %d %q", m.SyncAttempts, m.LastSyncError)
	}

	if err := ApplyTransition(&Meta{SyncStatus: StatusConflict}, StatusSynced, now); err == nil {
		t.Fatalf("expected conflict -> synced to fail")
	}
}

func TestApplyTransitionEmptyStatus(t *testing.T) {
	// 零值状态按 pending 处理
	m := &Meta{}
	if err := ApplyTransition(m, StatusSynced, time.Now()); err != nil {
		t.Fatalf("ApplyTransition from zero value: %v", err)
	}
}

func TestMarkFailed(t *testing.T) {
	m := &Meta{SyncStatus: StatusSynced}
	MarkFailed(m, errors.New("endpoint returned 500"))

	if m.SyncStatus != StatusPending {
		t.Fatalf("expected pending after failure, got %s", m.SyncStatus)
	}
	if m.SyncAttempts != 1 {
		t.Fatalf("expected attempts = 1, got %d", m.SyncAttempts)
	}
	if m.LastSyncError != "endpoint returned 500" {
		t.Fatalf("unexpected error text: %q", m.LastSyncError)
	}

	MarkFailed(m, nil)
	if m.SyncAttempts != 2 || m.LastSyncError != "unknown error" {
		t.Fatalf("unexpected meta after nil cause: %+v", m)
	}
}
