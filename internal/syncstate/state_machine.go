package syncstate

import (
	"fmt"
	"time"
)

// Status 记录与表格镜像的同步状态。
type Status string

const (
	// StatusPending 本地有改动，等待下一轮对账推送
	StatusPending Status = "pending"
	// StatusSynced 与表格镜像一致
	StatusSynced Status = "synced"
	// StatusConflict 对账时无法自动处理（表格行解析失败等），需人工处理
	StatusConflict Status = "conflict"
)

// AllowTransition 定义同步状态机的允许流转关系。
// 没有终态：synced 的记录被本地编辑后回到 pending。
var AllowTransition = map[Status][]Status{
	StatusPending:  {StatusSynced, StatusConflict},
	StatusSynced:   {StatusPending, StatusConflict},
	StatusConflict: {StatusPending},
}

// CanTransition 判断 from -> to 是否是一个允许的状态流转。
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	allowed, ok := AllowTransition[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Meta 嵌入到需要同步的实体中（gorm:"embedded"）。
type Meta struct {
	SyncStatus    Status     `gorm:"size:16;not null;index;default:pending"`
	SheetRowID    string     `gorm:"size:64"`
	SyncAttempts  int        `gorm:"not null;default:0"`
	LastSyncError string     `gorm:"size:255"`
	SyncedAt      *time.Time
}

// ApplyTransition 对同步元数据应用状态变更，并维护相关字段。
func ApplyTransition(m *Meta, to Status, now time.Time) error {
	if m == nil {
		return fmt.Errorf("sync meta is nil")
	}
	from := m.SyncStatus
	if from == "" {
		from = StatusPending
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid sync status transition: %s -> %s", from, to)
	}

	m.SyncStatus = to

	switch to {
	case StatusSynced:
		t := now
		m.SyncedAt = &t
		m.SyncAttempts = 0
		m.LastSyncError = ""
	case StatusPending:
		// 本地编辑或冲突解除，错误信息留到下一轮成功后清
	case StatusConflict:
		// 错误信息由 MarkFailed / 调用方填
	}
	return nil
}

// MarkFailed 推送失败：累加尝试次数、记录错误、留在 pending 等下一轮。
// 这里不做任何重试/退避，失败的记录由下一轮对账再处理。
func MarkFailed(m *Meta, cause error) {
	if m == nil {
		return
	}
	m.SyncStatus = StatusPending
	m.SyncAttempts++
	m.LastSyncError = truncate(errString(cause), 255)
}

func errString(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
