package sheetsync

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// 对账动作（写入报告行）
const (
	ActionAppend   = "append"
	ActionUpdate   = "update"
	ActionRelink   = "relink"
	ActionRestore  = "restore"
	ActionPull     = "pull"
	ActionDelete   = "delete"
	ActionConflict = "conflict"
	ActionError    = "error"
)

// ReconciliationReport 一轮对账里发生的每个动作留一行，RunID 串起一轮。
type ReconciliationReport struct {
	ID       string `gorm:"primaryKey;size:36"`
	RunID    string `gorm:"index;size:36;not null"`
	Kind     string `gorm:"size:16;not null"` // fuel / reading
	Action   string `gorm:"size:16;not null"`
	EntityID string `gorm:"index;size:36"`
	RowID    string `gorm:"size:64"`
	Detail   string `gorm:"size:512"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

type ReportRepo struct {
	db *gorm.DB
}

func NewReportRepo(db *gorm.DB) *ReportRepo {
	return &ReportRepo{db: db}
}

func (r *ReportRepo) SaveAll(ctx context.Context, reports []ReconciliationReport) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repo db is nil")
	}
	if len(reports) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(reports, 100).Error
}

func (r *ReportRepo) ListByRun(ctx context.Context, runID string) ([]ReconciliationReport, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var out []ReconciliationReport
	err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

// ListRecent 最近的报告行，新的在前。
func (r *ReportRepo) ListRecent(ctx context.Context, limit int) ([]ReconciliationReport, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []ReconciliationReport
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// Prune 清掉太老的报告行。
func (r *ReportRepo) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	if r == nil || r.db == nil {
		return 0, fmt.Errorf("repo db is nil")
	}
	res := r.db.WithContext(ctx).
		Where("created_at < ?", olderThan).
		Delete(&ReconciliationReport{})
	return res.RowsAffected, res.Error
}
