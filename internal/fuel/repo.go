package fuel

import (
	"context"
	"fmt"
	"time"

	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/syncstate"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ListFilter 加油记录查询条件。
type ListFilter struct {
	VehicleID  string
	SupplierID string
	OperatorID string
	Origin     string
	SyncStatus syncstate.Status
	From       *time.Time
	To         *time.Time
}

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) withCtx(ctx context.Context) *gorm.DB {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.WithContext(ctx)
}

func (r *Repo) Create(ctx context.Context, rec *Record) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Create(rec).Error
}

func (r *Repo) Update(ctx context.Context, rec *Record) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Save(rec).Error
}

func (r *Repo) GetByID(ctx context.Context, id string) (*Record, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var rec Record
	if err := db.Where("id = ?", id).First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *Repo) Delete(ctx context.Context, id string) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Where("id = ?", id).Delete(&Record{}).Error
}

func (r *Repo) applyFilter(q *gorm.DB, f ListFilter) *gorm.DB {
	if f.VehicleID != "" {
		q = q.Where("vehicle_id = ?", f.VehicleID)
	}
	if f.SupplierID != "" {
		q = q.Where("supplier_id = ?", f.SupplierID)
	}
	if f.OperatorID != "" {
		q = q.Where("operator_id = ?", f.OperatorID)
	}
	if f.Origin != "" {
		q = q.Where("origin = ?", f.Origin)
	}
	if f.SyncStatus != "" {
		q = q.Where("sync_status = ?", f.SyncStatus)
	}
	if f.From != nil {
		q = q.Where("filled_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("filled_at < ?", *f.To)
	}
	return q
}

// List 按条件过滤 + 分页，时间倒序。
func (r *Repo) List(ctx context.Context, f ListFilter, offset, limit int) ([]Record, int64, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, 0, fmt.Errorf("repo db is nil")
	}
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	q := r.applyFilter(db.Model(&Record{}), f)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var records []Record
	if err := q.Order("filled_at DESC").Offset(offset).Limit(limit).Find(&records).Error; err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// ListAll 不分页取全部记录（对账用），时间正序。
func (r *Repo) ListAll(ctx context.Context) ([]Record, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var records []Record
	if err := db.Order("filled_at ASC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// CountByVehicle 统计某车辆的记录数（删除车辆前的引用检查）。
func (r *Repo) CountByVehicle(ctx context.Context, vehicleID string) (int64, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return 0, fmt.Errorf("repo db is nil")
	}
	var n int64
	err := db.Model(&Record{}).Where("vehicle_id = ?", vehicleID).Count(&n).Error
	return n, err
}

// CountBySyncStatus 各同步状态的记录数（同步状态页用）。
func (r *Repo) CountBySyncStatus(ctx context.Context) (map[syncstate.Status]int64, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var rows []struct {
		SyncStatus syncstate.Status
		N          int64
	}
	err := db.Model(&Record{}).
		Select("sync_status, COUNT(*) AS n").
		Group("sync_status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[syncstate.Status]int64, len(rows))
	for _, row := range rows {
		out[row.SyncStatus] = row.N
	}
	return out, nil
}

// SummaryRow 聚合查询的扫描目标。
type SummaryRow struct {
	VehicleID    string
	Records      int64
	Liters       decimal.Decimal
	TotalCents   int64
	MinHorimeter decimal.NullDecimal
	MaxHorimeter decimal.NullDecimal
	MinOdometer  decimal.NullDecimal
	MaxOdometer  decimal.NullDecimal
}

// Aggregate 按车辆聚合加油量/金额/表读数范围。
func (r *Repo) Aggregate(ctx context.Context, f ListFilter) ([]SummaryRow, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var rows []SummaryRow
	q := r.applyFilter(db.Model(&Record{}), f)
	err := q.Select(`vehicle_id,
		COUNT(*) AS records,
		SUM(liters) AS liters,
		SUM(total_cents) AS total_cents,
		MIN(horimeter) AS min_horimeter,
		MAX(horimeter) AS max_horimeter,
		MIN(odometer) AS min_odometer,
		MAX(odometer) AS max_odometer`).
		Group("vehicle_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
