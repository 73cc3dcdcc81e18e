package reading

import (
	"context"
	"fmt"
	"time"

	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/syncstate"
	"gorm.io/gorm"
)

// ListFilter 表读数查询条件。
type ListFilter struct {
	VehicleID  string
	Meter      string
	OperatorID string
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

func (r *Repo) Create(ctx context.Context, rd *Reading) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Create(rd).Error
}

func (r *Repo) Update(ctx context.Context, rd *Reading) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Save(rd).Error
}

func (r *Repo) GetByID(ctx context.Context, id string) (*Reading, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var rd Reading
	if err := db.Where("id = ?", id).First(&rd).Error; err != nil {
		return nil, err
	}
	return &rd, nil
}

func (r *Repo) Delete(ctx context.Context, id string) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Where("id = ?", id).Delete(&Reading{}).Error
}

func (r *Repo) applyFilter(q *gorm.DB, f ListFilter) *gorm.DB {
	if f.VehicleID != "" {
		q = q.Where("vehicle_id = ?", f.VehicleID)
	}
	if f.Meter != "" {
		q = q.Where("meter = ?", f.Meter)
	}
	if f.OperatorID != "" {
		q = q.Where("operator_id = ?", f.OperatorID)
	}
	if f.SyncStatus != "" {
		q = q.Where("sync_status = ?", f.SyncStatus)
	}
	if f.From != nil {
		q = q.Where("read_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("read_at < ?", *f.To)
	}
	return q
}

// List 按条件过滤 + 分页，时间倒序。
func (r *Repo) List(ctx context.Context, f ListFilter, offset, limit int) ([]Reading, int64, error) {
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

	q := r.applyFilter(db.Model(&Reading{}), f)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var readings []Reading
	if err := q.Order("read_at DESC").Offset(offset).Limit(limit).Find(&readings).Error; err != nil {
		return nil, 0, err
	}
	return readings, total, nil
}

// ListSeries 某车某表的读数时间正序（异常检测用）。
func (r *Repo) ListSeries(ctx context.Context, vehicleID, meter string, from, to *time.Time) ([]Reading, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	q := r.applyFilter(db.Model(&Reading{}), ListFilter{
		VehicleID: vehicleID,
		Meter:     meter,
		From:      from,
		To:        to,
	})
	var readings []Reading
	if err := q.Order("read_at ASC").Find(&readings).Error; err != nil {
		return nil, err
	}
	return readings, nil
}

// ListAll 不分页取全部读数（对账用），时间正序。
func (r *Repo) ListAll(ctx context.Context) ([]Reading, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var readings []Reading
	if err := db.Order("read_at ASC").Find(&readings).Error; err != nil {
		return nil, err
	}
	return readings, nil
}

// CountByVehicle 统计某车辆的读数条数（删除车辆前的引用检查）。
func (r *Repo) CountByVehicle(ctx context.Context, vehicleID string) (int64, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return 0, fmt.Errorf("repo db is nil")
	}
	var n int64
	err := db.Model(&Reading{}).Where("vehicle_id = ?", vehicleID).Count(&n).Error
	return n, err
}

// CountBySyncStatus 各同步状态的读数条数。
func (r *Repo) CountBySyncStatus(ctx context.Context) (map[syncstate.Status]int64, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var rows []struct {
		SyncStatus syncstate.Status
		N          int64
	}
	err := db.Model(&Reading{}).
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

// Latest 某车某表的最新一条读数。
func (r *Repo) Latest(ctx context.Context, vehicleID, meter string) (*Reading, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var rd Reading
	err := db.Where("vehicle_id = ? AND meter = ?", vehicleID, meter).
		Order("read_at DESC").
		First(&rd).Error
	if err != nil {
		return nil, err
	}
	return &rd, nil
}
