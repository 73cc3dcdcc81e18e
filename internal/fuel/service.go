package fuel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/syncstate"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/vehicle"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// ErrVehicleRetired 退役车辆不再接受加油记录。
var ErrVehicleRetired = errors.New("vehicle is retired")

// VehicleDirectory fuel 需要的车辆能力子集。
type VehicleDirectory interface {
	Get(ctx context.Context, id string) (*vehicle.Vehicle, error)
	RecordMeters(ctx context.Context, id string, horimeter, odometer decimal.Decimal) error
}

// Service 封装加油记录领域的核心用例。
type Service struct {
	repo     *Repo
	vehicles VehicleDirectory

	// 批量操作参数（对齐对账任务的分块节奏）
	chunkSize  int
	chunkDelay time.Duration
}

func NewService(repo *Repo, vehicles VehicleDirectory, chunkSize int, chunkDelay time.Duration) *Service {
	if chunkSize <= 0 {
		chunkSize = 20
	}
	return &Service{
		repo:       repo,
		vehicles:   vehicles,
		chunkSize:  chunkSize,
		chunkDelay: chunkDelay,
	}
}

// CreateRecordInput 创建加油记录的入参。
type CreateRecordInput struct {
	VehicleID  string
	SupplierID string
	OperatorID string
	Origin     string

	FilledAt       time.Time
	Liters         decimal.Decimal
	UnitPriceCents int64
	TotalCents     int64 // 0 时按 Liters×UnitPrice 计算

	Horimeter decimal.NullDecimal
	Odometer  decimal.NullDecimal

	LubricantID  string
	LubricantQty decimal.Decimal

	Notes string
}

func (s *Service) Create(ctx context.Context, in CreateRecordInput) (*Record, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	vehicleID := strings.TrimSpace(in.VehicleID)
	if vehicleID == "" {
		return nil, fmt.Errorf("vehicle_id required")
	}
	if !in.Liters.IsPositive() {
		return nil, fmt.Errorf("liters must be positive")
	}
	if in.UnitPriceCents < 0 || in.TotalCents < 0 {
		return nil, fmt.Errorf("price must not be negative")
	}

	v, err := s.vehicles.Get(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	if v.Status == vehicle.StatusRetired {
		return nil, ErrVehicleRetired
	}

	origin := strings.TrimSpace(in.Origin)
	if origin == "" {
		origin = OriginDesk
	}
	filledAt := in.FilledAt
	if filledAt.IsZero() {
		filledAt = time.Now()
	}

	rec := &Record{
		ID:             uuid.NewString(),
		VehicleID:      vehicleID,
		SupplierID:     strings.TrimSpace(in.SupplierID),
		OperatorID:     strings.TrimSpace(in.OperatorID),
		Origin:         origin,
		FilledAt:       filledAt,
		Liters:         in.Liters,
		UnitPriceCents: in.UnitPriceCents,
		TotalCents:     normalizeTotal(in.Liters, in.UnitPriceCents, in.TotalCents),
		Currency:       "BRL",
		Horimeter:      in.Horimeter,
		Odometer:       in.Odometer,
		LubricantID:    strings.TrimSpace(in.LubricantID),
		LubricantQty:   in.LubricantQty,
		Notes:          strings.TrimSpace(in.Notes),
		Sync:           syncstate.Meta{SyncStatus: syncstate.StatusPending},
	}

	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, err
	}

	// 推进车辆当前表读数（失败不影响记录本身）
	s.bumpMeters(ctx, rec)

	return rec, nil
}

// Update 更新记录并重新标记为待同步。
func (s *Service) Update(ctx context.Context, id string, in CreateRecordInput) (*Record, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("id required")
	}
	if !in.Liters.IsPositive() {
		return nil, fmt.Errorf("liters must be positive")
	}

	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if vid := strings.TrimSpace(in.VehicleID); vid != "" && vid != rec.VehicleID {
		if _, err := s.vehicles.Get(ctx, vid); err != nil {
			return nil, err
		}
		rec.VehicleID = vid
	}
	rec.SupplierID = strings.TrimSpace(in.SupplierID)
	rec.OperatorID = strings.TrimSpace(in.OperatorID)
	if !in.FilledAt.IsZero() {
		rec.FilledAt = in.FilledAt
	}
	rec.Liters = in.Liters
	rec.UnitPriceCents = in.UnitPriceCents
	rec.TotalCents = normalizeTotal(in.Liters, in.UnitPriceCents, in.TotalCents)
	rec.Horimeter = in.Horimeter
	rec.Odometer = in.Odometer
	rec.LubricantID = strings.TrimSpace(in.LubricantID)
	rec.LubricantQty = in.LubricantQty
	rec.Notes = strings.TrimSpace(in.Notes)

	// 本地编辑后回到 pending，等下一轮对账
	if err := syncstate.ApplyTransition(&rec.Sync, syncstate.StatusPending, time.Now()); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, rec); err != nil {
		return nil, err
	}
	s.bumpMeters(ctx, rec)
	return rec, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Record, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("id required")
	}
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f ListFilter, offset, limit int) ([]Record, int64, error) {
	if s == nil || s.repo == nil {
		return nil, 0, fmt.Errorf("service not initialized")
	}
	return s.repo.List(ctx, f, offset, limit)
}

// Delete 删除记录。表格镜像里的对应行由下一轮对账作为孤儿行清掉。
func (s *Service) Delete(ctx context.Context, id string) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("service not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("id required")
	}
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

// BatchDeleteResult 批量删除的结果。
type BatchDeleteResult struct {
	Deleted int
	Failed  map[string]string // id -> 错误
}

// BatchDelete 分块并行删除：块内并行，块间固定延迟。
// 单条失败不中断整批，失败项带原因返回。
func (s *Service) BatchDelete(ctx context.Context, ids []string) (*BatchDeleteResult, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}

	res := &BatchDeleteResult{Failed: make(map[string]string)}
	var mu sync.Mutex
	seen := make(map[string]struct{}, len(ids))

	for start := 0; start < len(ids); start += s.chunkSize {
		end := start + s.chunkSize
		if end > len(ids) {
			end = len(ids)
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, id := range ids[start:end] {
			id := strings.TrimSpace(id)
			if id == "" {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}

			g.Go(func() error {
				err := s.repo.Delete(gctx, id)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					res.Failed[id] = err.Error() // 不让单条失败取消整块
					return nil
				}
				res.Deleted++
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return res, err
		}

		if end < len(ids) && s.chunkDelay > 0 {
			select {
			case <-ctx.Done():
				return res, ctx.Err()
			case <-time.After(s.chunkDelay):
			}
		}
	}
	return res, nil
}

// VehicleSummary 按车辆汇总的加油统计。
type VehicleSummary struct {
	VehicleID  string
	Records    int64
	Liters     decimal.Decimal
	TotalCents int64

	// 区间内表读数跨度推出的油耗指标（没有足够读数时为零值）
	LitersPerHour decimal.Decimal // 小时油耗（horimeter 车）
	KmPerLiter    decimal.Decimal // 里程油耗（odometer 车）
}

// Summary 汇总区间内各车辆的加油量、金额与油耗。
func (s *Service) Summary(ctx context.Context, f ListFilter) ([]VehicleSummary, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	rows, err := s.repo.Aggregate(ctx, f)
	if err != nil {
		return nil, err
	}

	out := make([]VehicleSummary, 0, len(rows))
	for _, row := range rows {
		sum := VehicleSummary{
			VehicleID:  row.VehicleID,
			Records:    row.Records,
			Liters:     row.Liters,
			TotalCents: row.TotalCents,
		}
		if row.MinHorimeter.Valid && row.MaxHorimeter.Valid {
			hours := row.MaxHorimeter.Decimal.Sub(row.MinHorimeter.Decimal)
			if hours.IsPositive() {
				sum.LitersPerHour = row.Liters.DivRound(hours, 2)
			}
		}
		if row.MinOdometer.Valid && row.MaxOdometer.Valid && row.Liters.IsPositive() {
			km := row.MaxOdometer.Decimal.Sub(row.MinOdometer.Decimal)
			if km.IsPositive() {
				sum.KmPerLiter = km.DivRound(row.Liters, 2)
			}
		}
		out = append(out, sum)
	}
	return out, nil
}

// bumpMeters 把记录里的表读数推进到车辆档案（只前进）。
func (s *Service) bumpMeters(ctx context.Context, rec *Record) {
	if s.vehicles == nil || rec == nil {
		return
	}
	h := decimal.Zero
	o := decimal.Zero
	if rec.Horimeter.Valid {
		h = rec.Horimeter.Decimal
	}
	if rec.Odometer.Valid {
		o = rec.Odometer.Decimal
	}
	if h.IsZero() && o.IsZero() {
		return
	}
	_ = s.vehicles.RecordMeters(ctx, rec.VehicleID, h, o)
}

// normalizeTotal 计算总价：未提供时按 升×单价；
// 提供但与计算值偏差超过每升 1 分时，以计算值为准。
// 只给了总价没给单价时，总价原样保留。
func normalizeTotal(liters decimal.Decimal, unitPriceCents, totalCents int64) int64 {
	if unitPriceCents <= 0 {
		return totalCents
	}
	computed := liters.Mul(decimal.NewFromInt(unitPriceCents)).Round(0).IntPart()
	if totalCents == 0 {
		return computed
	}
	tolerance := liters.Round(0).IntPart()
	if tolerance < 1 {
		tolerance = 1
	}
	diff := totalCents - computed
	if diff < 0 {
		diff = -diff
	}
	if diff > tolerance {
		return computed
	}
	return totalCents
}
