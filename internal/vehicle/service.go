package vehicle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrVehicleInUse 车辆还有加油记录或表读数，拒绝删除。
var ErrVehicleInUse = errors.New("vehicle has fuel records or meter readings")

// UsageChecker 统计引用了某车辆的记录数（fuel.Repo / reading.Repo 均实现）。
type UsageChecker interface {
	CountByVehicle(ctx context.Context, vehicleID string) (int64, error)
}

// Service 封装车辆领域的核心用例（不依赖 HTTP），便于复用和测试。
type Service struct {
	repo     *Repo
	checkers []UsageChecker
}

func NewService(repo *Repo, checkers ...UsageChecker) *Service {
	return &Service{repo: repo, checkers: checkers}
}

// UpsertVehicleInput 创建/更新车辆的入参。
type UpsertVehicleInput struct {
	ID          string
	Code        string
	PlateNumber string
	Description string
	Kind        string
	FuelType    string
	MeterKind   string
	Status      string
}

func (s *Service) Upsert(ctx context.Context, in UpsertVehicleInput) (*Vehicle, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	code := strings.ToUpper(strings.TrimSpace(in.Code))
	if code == "" {
		return nil, fmt.Errorf("code required")
	}
	kind := strings.TrimSpace(in.Kind)
	if kind == "" {
		kind = KindMachine
	}
	meterKind := strings.TrimSpace(in.MeterKind)
	if meterKind == "" {
		// 工程机械默认小时表，其余默认里程表
		if kind == KindMachine {
			meterKind = MeterHorimeter
		} else {
			meterKind = MeterOdometer
		}
	}
	st := strings.TrimSpace(in.Status)
	if st == "" {
		st = StatusActive
	}

	v := &Vehicle{
		ID:          strings.TrimSpace(in.ID),
		Code:        code,
		PlateNumber: strings.ToUpper(strings.TrimSpace(in.PlateNumber)),
		Description: strings.TrimSpace(in.Description),
		Kind:        kind,
		FuelType:    strings.TrimSpace(in.FuelType),
		MeterKind:   meterKind,
		Status:      st,
	}

	if v.ID == "" {
		v.ID = uuid.NewString()
	} else {
		// 更新时保留当前表读数
		if old, err := s.repo.FindByID(ctx, v.ID); err == nil {
			v.CurrentHorimeter = old.CurrentHorimeter
			v.CurrentOdometer = old.CurrentOdometer
		}
	}

	if err := s.repo.Upsert(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Vehicle, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("id required")
	}
	return s.repo.FindByID(ctx, id)
}

func (s *Service) GetByCode(ctx context.Context, code string) (*Vehicle, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, fmt.Errorf("code required")
	}
	return s.repo.FindByCode(ctx, code)
}

func (s *Service) List(ctx context.Context, f ListFilter, offset, limit int) ([]Vehicle, int64, error) {
	if s == nil || s.repo == nil {
		return nil, 0, fmt.Errorf("service not initialized")
	}
	f.Query = strings.TrimSpace(f.Query)
	return s.repo.List(ctx, f, offset, limit)
}

// Delete 删除车辆。还有加油记录或表读数引用时返回 ErrVehicleInUse。
func (s *Service) Delete(ctx context.Context, id string) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("service not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("id required")
	}
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return err
	}
	for _, c := range s.checkers {
		if c == nil {
			continue
		}
		n, err := c.CountByVehicle(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrVehicleInUse
		}
	}
	return s.repo.Delete(ctx, id)
}

// RecordMeters 根据新的表读数推进车辆当前读数。
// 读数只前进不后退，回退值留给读数纠错流程处理。
func (s *Service) RecordMeters(ctx context.Context, id string, horimeter, odometer decimal.Decimal) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("service not initialized")
	}
	v, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}

	changed := false
	if v.UsesHorimeter() && horimeter.GreaterThan(v.CurrentHorimeter) {
		v.CurrentHorimeter = horimeter
		changed = true
	}
	if v.UsesOdometer() && odometer.GreaterThan(v.CurrentOdometer) {
		v.CurrentOdometer = odometer
		changed = true
	}
	if !changed {
		return nil
	}
	return s.repo.Upsert(ctx, v)
}

// ResetMeter 纠错后强制回写当前表读数（允许回退）。
func (s *Service) ResetMeter(ctx context.Context, id, meterKind string, value decimal.Decimal) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("service not initialized")
	}
	v, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	switch meterKind {
	case MeterHorimeter:
		v.CurrentHorimeter = value
	case MeterOdometer:
		v.CurrentOdometer = value
	default:
		return fmt.Errorf("unknown meter kind: %s", meterKind)
	}
	return s.repo.Upsert(ctx, v)
}
