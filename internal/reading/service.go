package reading

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/syncstate"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/vehicle"
)

// 记录来源
const (
	OriginDesk   = "desk"
	OriginField  = "field"
	OriginImport = "import"
)

// ErrVehicleRetired 退役车辆不再接受表读数。
var ErrVehicleRetired = errors.New("vehicle is retired")

// ErrMeterMismatch 车辆没有这种表。
var ErrMeterMismatch = errors.New("vehicle does not track this meter")

// VehicleDirectory reading 需要的车辆能力子集。
type VehicleDirectory interface {
	Get(ctx context.Context, id string) (*vehicle.Vehicle, error)
	RecordMeters(ctx context.Context, id string, horimeter, odometer decimal.Decimal) error
	ResetMeter(ctx context.Context, id, meterKind string, value decimal.Decimal) error
}

// Service 封装表读数领域的核心用例：登记、异常检测、纠错。
type Service struct {
	repo     *Repo
	vehicles VehicleDirectory
}

func NewService(repo *Repo, vehicles VehicleDirectory) *Service {
	return &Service{repo: repo, vehicles: vehicles}
}

// CreateReadingInput 新读数的入参。
type CreateReadingInput struct {
	VehicleID  string
	Meter      string
	ReadAt     time.Time
	Value      decimal.Decimal
	OperatorID string
	Origin     string
	Notes      string
}

// Create 登记一条表读数。
// 不做单调性校验：错抄的读数也要进库，由异常检测去标记。
func (s *Service) Create(ctx context.Context, in CreateReadingInput) (*Reading, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}

	meter, err := s.checkVehicleMeter(ctx, strings.TrimSpace(in.VehicleID), in.Meter)
	if err != nil {
		return nil, err
	}
	if in.Value.IsNegative() {
		return nil, fmt.Errorf("reading value cannot be negative")
	}

	origin := strings.TrimSpace(in.Origin)
	if origin == "" {
		origin = OriginDesk
	}
	readAt := in.ReadAt
	if readAt.IsZero() {
		readAt = time.Now()
	}

	rd := &Reading{
		ID:         uuid.NewString(),
		VehicleID:  strings.TrimSpace(in.VehicleID),
		Meter:      meter,
		ReadAt:     readAt,
		Value:      in.Value.Round(1),
		OperatorID: strings.TrimSpace(in.OperatorID),
		Origin:     origin,
		Notes:      strings.TrimSpace(in.Notes),
		Sync:       syncstate.Meta{SyncStatus: syncstate.StatusPending},
	}

	if err := s.repo.Create(ctx, rd); err != nil {
		return nil, err
	}

	s.bumpMeters(ctx, rd)
	return rd, nil
}

// Update 修改一条读数并重新标记待同步。
func (s *Service) Update(ctx context.Context, id string, in CreateReadingInput) (*Reading, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	rd, err := s.repo.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}

	meter, err := s.checkVehicleMeter(ctx, rd.VehicleID, in.Meter)
	if err != nil {
		return nil, err
	}
	if in.Value.IsNegative() {
		return nil, fmt.Errorf("reading value cannot be negative")
	}

	rd.Meter = meter
	rd.Value = in.Value.Round(1)
	if !in.ReadAt.IsZero() {
		rd.ReadAt = in.ReadAt
	}
	if v := strings.TrimSpace(in.OperatorID); v != "" {
		rd.OperatorID = v
	}
	if v := strings.TrimSpace(in.Notes); v != "" {
		rd.Notes = v
	}
	if err := syncstate.ApplyTransition(&rd.Sync, syncstate.StatusPending, time.Now()); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, rd); err != nil {
		return nil, err
	}

	s.bumpMeters(ctx, rd)
	return rd, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Reading, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	return s.repo.GetByID(ctx, strings.TrimSpace(id))
}

func (s *Service) List(ctx context.Context, f ListFilter, offset, limit int) ([]Reading, int64, error) {
	if s == nil || s.repo == nil {
		return nil, 0, fmt.Errorf("service not initialized")
	}
	return s.repo.List(ctx, f, offset, limit)
}

// Delete 删除读数。镜像表里的行留给下一轮对账清理。
func (s *Service) Delete(ctx context.Context, id string) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("service not initialized")
	}
	id = strings.TrimSpace(id)
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

// DetectAnomalies 对一台车某种表的读数序列跑异常检测。
func (s *Service) DetectAnomalies(ctx context.Context, vehicleID, meter string, from, to *time.Time) ([]Anomaly, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}

	meter, err := s.checkVehicleMeter(ctx, strings.TrimSpace(vehicleID), meter)
	if err != nil {
		return nil, err
	}

	readings, err := s.repo.ListSeries(ctx, strings.TrimSpace(vehicleID), meter, from, to)
	if err != nil {
		return nil, err
	}

	pts := make([]Point, 0, len(readings))
	for _, rd := range readings {
		pts = append(pts, Point{ID: rd.ID, Date: rd.ReadAt, Value: rd.Value})
	}
	return Analyze(pts, DefaultThresholds(meter)), nil
}

// ApplyCorrection 修正一条读数。
// 首次修正时保留原值；修正后的读数重新排队同步；
// 若被修正的是该表最新一条读数，车辆当前读数跟着回写（允许回退）。
func (s *Service) ApplyCorrection(ctx context.Context, id string, value decimal.Decimal, method string) (*Reading, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	rd, err := s.repo.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}

	if value.IsNegative() {
		return nil, fmt.Errorf("corrected value cannot be negative")
	}
	method = strings.TrimSpace(method)
	switch method {
	case "":
		method = MethodManual
	case MethodDigitDrop, MethodDigitInsert, MethodDigitSwap,
		MethodDecimalSlip, MethodEstimate, MethodManual:
	default:
		return nil, fmt.Errorf("unknown correction method: %s", method)
	}

	if !rd.OriginalValue.Valid {
		rd.OriginalValue = decimal.NewNullDecimal(rd.Value)
	}
	rd.Value = value.Round(1)
	rd.CorrectionMethod = method
	if err := syncstate.ApplyTransition(&rd.Sync, syncstate.StatusPending, time.Now()); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, rd); err != nil {
		return nil, err
	}

	// 最新一条被改动时回写车辆档案
	if s.vehicles != nil {
		latest, err := s.repo.Latest(ctx, rd.VehicleID, rd.Meter)
		if err == nil && latest != nil && latest.ID == rd.ID {
			_ = s.vehicles.ResetMeter(ctx, rd.VehicleID, rd.Meter, rd.Value)
		}
	}
	return rd, nil
}

// checkVehicleMeter 校验车辆存在、在役且装有这种表，返回规范化的表类型。
func (s *Service) checkVehicleMeter(ctx context.Context, vehicleID, meter string) (string, error) {
	meter = strings.ToLower(strings.TrimSpace(meter))
	if meter != vehicle.MeterHorimeter && meter != vehicle.MeterOdometer {
		return "", fmt.Errorf("meter must be %s or %s", vehicle.MeterHorimeter, vehicle.MeterOdometer)
	}
	if vehicleID == "" {
		return "", fmt.Errorf("vehicle id is required")
	}
	if s.vehicles == nil {
		return meter, nil
	}

	v, err := s.vehicles.Get(ctx, vehicleID)
	if err != nil {
		return "", err
	}
	if v.Status == vehicle.StatusRetired {
		return "", ErrVehicleRetired
	}
	if meter == vehicle.MeterHorimeter && !v.UsesHorimeter() {
		return "", ErrMeterMismatch
	}
	if meter == vehicle.MeterOdometer && !v.UsesOdometer() {
		return "", ErrMeterMismatch
	}
	return meter, nil
}

// bumpMeters 把新读数推进到车辆档案（只前进）。
func (s *Service) bumpMeters(ctx context.Context, rd *Reading) {
	if s.vehicles == nil || rd == nil {
		return
	}
	h, o := decimal.Zero, decimal.Zero
	switch rd.Meter {
	case vehicle.MeterHorimeter:
		h = rd.Value
	case vehicle.MeterOdometer:
		o = rd.Value
	}
	_ = s.vehicles.RecordMeters(ctx, rd.VehicleID, h, o)
}
