package httpapi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/catalog"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/fuel"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/reading"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/syncstate"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/user"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/vehicle"
)

// listPayload 列表响应的统一信封。
type listPayload struct {
	Items  any   `json:"items"`
	Total  int64 `json:"total"`
	Offset int   `json:"offset"`
	Limit  int   `json:"limit"`
}

// syncPayload 记录的同步元数据。
type syncPayload struct {
	Status    syncstate.Status `json:"status"`
	RowID     string           `json:"row_id,omitempty"`
	Attempts  int              `json:"attempts,omitempty"`
	LastError string           `json:"last_error,omitempty"`
	SyncedAt  *time.Time       `json:"synced_at,omitempty"`
}

func toSyncPayload(m syncstate.Meta) syncPayload {
	return syncPayload{
		Status:    m.SyncStatus,
		RowID:     m.SheetRowID,
		Attempts:  m.SyncAttempts,
		LastError: m.LastSyncError,
		SyncedAt:  m.SyncedAt,
	}
}

type vehiclePayload struct {
	ID               string          `json:"id"`
	Code             string          `json:"code"`
	PlateNumber      string          `json:"plate_number,omitempty"`
	Description      string          `json:"description,omitempty"`
	Kind             string          `json:"kind"`
	FuelType         string          `json:"fuel_type"`
	MeterKind        string          `json:"meter_kind"`
	CurrentHorimeter decimal.Decimal `json:"current_horimeter"`
	CurrentOdometer  decimal.Decimal `json:"current_odometer"`
	Status           string          `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func toVehiclePayload(v vehicle.Vehicle) vehiclePayload {
	return vehiclePayload{
		ID:               v.ID,
		Code:             v.Code,
		PlateNumber:      v.PlateNumber,
		Description:      v.Description,
		Kind:             v.Kind,
		FuelType:         v.FuelType,
		MeterKind:        v.MeterKind,
		CurrentHorimeter: v.CurrentHorimeter,
		CurrentOdometer:  v.CurrentOdometer,
		Status:           v.Status,
		CreatedAt:        v.CreatedAt,
		UpdatedAt:        v.UpdatedAt,
	}
}

func toVehiclePayloads(vs []vehicle.Vehicle) []vehiclePayload {
	out := make([]vehiclePayload, 0, len(vs))
	for _, v := range vs {
		out = append(out, toVehiclePayload(v))
	}
	return out
}

type fuelRecordPayload struct {
	ID             string              `json:"id"`
	VehicleID      string              `json:"vehicle_id"`
	SupplierID     string              `json:"supplier_id,omitempty"`
	OperatorID     string              `json:"operator_id,omitempty"`
	Origin         string              `json:"origin"`
	FilledAt       time.Time           `json:"filled_at"`
	Liters         decimal.Decimal     `json:"liters"`
	UnitPriceCents int64               `json:"unit_price_cents"`
	TotalCents     int64               `json:"total_cents"`
	Currency       string              `json:"currency"`
	Horimeter      decimal.NullDecimal `json:"horimeter"`
	Odometer       decimal.NullDecimal `json:"odometer"`
	LubricantID    string              `json:"lubricant_id,omitempty"`
	LubricantQty   decimal.Decimal     `json:"lubricant_qty"`
	Notes          string              `json:"notes,omitempty"`
	Sync           syncPayload         `json:"sync"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

func toFuelRecordPayload(rec fuel.Record) fuelRecordPayload {
	return fuelRecordPayload{
		ID:             rec.ID,
		VehicleID:      rec.VehicleID,
		SupplierID:     rec.SupplierID,
		OperatorID:     rec.OperatorID,
		Origin:         rec.Origin,
		FilledAt:       rec.FilledAt,
		Liters:         rec.Liters,
		UnitPriceCents: rec.UnitPriceCents,
		TotalCents:     rec.TotalCents,
		Currency:       rec.Currency,
		Horimeter:      rec.Horimeter,
		Odometer:       rec.Odometer,
		LubricantID:    rec.LubricantID,
		LubricantQty:   rec.LubricantQty,
		Notes:          rec.Notes,
		Sync:           toSyncPayload(rec.Sync),
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}
}

func toFuelRecordPayloads(recs []fuel.Record) []fuelRecordPayload {
	out := make([]fuelRecordPayload, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toFuelRecordPayload(rec))
	}
	return out
}

type fuelSummaryPayload struct {
	VehicleID     string          `json:"vehicle_id"`
	Records       int64           `json:"records"`
	Liters        decimal.Decimal `json:"liters"`
	TotalCents    int64           `json:"total_cents"`
	LitersPerHour decimal.Decimal `json:"liters_per_hour"`
	KmPerLiter    decimal.Decimal `json:"km_per_liter"`
}

func toFuelSummaryPayloads(rows []fuel.VehicleSummary) []fuelSummaryPayload {
	out := make([]fuelSummaryPayload, 0, len(rows))
	for _, row := range rows {
		out = append(out, fuelSummaryPayload{
			VehicleID:     row.VehicleID,
			Records:       row.Records,
			Liters:        row.Liters,
			TotalCents:    row.TotalCents,
			LitersPerHour: row.LitersPerHour,
			KmPerLiter:    row.KmPerLiter,
		})
	}
	return out
}

type readingPayload struct {
	ID               string              `json:"id"`
	VehicleID        string              `json:"vehicle_id"`
	Meter            string              `json:"meter"`
	ReadAt           time.Time           `json:"read_at"`
	Value            decimal.Decimal     `json:"value"`
	OriginalValue    decimal.NullDecimal `json:"original_value"`
	CorrectionMethod string              `json:"correction_method,omitempty"`
	OperatorID       string              `json:"operator_id,omitempty"`
	Origin           string              `json:"origin"`
	Notes            string              `json:"notes,omitempty"`
	Sync             syncPayload         `json:"sync"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

func toReadingPayload(rd reading.Reading) readingPayload {
	return readingPayload{
		ID:               rd.ID,
		VehicleID:        rd.VehicleID,
		Meter:            rd.Meter,
		ReadAt:           rd.ReadAt,
		Value:            rd.Value,
		OriginalValue:    rd.OriginalValue,
		CorrectionMethod: rd.CorrectionMethod,
		OperatorID:       rd.OperatorID,
		Origin:           rd.Origin,
		Notes:            rd.Notes,
		Sync:             toSyncPayload(rd.Sync),
		CreatedAt:        rd.CreatedAt,
		UpdatedAt:        rd.UpdatedAt,
	}
}

func toReadingPayloads(rds []reading.Reading) []readingPayload {
	out := make([]readingPayload, 0, len(rds))
	for _, rd := range rds {
		out = append(out, toReadingPayload(rd))
	}
	return out
}

type suggestionPayload struct {
	Value      decimal.Decimal `json:"value"`
	Method     string          `json:"method"`
	Confidence float64         `json:"confidence"`
}

type anomalyPayload struct {
	ReadingID  string             `json:"reading_id"`
	Date       time.Time          `json:"date"`
	Value      decimal.Decimal    `json:"value"`
	PrevValue  decimal.Decimal    `json:"prev_value"`
	Kind       reading.Kind       `json:"kind"`
	Days       int64              `json:"days"`
	DailyUsage decimal.Decimal    `json:"daily_usage"`
	Baseline   decimal.Decimal    `json:"baseline"`
	Expected   decimal.Decimal    `json:"expected"`
	Suggestion *suggestionPayload `json:"suggestion,omitempty"`
}

func toAnomalyPayloads(as []reading.Anomaly) []anomalyPayload {
	out := make([]anomalyPayload, 0, len(as))
	for _, a := range as {
		p := anomalyPayload{
			ReadingID:  a.Point.ID,
			Date:       a.Point.Date,
			Value:      a.Point.Value,
			PrevValue:  a.PrevValue,
			Kind:       a.Kind,
			Days:       a.Days,
			DailyUsage: a.DailyUsage,
			Baseline:   a.Baseline,
			Expected:   a.Expected,
		}
		if a.Suggestion != nil {
			p.Suggestion = &suggestionPayload{
				Value:      a.Suggestion.Value,
				Method:     a.Suggestion.Method,
				Confidence: a.Suggestion.Confidence,
			}
		}
		out = append(out, p)
	}
	return out
}

type supplierPayload struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	TaxID     string    `json:"tax_id,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	City      string    `json:"city,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toSupplierPayload(sp catalog.Supplier) supplierPayload {
	return supplierPayload{
		ID:        sp.ID,
		Name:      sp.Name,
		TaxID:     sp.TaxID,
		Phone:     sp.Phone,
		City:      sp.City,
		Active:    sp.Active,
		CreatedAt: sp.CreatedAt,
		UpdatedAt: sp.UpdatedAt,
	}
}

func toSupplierPayloads(sps []catalog.Supplier) []supplierPayload {
	out := make([]supplierPayload, 0, len(sps))
	for _, sp := range sps {
		out = append(out, toSupplierPayload(sp))
	}
	return out
}

type lubricantPayload struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind,omitempty"`
	Unit      string    `json:"unit"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toLubricantPayload(lb catalog.Lubricant) lubricantPayload {
	return lubricantPayload{
		ID:        lb.ID,
		Name:      lb.Name,
		Kind:      lb.Kind,
		Unit:      lb.Unit,
		Active:    lb.Active,
		CreatedAt: lb.CreatedAt,
		UpdatedAt: lb.UpdatedAt,
	}
}

func toLubricantPayloads(lbs []catalog.Lubricant) []lubricantPayload {
	out := make([]lubricantPayload, 0, len(lbs))
	for _, lb := range lbs {
		out = append(out, toLubricantPayload(lb))
	}
	return out
}

// userPayload 不含密码散列。
type userPayload struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	FullName  string    `json:"full_name,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	Roles     []string  `json:"roles"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toUserPayload(u user.User) userPayload {
	return userPayload{
		ID:        u.ID,
		Username:  u.Username,
		FullName:  u.FullName,
		Phone:     u.Phone,
		Email:     u.Email,
		Roles:     u.RolesSlice(),
		Active:    u.Active,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func toUserPayloads(us []user.User) []userPayload {
	out := make([]userPayload, 0, len(us))
	for _, u := range us {
		out = append(out, toUserPayload(u))
	}
	return out
}
