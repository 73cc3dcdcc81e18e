package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/common/server"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/fuel"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/syncstate"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/user"
)

type fuelRecordRequest struct {
	VehicleID      string              `json:"vehicle_id"`
	SupplierID     string              `json:"supplier_id"`
	OperatorID     string              `json:"operator_id"`
	Origin         string              `json:"origin"`
	FilledAt       string              `json:"filled_at"`
	Liters         decimal.Decimal     `json:"liters"`
	UnitPriceCents int64               `json:"unit_price_cents"`
	TotalCents     int64               `json:"total_cents"`
	Horimeter      decimal.NullDecimal `json:"horimeter"`
	Odometer       decimal.NullDecimal `json:"odometer"`
	LubricantID    string              `json:"lubricant_id"`
	LubricantQty   decimal.Decimal     `json:"lubricant_qty"`
	Notes          string              `json:"notes"`
}

func (req fuelRecordRequest) validate() string {
	if strings.TrimSpace(req.VehicleID) == "" {
		return "vehicle_id is required"
	}
	if strings.TrimSpace(req.FilledAt) == "" {
		return "filled_at is required"
	}
	if !req.Liters.IsPositive() {
		return "liters must be positive"
	}
	if req.UnitPriceCents < 0 || req.TotalCents < 0 {
		return "price must not be negative"
	}
	switch strings.TrimSpace(req.Origin) {
	case "", fuel.OriginDesk, fuel.OriginField, fuel.OriginImport:
	default:
		return "unknown origin"
	}
	return ""
}

// requestOrigin 没传 origin 时按登录角色推断：只带 field 角色的算现场录入。
func (s *Server) requestOrigin(r *http.Request, explicit string) string {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		return explicit
	}
	if ai, ok := server.AuthFromContext(r.Context()); ok && len(ai.Roles) > 0 {
		onlyField := true
		for _, role := range ai.Roles {
			if role != user.RoleField {
				onlyField = false
				break
			}
		}
		if onlyField {
			return fuel.OriginField
		}
	}
	return fuel.OriginDesk
}

// requestOperator 没传 operator 时记成当前登录用户。
func (s *Server) requestOperator(r *http.Request, explicit string) string {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		return explicit
	}
	if ai, ok := server.AuthFromContext(r.Context()); ok {
		return ai.Subject
	}
	return ""
}

func (s *Server) fuelRecordsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !s.allow(w, r, user.RoleAdmin, user.RoleDesk) {
			return
		}
		s.listFuelRecords(w, r)
	case http.MethodPost:
		s.createFuelRecord(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// fuelListFilter GET 列表和汇总共用的查询参数。
func fuelListFilter(r *http.Request) (fuel.ListFilter, string) {
	q := r.URL.Query()
	f := fuel.ListFilter{
		VehicleID:  q.Get("vehicle_id"),
		SupplierID: q.Get("supplier_id"),
		OperatorID: q.Get("operator_id"),
		Origin:     q.Get("origin"),
	}
	if raw := strings.TrimSpace(q.Get("sync_status")); raw != "" {
		st := syncstate.Status(raw)
		if st != syncstate.StatusPending && st != syncstate.StatusSynced && st != syncstate.StatusConflict {
			return f, "unknown sync_status"
		}
		f.SyncStatus = st
	}
	from, err := timeParam(q, "from")
	if err != nil {
		return f, err.Error()
	}
	to, err := timeParam(q, "to")
	if err != nil {
		return f, err.Error()
	}
	f.From, f.To = from, to
	return f, ""
}

func (s *Server) listFuelRecords(w http.ResponseWriter, r *http.Request) {
	f, msg := fuelListFilter(r)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	offset, limit := pageParams(r)
	recs, total, err := s.deps.Fuel.List(r.Context(), f, offset, limit)
	if err != nil {
		s.serviceError(w, r, "list fuel records", err)
		return
	}
	writeJSON(w, http.StatusOK, listPayload{
		Items:  toFuelRecordPayloads(recs),
		Total:  total,
		Offset: offset,
		Limit:  limit,
	})
}

func (s *Server) createFuelRecord(w http.ResponseWriter, r *http.Request) {
	var req fuelRecordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	filledAt, err := parseRequestTime(req.FilledAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "filled_at: "+err.Error())
		return
	}
	// 新建时没报操作员就记当前登录人；编辑历史记录时不这么做，
	// 不然改一下数据就把操作员顶成编辑的人了
	in := fuelInput(req, filledAt, s.requestOperator(r, req.OperatorID), s.requestOrigin(r, req.Origin))
	rec, err := s.deps.Fuel.Create(r.Context(), in)
	if err != nil {
		s.serviceError(w, r, "create fuel record", err)
		return
	}
	writeJSON(w, http.StatusCreated, toFuelRecordPayload(*rec))
}

func fuelInput(req fuelRecordRequest, filledAt time.Time, operatorID, origin string) fuel.CreateRecordInput {
	return fuel.CreateRecordInput{
		VehicleID:      req.VehicleID,
		SupplierID:     req.SupplierID,
		OperatorID:     operatorID,
		Origin:         origin,
		FilledAt:       filledAt,
		Liters:         req.Liters,
		UnitPriceCents: req.UnitPriceCents,
		TotalCents:     req.TotalCents,
		Horimeter:      req.Horimeter,
		Odometer:       req.Odometer,
		LubricantID:    req.LubricantID,
		LubricantQty:   req.LubricantQty,
		Notes:          req.Notes,
	}
}

// fuelRecordSubHandler `/api/fuel-records/` 下的三类子路径：
// batch-delete、summary 和具体记录 ID。
func (s *Server) fuelRecordSubHandler(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r, "/api/fuel-records/")
	if len(parts) != 1 || strings.TrimSpace(parts[0]) == "" {
		http.NotFound(w, r)
		return
	}

	switch parts[0] {
	case "batch-delete":
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !s.allow(w, r, user.RoleAdmin, user.RoleDesk) {
			return
		}
		s.batchDeleteFuelRecords(w, r)
		return
	case "summary":
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !s.allow(w, r, user.RoleAdmin, user.RoleDesk) {
			return
		}
		s.fuelSummary(w, r)
		return
	}

	id := parts[0]
	switch r.Method {
	case http.MethodGet:
		if !s.allow(w, r, user.RoleAdmin, user.RoleDesk) {
			return
		}
		s.getFuelRecord(w, r, id)
	case http.MethodPut:
		if !s.allow(w, r, user.RoleAdmin, user.RoleDesk) {
			return
		}
		s.updateFuelRecord(w, r, id)
	case http.MethodDelete:
		if !s.allow(w, r, user.RoleAdmin, user.RoleDesk) {
			return
		}
		s.deleteFuelRecord(w, r, id)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) getFuelRecord(w http.ResponseWriter, r *http.Request, id string) {
	rec, err := s.deps.Fuel.Get(r.Context(), id)
	if err != nil {
		s.serviceError(w, r, "load fuel record", err)
		return
	}
	writeJSON(w, http.StatusOK, toFuelRecordPayload(*rec))
}

func (s *Server) updateFuelRecord(w http.ResponseWriter, r *http.Request, id string) {
	var req fuelRecordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	filledAt, err := parseRequestTime(req.FilledAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "filled_at: "+err.Error())
		return
	}
	rec, err := s.deps.Fuel.Update(r.Context(), id, fuelInput(req, filledAt, req.OperatorID, req.Origin))
	if err != nil {
		s.serviceError(w, r, "update fuel record", err)
		return
	}
	writeJSON(w, http.StatusOK, toFuelRecordPayload(*rec))
}

func (s *Server) deleteFuelRecord(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.deps.Fuel.Delete(r.Context(), id); err != nil {
		s.serviceError(w, r, "delete fuel record", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "fuel record deleted"})
}

type batchDeleteRequest struct {
	IDs []string `json:"ids"`
}

func (s *Server) batchDeleteFuelRecords(w http.ResponseWriter, r *http.Request) {
	var req batchDeleteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids are required")
		return
	}
	res, err := s.deps.Fuel.BatchDelete(r.Context(), req.IDs)
	if err != nil {
		s.serviceError(w, r, "batch delete fuel records", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"deleted": res.Deleted,
		"failed":  res.Failed,
	})
}

func (s *Server) fuelSummary(w http.ResponseWriter, r *http.Request) {
	f, msg := fuelListFilter(r)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	rows, err := s.deps.Fuel.Summary(r.Context(), f)
	if err != nil {
		s.serviceError(w, r, "fuel summary", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": toFuelSummaryPayloads(rows),
	})
}
