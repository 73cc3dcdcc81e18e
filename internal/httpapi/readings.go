package httpapi

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/reading"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/syncstate"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/user"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/vehicle"
)

type readingRequest struct {
	VehicleID  string          `json:"vehicle_id"`
	Meter      string          `json:"meter"`
	ReadAt     string          `json:"read_at"`
	Value      decimal.Decimal `json:"value"`
	OperatorID string          `json:"operator_id"`
	Origin     string          `json:"origin"`
	Notes      string          `json:"notes"`
}

func (req readingRequest) validate() string {
	if strings.TrimSpace(req.VehicleID) == "" {
		return "vehicle_id is required"
	}
	switch strings.TrimSpace(req.Meter) {
	case vehicle.MeterHorimeter, vehicle.MeterOdometer:
	default:
		return "meter must be horimeter or odometer"
	}
	if strings.TrimSpace(req.ReadAt) == "" {
		return "read_at is required"
	}
	if req.Value.IsNegative() {
		return "value must not be negative"
	}
	switch strings.TrimSpace(req.Origin) {
	case "", reading.OriginDesk, reading.OriginField, reading.OriginImport:
	default:
		return "unknown origin"
	}
	return ""
}

func (s *Server) readingsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !s.allow(w, r, user.RoleAdmin, user.RoleDesk) {
			return
		}
		s.listReadings(w, r)
	case http.MethodPost:
		s.createReading(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) listReadings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := reading.ListFilter{
		VehicleID:  q.Get("vehicle_id"),
		Meter:      q.Get("meter"),
		OperatorID: q.Get("operator_id"),
	}
	if raw := strings.TrimSpace(q.Get("sync_status")); raw != "" {
		st := syncstate.Status(raw)
		if st != syncstate.StatusPending && st != syncstate.StatusSynced && st != syncstate.StatusConflict {
			writeError(w, http.StatusBadRequest, "unknown sync_status")
			return
		}
		f.SyncStatus = st
	}
	from, err := timeParam(q, "from")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := timeParam(q, "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	f.From, f.To = from, to

	offset, limit := pageParams(r)
	rds, total, err := s.deps.Readings.List(r.Context(), f, offset, limit)
	if err != nil {
		s.serviceError(w, r, "list readings", err)
		return
	}
	writeJSON(w, http.StatusOK, listPayload{
		Items:  toReadingPayloads(rds),
		Total:  total,
		Offset: offset,
		Limit:  limit,
	})
}

func (s *Server) createReading(w http.ResponseWriter, r *http.Request) {
	var req readingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	readAt, err := parseRequestTime(req.ReadAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read_at: "+err.Error())
		return
	}
	rd, err := s.deps.Readings.Create(r.Context(), reading.CreateReadingInput{
		VehicleID:  req.VehicleID,
		Meter:      req.Meter,
		ReadAt:     readAt,
		Value:      req.Value,
		OperatorID: s.requestOperator(r, req.OperatorID),
		Origin:     s.requestOrigin(r, req.Origin),
		Notes:      req.Notes,
	})
	if err != nil {
		s.serviceError(w, r, "create reading", err)
		return
	}
	writeJSON(w, http.StatusCreated, toReadingPayload(*rd))
}

func (s *Server) readingByIDHandler(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r, "/api/readings/")
	if len(parts) == 0 || strings.TrimSpace(parts[0]) == "" {
		http.NotFound(w, r)
		return
	}
	id := parts[0]

	if len(parts) == 1 {
		if !s.allow(w, r, user.RoleAdmin, user.RoleDesk) {
			return
		}
		switch r.Method {
		case http.MethodGet:
			s.getReading(w, r, id)
		case http.MethodPut:
			s.updateReading(w, r, id)
		case http.MethodDelete:
			s.deleteReading(w, r, id)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	if len(parts) == 2 && parts[1] == "correction" {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !s.allow(w, r, user.RoleAdmin, user.RoleDesk) {
			return
		}
		s.correctReading(w, r, id)
		return
	}

	http.NotFound(w, r)
}

func (s *Server) getReading(w http.ResponseWriter, r *http.Request, id string) {
	rd, err := s.deps.Readings.Get(r.Context(), id)
	if err != nil {
		s.serviceError(w, r, "load reading", err)
		return
	}
	writeJSON(w, http.StatusOK, toReadingPayload(*rd))
}

func (s *Server) updateReading(w http.ResponseWriter, r *http.Request, id string) {
	var req readingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	readAt, err := parseRequestTime(req.ReadAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read_at: "+err.Error())
		return
	}
	// 编辑不顶替原操作员，服务层对空值保持原样
	rd, err := s.deps.Readings.Update(r.Context(), id, reading.CreateReadingInput{
		VehicleID:  req.VehicleID,
		Meter:      req.Meter,
		ReadAt:     readAt,
		Value:      req.Value,
		OperatorID: req.OperatorID,
		Origin:     req.Origin,
		Notes:      req.Notes,
	})
	if err != nil {
		s.serviceError(w, r, "update reading", err)
		return
	}
	writeJSON(w, http.StatusOK, toReadingPayload(*rd))
}

func (s *Server) deleteReading(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.deps.Readings.Delete(r.Context(), id); err != nil {
		s.serviceError(w, r, "delete reading", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "reading deleted"})
}

type correctionRequest struct {
	Value  decimal.Decimal `json:"value"`
	Method string          `json:"method"`
}

// correctReading 采纳异常检测的建议值或人工改值。原值保留在 original_value。
func (s *Server) correctReading(w http.ResponseWriter, r *http.Request, id string) {
	var req correctionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Value.IsNegative() {
		writeError(w, http.StatusBadRequest, "value must not be negative")
		return
	}
	switch strings.TrimSpace(req.Method) {
	case "", reading.MethodManual, reading.MethodDigitDrop, reading.MethodDigitInsert,
		reading.MethodDigitSwap, reading.MethodDecimalSlip, reading.MethodEstimate:
	default:
		writeError(w, http.StatusBadRequest, "unknown correction method")
		return
	}
	rd, err := s.deps.Readings.ApplyCorrection(r.Context(), id, req.Value, req.Method)
	if err != nil {
		s.serviceError(w, r, "apply correction", err)
		return
	}
	writeJSON(w, http.StatusOK, toReadingPayload(*rd))
}
