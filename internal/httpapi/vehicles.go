package httpapi

import (
	"net/http"
	"strings"

	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/user"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/vehicle"
)

type upsertVehicleRequest struct {
	Code        string `json:"code"`
	PlateNumber string `json:"plate_number"`
	Description string `json:"description"`
	Kind        string `json:"kind"`
	FuelType    string `json:"fuel_type"`
	MeterKind   string `json:"meter_kind"`
	Status      string `json:"status"`
}

// validate 枚举字段给了就得是认识的值，空着走服务层缺省。
func (req upsertVehicleRequest) validate() string {
	if strings.TrimSpace(req.Code) == "" {
		return "code is required"
	}
	switch strings.TrimSpace(req.Kind) {
	case "", vehicle.KindTruck, vehicle.KindMachine, vehicle.KindLight:
	default:
		return "unknown vehicle kind"
	}
	switch strings.TrimSpace(req.MeterKind) {
	case "", vehicle.MeterHorimeter, vehicle.MeterOdometer, vehicle.MeterBoth:
	default:
		return "unknown meter kind"
	}
	switch strings.TrimSpace(req.Status) {
	case "", vehicle.StatusActive, vehicle.StatusMaintenance, vehicle.StatusRetired:
	default:
		return "unknown vehicle status"
	}
	return ""
}

func (s *Server) vehiclesHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listVehicles(w, r)
	case http.MethodPost:
		if !s.allow(w, r, user.RoleAdmin, user.RoleDesk) {
			return
		}
		s.createVehicle(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) listVehicles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := vehicle.ListFilter{
		Kind:   q.Get("kind"),
		Status: q.Get("status"),
		Query:  q.Get("q"),
	}
	offset, limit := pageParams(r)
	vs, total, err := s.deps.Vehicles.List(r.Context(), f, offset, limit)
	if err != nil {
		s.serviceError(w, r, "list vehicles", err)
		return
	}
	writeJSON(w, http.StatusOK, listPayload{
		Items:  toVehiclePayloads(vs),
		Total:  total,
		Offset: offset,
		Limit:  limit,
	})
}

func (s *Server) createVehicle(w http.ResponseWriter, r *http.Request) {
	var req upsertVehicleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	v, err := s.deps.Vehicles.Upsert(r.Context(), vehicle.UpsertVehicleInput{
		Code:        req.Code,
		PlateNumber: req.PlateNumber,
		Description: req.Description,
		Kind:        req.Kind,
		FuelType:    req.FuelType,
		MeterKind:   req.MeterKind,
		Status:      req.Status,
	})
	if err != nil {
		s.serviceError(w, r, "create vehicle", err)
		return
	}
	writeJSON(w, http.StatusCreated, toVehiclePayload(*v))
}

func (s *Server) vehicleByIDHandler(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r, "/api/vehicles/")
	if len(parts) == 0 || strings.TrimSpace(parts[0]) == "" {
		http.NotFound(w, r)
		return
	}
	id := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			s.getVehicle(w, r, id)
		case http.MethodPut:
			if !s.allow(w, r, user.RoleAdmin, user.RoleDesk) {
				return
			}
			s.updateVehicle(w, r, id)
		case http.MethodDelete:
			if !s.allow(w, r, user.RoleAdmin, user.RoleDesk) {
				return
			}
			s.deleteVehicle(w, r, id)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	if len(parts) == 2 && parts[1] == "anomalies" {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !s.allow(w, r, user.RoleAdmin, user.RoleDesk) {
			return
		}
		s.vehicleAnomalies(w, r, id)
		return
	}

	http.NotFound(w, r)
}

func (s *Server) getVehicle(w http.ResponseWriter, r *http.Request, id string) {
	v, err := s.deps.Vehicles.Get(r.Context(), id)
	if err != nil {
		s.serviceError(w, r, "load vehicle", err)
		return
	}
	writeJSON(w, http.StatusOK, toVehiclePayload(*v))
}

func (s *Server) updateVehicle(w http.ResponseWriter, r *http.Request, id string) {
	var req upsertVehicleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	// 先确认存在，Upsert 对没有的 ID 会当新建处理
	if _, err := s.deps.Vehicles.Get(r.Context(), id); err != nil {
		s.serviceError(w, r, "load vehicle", err)
		return
	}
	v, err := s.deps.Vehicles.Upsert(r.Context(), vehicle.UpsertVehicleInput{
		ID:          id,
		Code:        req.Code,
		PlateNumber: req.PlateNumber,
		Description: req.Description,
		Kind:        req.Kind,
		FuelType:    req.FuelType,
		MeterKind:   req.MeterKind,
		Status:      req.Status,
	})
	if err != nil {
		s.serviceError(w, r, "update vehicle", err)
		return
	}
	writeJSON(w, http.StatusOK, toVehiclePayload(*v))
}

func (s *Server) deleteVehicle(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.deps.Vehicles.Delete(r.Context(), id); err != nil {
		s.serviceError(w, r, "delete vehicle", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "vehicle deleted"})
}

func (s *Server) vehicleAnomalies(w http.ResponseWriter, r *http.Request, id string) {
	q := r.URL.Query()
	meter := strings.TrimSpace(q.Get("meter"))
	switch meter {
	case vehicle.MeterHorimeter, vehicle.MeterOdometer:
	default:
		writeError(w, http.StatusBadRequest, "meter must be horimeter or odometer")
		return
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

	anomalies, err := s.deps.Readings.DetectAnomalies(r.Context(), id, meter, from, to)
	if err != nil {
		s.serviceError(w, r, "detect anomalies", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"vehicle_id": id,
		"meter":      meter,
		"anomalies":  toAnomalyPayloads(anomalies),
	})
}
