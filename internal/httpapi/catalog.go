package httpapi

import (
	"net/http"
	"strings"

	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/catalog"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/user"
)

type supplierRequest struct {
	Name   string `json:"name"`
	TaxID  string `json:"tax_id"`
	Phone  string `json:"phone"`
	City   string `json:"city"`
	Active *bool  `json:"active"`
}

type lubricantRequest struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Unit   string `json:"unit"`
	Active *bool  `json:"active"`
}

func catalogFilter(r *http.Request) catalog.ListFilter {
	q := r.URL.Query()
	return catalog.ListFilter{
		Query:      q.Get("q"),
		ActiveOnly: q.Get("active_only") == "true",
	}
}

func (s *Server) suppliersHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		sps, err := s.deps.Catalog.ListSuppliers(r.Context(), catalogFilter(r))
		if err != nil {
			s.serviceError(w, r, "list suppliers", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": toSupplierPayloads(sps)})
	case http.MethodPost:
		if !s.allow(w, r, user.RoleAdmin, user.RoleDesk) {
			return
		}
		s.upsertSupplier(w, r, "")
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) supplierByIDHandler(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r, "/api/suppliers/")
	if len(parts) != 1 || strings.TrimSpace(parts[0]) == "" {
		http.NotFound(w, r)
		return
	}
	id := parts[0]

	switch r.Method {
	case http.MethodGet:
		sp, err := s.deps.Catalog.GetSupplier(r.Context(), id)
		if err != nil {
			s.serviceError(w, r, "load supplier", err)
			return
		}
		writeJSON(w, http.StatusOK, toSupplierPayload(*sp))
	case http.MethodPut:
		if !s.allow(w, r, user.RoleAdmin, user.RoleDesk) {
			return
		}
		if _, err := s.deps.Catalog.GetSupplier(r.Context(), id); err != nil {
			s.serviceError(w, r, "load supplier", err)
			return
		}
		s.upsertSupplier(w, r, id)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) upsertSupplier(w http.ResponseWriter, r *http.Request, id string) {
	var req supplierRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	sp, err := s.deps.Catalog.UpsertSupplier(r.Context(), catalog.UpsertSupplierInput{
		ID:    id,
		Name:  req.Name,
		TaxID: req.TaxID,
		Phone: req.Phone,
		City:  req.City,
	})
	if err != nil {
		s.serviceError(w, r, "save supplier", err)
		return
	}
	if req.Active != nil && *req.Active != sp.Active {
		if err := s.deps.Catalog.SetSupplierActive(r.Context(), sp.ID, *req.Active); err != nil {
			s.serviceError(w, r, "save supplier", err)
			return
		}
		sp.Active = *req.Active
	}
	status := http.StatusOK
	if id == "" {
		status = http.StatusCreated
	}
	writeJSON(w, status, toSupplierPayload(*sp))
}

func (s *Server) lubricantsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		lbs, err := s.deps.Catalog.ListLubricants(r.Context(), catalogFilter(r))
		if err != nil {
			s.serviceError(w, r, "list lubricants", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": toLubricantPayloads(lbs)})
	case http.MethodPost:
		if !s.allow(w, r, user.RoleAdmin, user.RoleDesk) {
			return
		}
		s.upsertLubricant(w, r, "")
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) lubricantByIDHandler(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r, "/api/lubricants/")
	if len(parts) != 1 || strings.TrimSpace(parts[0]) == "" {
		http.NotFound(w, r)
		return
	}
	id := parts[0]

	switch r.Method {
	case http.MethodGet:
		lb, err := s.deps.Catalog.GetLubricant(r.Context(), id)
		if err != nil {
			s.serviceError(w, r, "load lubricant", err)
			return
		}
		writeJSON(w, http.StatusOK, toLubricantPayload(*lb))
	case http.MethodPut:
		if !s.allow(w, r, user.RoleAdmin, user.RoleDesk) {
			return
		}
		if _, err := s.deps.Catalog.GetLubricant(r.Context(), id); err != nil {
			s.serviceError(w, r, "load lubricant", err)
			return
		}
		s.upsertLubricant(w, r, id)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) upsertLubricant(w http.ResponseWriter, r *http.Request, id string) {
	var req lubricantRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	lb, err := s.deps.Catalog.UpsertLubricant(r.Context(), catalog.UpsertLubricantInput{
		ID:   id,
		Name: req.Name,
		Kind: req.Kind,
		Unit: req.Unit,
	})
	if err != nil {
		s.serviceError(w, r, "save lubricant", err)
		return
	}
	if req.Active != nil && *req.Active != lb.Active {
		if err := s.deps.Catalog.SetLubricantActive(r.Context(), lb.ID, *req.Active); err != nil {
			s.serviceError(w, r, "save lubricant", err)
			return
		}
		lb.Active = *req.Active
	}
	status := http.StatusOK
	if id == "" {
		status = http.StatusCreated
	}
	writeJSON(w, status, toLubricantPayload(*lb))
}
