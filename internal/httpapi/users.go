package httpapi

import (
	"net/http"
	"strings"

	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/user"
)

type registerUserRequest struct {
	Username string   `json:"username"`
	Password string   `json:"password"`
	FullName string   `json:"full_name"`
	Phone    string   `json:"phone"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
}

type updateUserRequest struct {
	Roles  []string `json:"roles"`
	Active *bool    `json:"active"`
}

func validateRoles(roles []string) string {
	for _, role := range roles {
		switch strings.TrimSpace(role) {
		case user.RoleAdmin, user.RoleDesk, user.RoleField:
		default:
			return "unknown role: " + role
		}
	}
	return ""
}

func (s *Server) usersHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listUsers(w, r)
	case http.MethodPost:
		s.registerUser(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := user.ListFilter{
		Role:       q.Get("role"),
		ActiveOnly: q.Get("active_only") == "true",
		Query:      q.Get("q"),
	}
	offset, limit := pageParams(r)
	us, total, err := s.deps.Users.List(r.Context(), f, offset, limit)
	if err != nil {
		s.serviceError(w, r, "list users", err)
		return
	}
	writeJSON(w, http.StatusOK, listPayload{
		Items:  toUserPayloads(us),
		Total:  total,
		Offset: offset,
		Limit:  limit,
	})
}

func (s *Server) registerUser(w http.ResponseWriter, r *http.Request) {
	var req registerUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}
	if len(req.Password) < 6 {
		writeError(w, http.StatusBadRequest, "password must be at least 6 characters")
		return
	}
	if msg := validateRoles(req.Roles); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	u, err := s.deps.Users.Register(r.Context(), user.RegisterInput{
		Username: req.Username,
		Password: req.Password,
		FullName: req.FullName,
		Phone:    req.Phone,
		Email:    req.Email,
		Roles:    req.Roles,
	})
	if err != nil {
		s.serviceError(w, r, "register user", err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserPayload(*u))
}

func (s *Server) userByIDHandler(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r, "/api/users/")
	if len(parts) != 1 || strings.TrimSpace(parts[0]) == "" {
		http.NotFound(w, r)
		return
	}
	id := parts[0]

	switch r.Method {
	case http.MethodGet:
		u, err := s.deps.Users.Get(r.Context(), id)
		if err != nil {
			s.serviceError(w, r, "load user", err)
			return
		}
		writeJSON(w, http.StatusOK, toUserPayload(*u))
	case http.MethodPut:
		s.updateUser(w, r, id)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// updateUser 管理员改角色、停用/恢复账号。两个字段都可选，给了才动。
func (s *Server) updateUser(w http.ResponseWriter, r *http.Request, id string) {
	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Roles == nil && req.Active == nil {
		writeError(w, http.StatusBadRequest, "nothing to update")
		return
	}
	if req.Roles != nil {
		if len(req.Roles) == 0 {
			writeError(w, http.StatusBadRequest, "at least one role required")
			return
		}
		if msg := validateRoles(req.Roles); msg != "" {
			writeError(w, http.StatusBadRequest, msg)
			return
		}
		if _, err := s.deps.Users.SetRoles(r.Context(), id, req.Roles); err != nil {
			s.serviceError(w, r, "update user", err)
			return
		}
	}
	if req.Active != nil {
		if err := s.deps.Users.SetActive(r.Context(), id, *req.Active); err != nil {
			s.serviceError(w, r, "update user", err)
			return
		}
	}
	u, err := s.deps.Users.Get(r.Context(), id)
	if err != nil {
		s.serviceError(w, r, "load user", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserPayload(*u))
}
