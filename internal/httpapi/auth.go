package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/common/server"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      userPayload `json:"user"`
}

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	u, token, expiresAt, err := s.deps.Users.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		s.serviceError(w, r, "login", err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      toUserPayload(*u),
	})
}

func (s *Server) profileHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ai, ok := server.AuthFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing auth context")
		return
	}
	u, err := s.deps.Users.Get(r.Context(), ai.Subject)
	if err != nil {
		s.serviceError(w, r, "load profile", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserPayload(*u))
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// changePasswordHandler 登录用户改自己的口令。
func (s *Server) changePasswordHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ai, ok := server.AuthFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing auth context")
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.NewPassword) < 6 {
		writeError(w, http.StatusBadRequest, "password must be at least 6 characters")
		return
	}
	if err := s.deps.Users.ChangePassword(r.Context(), ai.Subject, req.OldPassword, req.NewPassword); err != nil {
		s.serviceError(w, r, "change password", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "password changed"})
}
