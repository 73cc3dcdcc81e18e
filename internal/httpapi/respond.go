package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/fuel"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/reading"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/sheetsync"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/user"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/vehicle"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// errStatus 业务错误到 HTTP 状态码的映射。没对上的都算内部错误。
func errStatus(err error) int {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, user.ErrInvalidCredentials),
		errors.Is(err, user.ErrUserDisabled):
		return http.StatusUnauthorized
	case errors.Is(err, user.ErrUsernameTaken),
		errors.Is(err, vehicle.ErrVehicleInUse),
		errors.Is(err, sheetsync.ErrRunInProgress):
		return http.StatusConflict
	case errors.Is(err, fuel.ErrVehicleRetired),
		errors.Is(err, reading.ErrVehicleRetired),
		errors.Is(err, reading.ErrMeterMismatch):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// serviceError 按 errStatus 回错误。内部错误只回笼统消息，细节进日志。
func (s *Server) serviceError(w http.ResponseWriter, r *http.Request, what string, err error) {
	status := errStatus(err)
	if status == http.StatusInternalServerError {
		s.log.WithField("path", r.URL.Path).Errorf("%s: %v", what, err)
		writeError(w, status, what+" failed")
		return
	}
	writeError(w, status, err.Error())
}

// pathParts 去掉路由前缀后的路径段。空串表示没有剩余段。
func pathParts(r *http.Request, prefix string) []string {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	if trimmed == "" {
		return nil
	}
	parts := strings.Split(trimmed, "/")
	for i, p := range parts {
		if unescaped, err := url.PathUnescape(p); err == nil {
			parts[i] = unescaped
		}
	}
	return parts
}

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

// pageParams 解析 offset/limit 查询参数，带缺省值和上限。
func pageParams(r *http.Request) (offset, limit int) {
	q := r.URL.Query()
	offset, _ = strconv.Atoi(q.Get("offset"))
	if offset < 0 {
		offset = 0
	}
	limit, _ = strconv.Atoi(q.Get("limit"))
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return offset, limit
}

// 请求里的日期既有接口调用方传的 RFC3339，也有人手填的巴西习惯写法。
var requestTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"02/01/2006 15:04",
	"02/01/2006",
}

func parseRequestTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	for _, layout := range requestTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time value %q", s)
}

// timeParam 可选的时间查询参数。没传返回 nil。
func timeParam(q url.Values, key string) (*time.Time, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return nil, nil
	}
	t, err := parseRequestTime(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return &t, nil
}
