package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/fuel"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/reading"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/sheetsync"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/user"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/vehicle"
)

func TestErrStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", gorm.ErrRecordNotFound, http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("load vehicle: %w", gorm.ErrRecordNotFound), http.StatusNotFound},
		{"bad credentials", user.ErrInvalidCredentials, http.StatusUnauthorized},
		{"disabled user", user.ErrUserDisabled, http.StatusUnauthorized},
		{"username taken", user.ErrUsernameTaken, http.StatusConflict},
		{"vehicle in use", vehicle.ErrVehicleInUse, http.StatusConflict},
		{"run in progress", sheetsync.ErrRunInProgress, http.StatusConflict},
		{"fuel on retired vehicle", fuel.ErrVehicleRetired, http.StatusUnprocessableEntity},
		{"reading on retired vehicle", reading.ErrVehicleRetired, http.StatusUnprocessableEntity},
		{"meter mismatch", reading.ErrMeterMismatch, http.StatusUnprocessableEntity},
		{"anything else", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := errStatus(tc.err); got != tc.want {
				t.Fatalf("errStatus(%v) = %d, 期望 %d", tc.err, got, tc.want)
			}
		})
	}
}

func TestParseRequestTime(t *testing.T) {
	good := map[string]time.Time{
		"2026-01-10T14:30:00Z": time.Date(2026, 1, 10, 14, 30, 0, 0, time.UTC),
		"2026-01-10":           time.Date(2026, 1, 10, 0, 0, 0, 0, time.Local),
		"10/01/2026":           time.Date(2026, 1, 10, 0, 0, 0, 0, time.Local),
		"10/01/2026 14:30":     time.Date(2026, 1, 10, 14, 30, 0, 0, time.Local),
		" 10/01/2026 ":         time.Date(2026, 1, 10, 0, 0, 0, 0, time.Local),
	}
	for in, want := range good {
		got, err := parseRequestTime(in)
		if err != nil {
			t.Errorf("parseRequestTime(%q): %v", in, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("parseRequestTime(%q) = %v, 期望 %v", in, got, want)
		}
	}

	for _, in := range []string{"", "   ", "hoje", "2026/01/10", "10-01-2026"} {
		if _, err := parseRequestTime(in); err == nil {
			t.Errorf("parseRequestTime(%q) 应该报错", in)
		}
	}
}

func TestPageParams(t *testing.T) {
	cases := []struct {
		query      string
		wantOffset int
		wantLimit  int
	}{
		{"", 0, 50},
		{"offset=20&limit=100", 20, 100},
		{"offset=-5", 0, 50},
		{"limit=0", 0, 50},
		{"limit=99999", 0, 500},
		{"offset=abc&limit=xyz", 0, 50},
	}
	for _, tc := range cases {
		r := httptest.NewRequest(http.MethodGet, "/api/vehicles?"+tc.query, nil)
		offset, limit := pageParams(r)
		if offset != tc.wantOffset || limit != tc.wantLimit {
			t.Errorf("pageParams(%q) = (%d, %d), 期望 (%d, %d)",
				tc.query, offset, limit, tc.wantOffset, tc.wantLimit)
		}
	}
}

func TestPathParts(t *testing.T) {
	cases := []struct {
		path string
		want []string
	}{
		{"/api/vehicles/abc", []string{"abc"}},
		{"/api/vehicles/abc/", []string{"abc"}},
		{"/api/vehicles/abc/anomalies", []string{"abc", "anomalies"}},
		{"/api/vehicles/", nil},
		{"/api/vehicles/a%20b", []string{"a b"}},
	}
	for _, tc := range cases {
		r := httptest.NewRequest(http.MethodGet, tc.path, nil)
		got := pathParts(r, "/api/vehicles/")
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("pathParts(%q) = %v, 期望 %v", tc.path, got, tc.want)
		}
	}
}
