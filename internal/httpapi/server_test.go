package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/common/auth"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/common/config"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/common/server"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/sheetsync"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/syncstate"
)

func testConfig(authEnabled bool) *config.Config {
	cfg := &config.Config{}
	cfg.Server.Name = "fleet-api-test"
	cfg.Auth = config.AuthConfig{
		Enabled:       authEnabled,
		JWTSecret:     "test-secret",
		Issuer:        "abastech",
		Audience:      "fleet-api",
		TokenTTLHours: 1,
		PublicMethods: []string{"/api/auth/login", "/healthz"},
	}
	return cfg
}

type fakeRunner struct {
	sum *sheetsync.RunSummary
	err error
}

func (f *fakeRunner) RunOnce(ctx context.Context) (*sheetsync.RunSummary, error) {
	return f.sum, f.err
}

type fakeCounter map[syncstate.Status]int64

func (f fakeCounter) CountBySyncStatus(ctx context.Context) (map[syncstate.Status]int64, error) {
	return f, nil
}

type fakeImporter struct {
	kind     string
	filename string
	size     int
	res      *sheetsync.ImportResult
	err      error
}

func (f *fakeImporter) importCall(kind string, r io.Reader, filename string) (*sheetsync.ImportResult, error) {
	f.kind = kind
	f.filename = filename
	data, _ := io.ReadAll(r)
	f.size = len(data)
	return f.res, f.err
}

func (f *fakeImporter) ImportFuel(ctx context.Context, r io.Reader, filename string) (*sheetsync.ImportResult, error) {
	return f.importCall("fuel", r, filename)
}

func (f *fakeImporter) ImportReadings(ctx context.Context, r io.Reader, filename string) (*sheetsync.ImportResult, error) {
	return f.importCall("reading", r, filename)
}

func doRequest(t *testing.T, h http.Handler, method, path, token string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("响应不是 JSON: %v (body %q)", err, rec.Body.String())
	}
	return out
}

func TestHealthz(t *testing.T) {
	h := NewServer(testConfig(false), Deps{}, nil).Router()
	rec := doRequest(t, h, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d, 期望 200", rec.Code)
	}
	if body := decodeBody(t, rec); body["status"] != "ok" {
		t.Errorf("healthz body = %v", body)
	}
}

func TestLoginRejectsBadRequests(t *testing.T) {
	h := NewServer(testConfig(false), Deps{}, nil).Router()

	rec := doRequest(t, h, http.MethodGet, "/api/auth/login", "", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET login = %d, 期望 405", rec.Code)
	}

	rec = doRequest(t, h, http.MethodPost, "/api/auth/login", "", strings.NewReader(`{}`))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("空登录请求 = %d, 期望 400", rec.Code)
	}

	rec = doRequest(t, h, http.MethodPost, "/api/auth/login", "", strings.NewReader(`not-json`))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("坏 JSON = %d, 期望 400", rec.Code)
	}
}

func TestRouteDispatch(t *testing.T) {
	h := NewServer(testConfig(false), Deps{}, nil).Router()

	cases := []struct {
		method, path string
		want         int
	}{
		{http.MethodPatch, "/api/vehicles", http.StatusMethodNotAllowed},
		{http.MethodPatch, "/api/fuel-records", http.StatusMethodNotAllowed},
		{http.MethodPatch, "/api/readings", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/vehicles/", http.StatusNotFound},
		{http.MethodGet, "/api/vehicles/v1/unknown", http.StatusNotFound},
		{http.MethodGet, "/api/vehicles/v1/anomalies/extra", http.StatusNotFound},
		{http.MethodGet, "/api/readings/r1/correction", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/fuel-records/batch-delete", http.StatusMethodNotAllowed},
		{http.MethodPost, "/api/fuel-records/summary", http.StatusMethodNotAllowed},
		{http.MethodDelete, "/api/sync/run", http.StatusMethodNotAllowed},
		{http.MethodPost, "/api/sync/status", http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		rec := doRequest(t, h, tc.method, tc.path, "", nil)
		if rec.Code != tc.want {
			t.Errorf("%s %s = %d, 期望 %d", tc.method, tc.path, rec.Code, tc.want)
		}
	}
}

func TestVehicleAnomaliesValidatesMeter(t *testing.T) {
	h := NewServer(testConfig(false), Deps{}, nil).Router()

	rec := doRequest(t, h, http.MethodGet, "/api/vehicles/v1/anomalies", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("没带 meter = %d, 期望 400", rec.Code)
	}
	rec = doRequest(t, h, http.MethodGet, "/api/vehicles/v1/anomalies?meter=tacometro", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("未知 meter = %d, 期望 400", rec.Code)
	}
}

func TestSyncStatus(t *testing.T) {
	deps := Deps{
		FuelCounts:    fakeCounter{syncstate.StatusPending: 3, syncstate.StatusSynced: 40},
		ReadingCounts: fakeCounter{syncstate.StatusConflict: 1},
	}
	h := NewServer(testConfig(false), deps, nil).Router()

	rec := doRequest(t, h, http.MethodGet, "/api/sync/status", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("sync status = %d, 期望 200 (body %s)", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	fuelCounts, ok := body["fuel"].(map[string]any)
	if !ok {
		t.Fatalf("fuel 段缺失: %v", body)
	}
	if fuelCounts["pending"] != float64(3) || fuelCounts["synced"] != float64(40) {
		t.Errorf("fuel 计数 = %v", fuelCounts)
	}
	// 没有的状态也要补零
	if fuelCounts["conflict"] != float64(0) {
		t.Errorf("conflict 没补零: %v", fuelCounts)
	}
	readingCounts := body["readings"].(map[string]any)
	if readingCounts["conflict"] != float64(1) {
		t.Errorf("readings 计数 = %v", readingCounts)
	}
}

func TestSyncStatusNotConfigured(t *testing.T) {
	h := NewServer(testConfig(false), Deps{}, nil).Router()
	rec := doRequest(t, h, http.MethodGet, "/api/sync/status", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("未配置同步 = %d, 期望 503", rec.Code)
	}
}

func TestSyncRun(t *testing.T) {
	runner := &fakeRunner{sum: &sheetsync.RunSummary{RunID: "run-1"}}
	h := NewServer(testConfig(false), Deps{SyncRunner: runner}, nil).Router()

	rec := doRequest(t, h, http.MethodPost, "/api/sync/run", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("sync run = %d, 期望 200 (body %s)", rec.Code, rec.Body.String())
	}
	if body := decodeBody(t, rec); body["run_id"] != "run-1" {
		t.Errorf("run_id = %v", body["run_id"])
	}
}

func TestSyncRunAlreadyRunning(t *testing.T) {
	runner := &fakeRunner{err: sheetsync.ErrRunInProgress}
	h := NewServer(testConfig(false), Deps{SyncRunner: runner}, nil).Router()

	rec := doRequest(t, h, http.MethodPost, "/api/sync/run", "", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("并发触发 = %d, 期望 409", rec.Code)
	}
}

func buildWorkbookForm(t *testing.T, kind, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if kind != "" {
		if err := mw.WriteField("kind", kind); err != nil {
			t.Fatalf("写 kind 字段: %v", err)
		}
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("建文件字段: %v", err)
		}
		if _, err := fw.Write(content); err != nil {
			t.Fatalf("写文件内容: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("关 multipart: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestImportWorkbook(t *testing.T) {
	imp := &fakeImporter{res: &sheetsync.ImportResult{Imported: 7}}
	h := NewServer(testConfig(false), Deps{Importer: imp}, nil).Router()

	body, contentType := buildWorkbookForm(t, "fuel", "legado.xlsx", []byte("conteudo"))
	req := httptest.NewRequest(http.MethodPost, "/api/import/workbook", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("import = %d, 期望 200 (body %s)", rec.Code, rec.Body.String())
	}
	if imp.kind != "fuel" || imp.filename != "legado.xlsx" || imp.size != len("conteudo") {
		t.Errorf("导入调用记录 = %+v", imp)
	}
	if resp := decodeBody(t, rec); resp["imported"] != float64(7) {
		t.Errorf("imported = %v", resp["imported"])
	}
}

func TestImportWorkbookRejectsBadRequests(t *testing.T) {
	imp := &fakeImporter{res: &sheetsync.ImportResult{}}
	h := NewServer(testConfig(false), Deps{Importer: imp}, nil).Router()

	// kind 不认识
	body, contentType := buildWorkbookForm(t, "planilha", "x.xlsx", []byte("a"))
	req := httptest.NewRequest(http.MethodPost, "/api/import/workbook", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("未知 kind = %d, 期望 400", rec.Code)
	}

	// 没给文件
	body, contentType = buildWorkbookForm(t, "fuel", "", nil)
	req = httptest.NewRequest(http.MethodPost, "/api/import/workbook", body)
	req.Header.Set("Content-Type", contentType)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("没文件 = %d, 期望 400", rec.Code)
	}

	// 没配置导入器
	h = NewServer(testConfig(false), Deps{}, nil).Router()
	body, contentType = buildWorkbookForm(t, "fuel", "x.xlsx", []byte("a"))
	req = httptest.NewRequest(http.MethodPost, "/api/import/workbook", body)
	req.Header.Set("Content-Type", contentType)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("未配置导入 = %d, 期望 503", rec.Code)
	}
}

func issueToken(t *testing.T, cfg *config.Config, subject string, roles []string) string {
	t.Helper()
	token, _, err := auth.GenerateAccessToken(cfg.Auth, subject, roles, time.Hour)
	if err != nil {
		t.Fatalf("签 token: %v", err)
	}
	return token
}

func TestAuthGuards(t *testing.T) {
	cfg := testConfig(true)
	runner := &fakeRunner{sum: &sheetsync.RunSummary{RunID: "run-9"}}
	h := NewServer(cfg, Deps{SyncRunner: runner}, nil).Router()

	// 没带 token
	rec := doRequest(t, h, http.MethodGet, "/api/vehicles", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("无 token 访问 = %d, 期望 401", rec.Code)
	}

	// field 角色碰管理接口
	fieldToken := issueToken(t, cfg, "u-field", []string{"field"})
	rec = doRequest(t, h, http.MethodPatch, "/api/users", fieldToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("field 访问用户管理 = %d, 期望 403", rec.Code)
	}
	rec = doRequest(t, h, http.MethodPost, "/api/sync/run", fieldToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("field 触发对账 = %d, 期望 403", rec.Code)
	}

	// admin 过守卫后还要过方法检查
	adminToken := issueToken(t, cfg, "u-admin", []string{"admin"})
	rec = doRequest(t, h, http.MethodPatch, "/api/users", adminToken, nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("admin PATCH users = %d, 期望 405", rec.Code)
	}
	rec = doRequest(t, h, http.MethodPost, "/api/sync/run", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("admin 触发对账 = %d, 期望 200", rec.Code)
	}

	// desk 能用同步接口
	deskToken := issueToken(t, cfg, "u-desk", []string{"desk"})
	rec = doRequest(t, h, http.MethodPost, "/api/sync/run", deskToken, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("desk 触发对账 = %d, 期望 200", rec.Code)
	}

	// 公开路由不要 token
	rec = doRequest(t, h, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("healthz 带鉴权 = %d, 期望 200", rec.Code)
	}
}

func TestFieldRoleCannotListFuelRecords(t *testing.T) {
	cfg := testConfig(true)
	h := NewServer(cfg, Deps{}, nil).Router()

	fieldToken := issueToken(t, cfg, "u-field", []string{"field"})
	rec := doRequest(t, h, http.MethodGet, "/api/fuel-records", fieldToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("field 拉加油列表 = %d, 期望 403", rec.Code)
	}
	rec = doRequest(t, h, http.MethodGet, "/api/readings", fieldToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("field 拉读数列表 = %d, 期望 403", rec.Code)
	}
	// 建档前的参数校验在角色检查之后、服务调用之前
	rec = doRequest(t, h, http.MethodPost, "/api/fuel-records", fieldToken, strings.NewReader(`{}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("field 提交空加油记录 = %d, 期望 400", rec.Code)
	}
}

// newAuthProbe 把探针裹进 JWT 中间件，让它拿到和真实请求一样的上下文。
func newAuthProbe(cfg *config.Config, probe func(r *http.Request)) http.Handler {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		probe(r)
		w.WriteHeader(http.StatusOK)
	})
	return server.HTTPChain(inner, server.HTTPJWTAuth(cfg.Auth, nil))
}

func TestRequestOriginInference(t *testing.T) {
	cfg := testConfig(true)
	s := NewServer(cfg, Deps{}, nil)

	var got string
	h := newAuthProbe(cfg, func(r *http.Request) {
		got = s.requestOrigin(r, "")
	})

	rec := doRequest(t, h, http.MethodGet, "/probe", issueToken(t, cfg, "u1", []string{"field"}), nil)
	if rec.Code != http.StatusOK || got != "field" {
		t.Errorf("纯 field 角色 origin = %q (status %d), 期望 field", got, rec.Code)
	}

	rec = doRequest(t, h, http.MethodGet, "/probe", issueToken(t, cfg, "u2", []string{"field", "desk"}), nil)
	if rec.Code != http.StatusOK || got != "desk" {
		t.Errorf("field+desk 角色 origin = %q, 期望 desk", got)
	}

	if o := s.requestOrigin(httptest.NewRequest(http.MethodGet, "/probe", nil), "import"); o != "import" {
		t.Errorf("显式 origin 被覆盖: %q", o)
	}
}
