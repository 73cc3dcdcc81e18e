package httpapi

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/catalog"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/common/config"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/common/logger"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/common/middleware"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/common/server"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/fuel"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/reading"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/sheetsync"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/syncstate"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/user"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/vehicle"
)

// SyncRunner 手动触发一轮表格对账。
type SyncRunner interface {
	RunOnce(ctx context.Context) (*sheetsync.RunSummary, error)
}

// SyncCounter 按同步状态统计记录数。
type SyncCounter interface {
	CountBySyncStatus(ctx context.Context) (map[syncstate.Status]int64, error)
}

// WorkbookImporter 解析上传的历史工作簿并批量建档。
type WorkbookImporter interface {
	ImportFuel(ctx context.Context, r io.Reader, filename string) (*sheetsync.ImportResult, error)
	ImportReadings(ctx context.Context, r io.Reader, filename string) (*sheetsync.ImportResult, error)
}

// Deps 接口层的业务依赖。
// Sync 开头的字段允许为空：没配表格同步的部署照样能跑其余接口。
type Deps struct {
	Vehicles *vehicle.Service
	Fuel     *fuel.Service
	Readings *reading.Service
	Catalog  *catalog.Service
	Users    *user.Service

	SyncRunner    SyncRunner
	SyncReports   *sheetsync.ReportRepo
	Importer      WorkbookImporter
	FuelCounts    SyncCounter
	ReadingCounts SyncCounter
}

// Server REST 接口层。
type Server struct {
	cfg  *config.Config
	deps Deps
	log  logger.Logger
}

// NewServer 创建接口层。log 为 nil 时用空日志。
func NewServer(cfg *config.Config, deps Deps, log logger.Logger) *Server {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Server{cfg: cfg, deps: deps, log: log}
}

// Router 组装全部路由和中间件。
//
// 集合路由挂精确路径，带 {id} 的路由挂 `/.../` 前缀、在 handler 里
// 自己拆路径段分派。方法不区分角色的路由用 guard 做路由级 RBAC，
// 同一路由上各方法角色要求不同的（如 GET 列表 / POST 新建）在
// handler 里用 allow 查。
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/healthz", http.HandlerFunc(s.healthz))

	// 登录在免鉴权清单里，单独挂个滑动窗口限流防爆破
	loginLimit := server.HTTPRateLimit(middleware.NewSlidingWindow(time.Minute, 30))
	mux.Handle("/api/auth/login", loginLimit(http.HandlerFunc(s.loginHandler)))
	mux.Handle("/api/auth/profile", http.HandlerFunc(s.profileHandler))
	mux.Handle("/api/auth/password", http.HandlerFunc(s.changePasswordHandler))

	mux.Handle("/api/vehicles", http.HandlerFunc(s.vehiclesHandler))
	mux.Handle("/api/vehicles/", http.HandlerFunc(s.vehicleByIDHandler))

	mux.Handle("/api/fuel-records", http.HandlerFunc(s.fuelRecordsHandler))
	mux.Handle("/api/fuel-records/", http.HandlerFunc(s.fuelRecordSubHandler))

	mux.Handle("/api/readings", http.HandlerFunc(s.readingsHandler))
	mux.Handle("/api/readings/", http.HandlerFunc(s.readingByIDHandler))

	mux.Handle("/api/suppliers", http.HandlerFunc(s.suppliersHandler))
	mux.Handle("/api/suppliers/", http.HandlerFunc(s.supplierByIDHandler))
	mux.Handle("/api/lubricants", http.HandlerFunc(s.lubricantsHandler))
	mux.Handle("/api/lubricants/", http.HandlerFunc(s.lubricantByIDHandler))

	mux.Handle("/api/users", s.guard(user.RoleAdmin)(http.HandlerFunc(s.usersHandler)))
	mux.Handle("/api/users/", s.guard(user.RoleAdmin)(http.HandlerFunc(s.userByIDHandler)))

	syncGuard := s.guard(user.RoleAdmin, user.RoleDesk)
	mux.Handle("/api/sync/status", syncGuard(http.HandlerFunc(s.syncStatusHandler)))
	mux.Handle("/api/sync/run", syncGuard(http.HandlerFunc(s.syncRunHandler)))
	mux.Handle("/api/sync/reports", syncGuard(http.HandlerFunc(s.syncReportsHandler)))
	mux.Handle("/api/import/workbook", syncGuard(http.HandlerFunc(s.importWorkbookHandler)))

	return server.HTTPChain(
		mux,
		server.HTTPRecovery(s.log),
		server.HTTPAccessLog(s.log),
		server.HTTPTracing(s.cfg.Server.Name),
		server.HTTPJWTAuth(s.cfg.Auth, s.log),
	)
}

// guard 路由级 RBAC。鉴权关掉的环境（本地开发）不设防。
func (s *Server) guard(roles ...string) server.HTTPMiddleware {
	if !s.cfg.Auth.Enabled {
		return func(next http.Handler) http.Handler { return next }
	}
	return server.RequireRoles(roles...)
}

// allow 方法级 RBAC：角色不满足时写好响应并返回 false。
func (s *Server) allow(w http.ResponseWriter, r *http.Request, roles ...string) bool {
	if !s.cfg.Auth.Enabled {
		return true
	}
	ai, ok := server.AuthFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing auth context")
		return false
	}
	for _, have := range ai.Roles {
		for _, want := range roles {
			if have == want {
				return true
			}
		}
	}
	writeError(w, http.StatusForbidden, "permission denied")
	return false
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
