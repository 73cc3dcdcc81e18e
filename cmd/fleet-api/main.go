package main

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/catalog"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/common/config"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/common/db"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/common/logger"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/common/server"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/common/tracing"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/fuel"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/httpapi"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/reading"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/sheetsync"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/user"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/vehicle"
)

const serviceName = "fleet-api"

var (
	configPath   = flag.String("config", "configs/fleet-api.json", "配置文件路径")
	consulConfig = flag.Bool("consul-config", false, "改从 Consul KV 读配置（key 为 config/<服务名>）")
	consulHost   = flag.String("consul-host", "localhost", "Consul 地址，配合 -consul-config")
	consulPort   = flag.Int("consul-port", 8500, "Consul 端口，配合 -consul-config")
)

func main() {
	flag.Parse()

	// 加载配置
	var (
		cfg *config.Config
		err error
	)
	if *consulConfig {
		cfg, err = config.LoadConfigFromConsulKV(*consulHost, *consulPort, config.DefaultKVKey(serviceName))
	} else {
		cfg, err = config.LoadConfig(*configPath)
	}
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output, cfg.Log.Path)
	if err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}

	// 初始化链路追踪
	tracer, closer, err := tracing.InitTracer(
		cfg.Server.Name,
		cfg.Jaeger.Endpoint,
		cfg.Jaeger.Sampler,
	)
	if err != nil {
		log.Warnf("failed to init tracer: %v", err)
	} else {
		defer closer.Close()
	}
	_ = tracer

	// 初始化数据库
	gormDB, err := db.NewMySQL(
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Database,
		cfg.Database.MaxIdle,
		cfg.Database.MaxOpen,
	)
	if err != nil {
		log.Fatalf("failed to init mysql: %v", err)
	}
	if err := gormDB.AutoMigrate(
		&vehicle.Vehicle{},
		&fuel.Record{},
		&reading.Reading{},
		&catalog.Supplier{},
		&catalog.Lubricant{},
		&user.User{},
		&sheetsync.ReconciliationReport{},
	); err != nil {
		log.Fatalf("failed to migrate mysql schema: %v", err)
	}

	// 组装业务层
	vehicleRepo := vehicle.NewRepo(gormDB)
	fuelRepo := fuel.NewRepo(gormDB)
	readingRepo := reading.NewRepo(gormDB)
	catalogRepo := catalog.NewRepo(gormDB)
	userRepo := user.NewRepo(gormDB)

	vehicles := vehicle.NewService(vehicleRepo, fuelRepo, readingRepo)
	fuels := fuel.NewService(fuelRepo, vehicles, cfg.Sync.ChunkSize, cfg.Sync.ChunkDelay())
	readings := reading.NewService(readingRepo, vehicles)
	catalogs := catalog.NewService(catalogRepo)
	users := user.NewService(userRepo, cfg.Auth)

	// 首次启动种管理员账号（已存在则跳过）
	seedCtx, cancelSeed := context.WithTimeout(context.Background(), 10*time.Second)
	if err := users.EnsureAdmin(seedCtx, cfg.Auth.AdminUsername, cfg.Auth.AdminPassword); err != nil {
		log.Warnf("failed to ensure admin user: %v", err)
	}
	cancelSeed()

	reports := sheetsync.NewReportRepo(gormDB)
	loader := &sheetsync.DirectoryLoader{
		Vehicles: vehicleRepo,
		Catalog:  catalogRepo,
		Users:    userRepo,
	}
	fuelDS := sheetsync.NewFuelDataset(fuelRepo, catalogs, cfg.Sheets.FuelTab)
	readingDS := sheetsync.NewReadingDataset(readingRepo, cfg.Sheets.ReadingTab)

	deps := httpapi.Deps{
		Vehicles:      vehicles,
		Fuel:          fuels,
		Readings:      readings,
		Catalog:       catalogs,
		Users:         users,
		SyncReports:   reports,
		Importer:      sheetsync.NewImporter(loader, fuelDS, readingDS, log),
		FuelCounts:    fuelRepo,
		ReadingCounts: readingRepo,
	}

	// 配了表格端点才挂手动对账入口，没配时 /api/sync/run 返回 503。
	// 定时对账由 sheet-sync 进程负责，这里只接手动触发。
	if strings.TrimSpace(cfg.Sheets.Endpoint) != "" {
		client := sheetsync.NewClient(cfg.Sheets, cfg.Sync, log)
		snaps := sheetsync.NewSnapshotter(cfg.Sync.SnapshotDir, cfg.Sync.SnapshotKeep, log)
		deps.SyncRunner = sheetsync.NewRunner(client, loader,
			[]sheetsync.Dataset{fuelDS, readingDS}, reports, snaps, cfg.Sync, log)
	}

	// 启动统一的 HTTP 服务模板（含 Consul 注册与优雅退出）
	api := httpapi.NewServer(cfg, deps, log)
	if err := server.RunHTTPServer(cfg, log, api.Router()); err != nil {
		log.Fatalf("fleet-api exited with error: %v", err)
	}
}
