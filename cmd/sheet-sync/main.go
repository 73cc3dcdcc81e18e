package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"google.golang.org/grpc"

	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/catalog"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/common/config"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/common/db"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/common/logger"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/common/server"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/common/tracing"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/fuel"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/reading"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/sheetsync"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/user"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/vehicle"
)

const serviceName = "sheet-sync"

var (
	configPath   = flag.String("config", "configs/sheet-sync.json", "配置文件路径")
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

	// 初始化日志。对账 worker 在 debug 级别会逐行打日志，用 zap。
	log, err := logger.NewZapLogger(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output, cfg.Log.Path)
	if err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}

	if strings.TrimSpace(cfg.Sheets.Endpoint) == "" {
		log.Fatalf("sheets endpoint is not configured, nothing to sync against")
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

	// 初始化数据库。两个进程都跑 AutoMigrate，谁先起来谁建表。
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

	// 组装对账链路
	vehicleRepo := vehicle.NewRepo(gormDB)
	fuelRepo := fuel.NewRepo(gormDB)
	readingRepo := reading.NewRepo(gormDB)
	catalogRepo := catalog.NewRepo(gormDB)
	userRepo := user.NewRepo(gormDB)
	catalogs := catalog.NewService(catalogRepo)

	loader := &sheetsync.DirectoryLoader{
		Vehicles: vehicleRepo,
		Catalog:  catalogRepo,
		Users:    userRepo,
	}
	fuelDS := sheetsync.NewFuelDataset(fuelRepo, catalogs, cfg.Sheets.FuelTab)
	readingDS := sheetsync.NewReadingDataset(readingRepo, cfg.Sheets.ReadingTab)

	client := sheetsync.NewClient(cfg.Sheets, cfg.Sync, log)
	reports := sheetsync.NewReportRepo(gormDB)
	snaps := sheetsync.NewSnapshotter(cfg.Sync.SnapshotDir, cfg.Sync.SnapshotKeep, log)
	runner := sheetsync.NewRunner(client, loader,
		[]sheetsync.Dataset{fuelDS, readingDS}, reports, snaps, cfg.Sync, log)

	// 定时对账循环
	ctx, cancel := context.WithCancel(context.Background())
	worker := sheetsync.NewWorker(runner, cfg.Sync.Interval(), log)
	go worker.Run(ctx)

	// gRPC 只承载健康检查（Consul gRPC check），没有业务接口
	if err := server.RunGRPCServer(cfg, log, func(s *grpc.Server) error {
		return nil
	}); err != nil {
		cancel()
		log.Fatalf("sheet-sync exited with error: %v", err)
	}
	cancel()
}
