package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/AutoBidHub/AutoBidHub/internal/auction"
	"github.com/AutoBidHub/AutoBidHub/internal/common/config"
	"github.com/AutoBidHub/AutoBidHub/internal/common/db"
	"github.com/AutoBidHub/AutoBidHub/internal/common/logger"
	"github.com/AutoBidHub/AutoBidHub/internal/common/server"
	"github.com/AutoBidHub/AutoBidHub/internal/common/tracing"
	"github.com/AutoBidHub/AutoBidHub/internal/vehicle"
	"github.com/gin-gonic/gin"
)

var (
	configPath      = flag.String("config", "configs/auction-service.json", "配置文件路径")
	consulConfigKey = flag.String("consul-config-key", "", "从 Consul KV 加载配置的 key（为空则读本地文件）")
	consulAddr      = flag.String("consul-addr", "localhost", "Consul 地址（配合 -consul-config-key）")
	consulPort      = flag.Int("consul-port", 8500, "Consul 端口（配合 -consul-config-key）")
)

func loadConfig() (*config.Config, error) {
	if *consulConfigKey != "" {
		return config.LoadConfigFromConsulKV(*consulAddr, *consulPort, *consulConfigKey)
	}
	return config.LoadConfig(*configPath)
}

func main() {
	flag.Parse()

	// 加载配置
	cfg, err := loadConfig()
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
	gdb, err := db.NewMySQL(
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Database,
		cfg.Database.MaxIdle,
		cfg.Database.MaxOpen,
	)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	if err := gdb.AutoMigrate(&vehicle.Vehicle{}, &auction.Auction{}, &auction.Bid{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	// 成交审计日志
	audit, err := auction.NewFileCompletionLogger(cfg.Auction.AuditLogPath)
	if err != nil {
		log.Fatalf("failed to open audit log: %v", err)
	}

	// 组装业务层
	vehicleRepo := vehicle.NewRepo(gdb)
	auctionRepo := auction.NewRepo(gdb)
	vehicleSvc := vehicle.NewService(vehicleRepo)
	auctionSvc := auction.NewService(gdb, auctionRepo, vehicleRepo, audit, log, nil)

	// 后台到期扫描，随服务退出停止
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sweeper := auction.NewSweeper(auctionSvc, cfg.Auction.SweepInterval(), cfg.Auction.SweepBackoff(), log)
	go sweeper.Run(ctx)

	// 启动统一的 HTTP 服务模板
	if err := server.RunHTTPServer(cfg, log, func(e *gin.Engine) error {
		auction.NewHandler(auctionSvc).RegisterRoutes(e)
		vehicle.NewHandler(vehicleSvc).RegisterRoutes(e)
		return nil
	}); err != nil {
		log.Fatalf("auction-service exited with error: %v", err)
	}
}
