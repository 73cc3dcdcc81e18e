package server

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/common/config"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/common/logger"
)

// GRPCRegisterFunc 用于注册业务 gRPC 服务（pb.RegisterXxxServer 等）。
type GRPCRegisterFunc func(s *grpc.Server) error

type RunGRPCOptions struct {
	EnableReflection bool
	ShutdownTimeout  time.Duration
	Auth             *config.AuthConfig
}

func defaultRunGRPCOptions() RunGRPCOptions {
	return RunGRPCOptions{
		EnableReflection: true,
		ShutdownTimeout:  5 * time.Second,
	}
}

// RunGRPCServer 统一的 gRPC 服务启动模板：
// - listener + server（带拦截器链）
// - health / reflection / 业务服务注册
// - Consul 注册（gRPC check）与优雅退出
//
// 阻塞到收到 SIGINT/SIGTERM 或 Serve 出错。
func RunGRPCServer(cfg *config.Config, log logger.Logger, register GRPCRegisterFunc, opts ...func(*RunGRPCOptions)) error {
	if cfg == nil {
		return fmt.Errorf("cfg is nil")
	}
	if log == nil {
		return fmt.Errorf("log is nil")
	}

	o := defaultRunGRPCOptions()
	for _, apply := range opts {
		if apply != nil {
			apply(&o)
		}
	}

	lis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	// 拦截器链按顺序执行，recovery 必须最外层
	chain := []grpc.UnaryServerInterceptor{
		UnaryRecoveryInterceptor(log),
		UnaryTracingInterceptor(cfg.Server.Name),
		UnaryAccessLogInterceptor(log),
	}
	if o.Auth != nil && o.Auth.Enabled {
		chain = append(chain,
			UnaryJWTAuthInterceptor(*o.Auth, log),
			UnaryRBACInterceptor(*o.Auth),
		)
	}

	s := grpc.NewServer(grpc.UnaryInterceptor(UnaryChain(chain...)))

	// 健康检查给 Consul 的 GRPC check 探测
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(s, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	if o.EnableReflection {
		reflection.Register(s)
	}

	if register != nil {
		if err := register(s); err != nil {
			return fmt.Errorf("failed to register grpc services: %w", err)
		}
	}

	deregister := registerConsul(cfg, log, cfg.Server.GRPCPort, false)
	defer deregister()

	log.Infof("%s starting on %s:%d", cfg.Server.Name, cfg.Server.Host, cfg.Server.GRPCPort)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.Serve(lis)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Infof("received signal %v, shutting down...", sig)
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("grpc serve failed: %w", err)
		}
		return nil
	}

	// 优雅关闭，超时就硬停
	ctx, cancel := context.WithTimeout(context.Background(), o.ShutdownTimeout)
	defer cancel()

	stopped := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(stopped)
	}()

	select {
	case <-ctx.Done():
		log.Warn("grpc shutdown timeout, forcing stop...")
		s.Stop()
	case <-stopped:
		log.Info("grpc server stopped gracefully")
	}

	return nil
}

// WithShutdownTimeout 修改优雅退出等待时间。
func WithShutdownTimeout(d time.Duration) func(*RunGRPCOptions) {
	return func(o *RunGRPCOptions) {
		if d > 0 {
			o.ShutdownTimeout = d
		}
	}
}

// WithReflection 控制是否启用 gRPC reflection。
func WithReflection(enable bool) func(*RunGRPCOptions) {
	return func(o *RunGRPCOptions) {
		o.EnableReflection = enable
	}
}

// WithAuth 在拦截器链末尾追加 JWT 鉴权 + RBAC。
// 健康检查方法要放进 cfg.PublicMethods，否则 Consul 探测会被拦下。
func WithAuth(cfg config.AuthConfig) func(*RunGRPCOptions) {
	return func(o *RunGRPCOptions) {
		o.Auth = &cfg
	}
}
