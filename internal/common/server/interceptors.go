package server

import (
	"context"
	"runtime/debug"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/common/auth"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/common/config"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/common/logger"
)

// UnaryChain 把多个 unary 拦截器按传入顺序串成一个，第一个在最外层。
func UnaryChain(interceptors ...grpc.UnaryServerInterceptor) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		h := handler
		for i := len(interceptors) - 1; i >= 0; i-- {
			ic := interceptors[i]
			if ic == nil {
				continue
			}
			next := h
			h = func(c context.Context, r any) (any, error) {
				return ic(c, r, info, next)
			}
		}
		return h(ctx, req)
	}
}

// UnaryRecoveryInterceptor 兜住 handler 里的 panic，记录栈后转成 Internal。
func UnaryRecoveryInterceptor(log logger.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				if log != nil {
					log.Errorf("panic in grpc %s: %v\n%s", info.FullMethod, r, debug.Stack())
				}
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}

// UnaryAccessLogInterceptor 按请求记录耗时和结果。
// 健康检查 Consul 每隔几秒就打一次，降到 Debug，不然日志里全是它。
func UnaryAccessLogInterceptor(log logger.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if log == nil {
			return resp, err
		}

		fields := map[string]interface{}{
			"method": info.FullMethod,
			"cost":   time.Since(start).String(),
		}
		switch {
		case err != nil:
			fields["error"] = err.Error()
			log.WithFields(fields).Warn("grpc request failed")
		case isHealthMethod(info.FullMethod):
			log.WithFields(fields).Debug("grpc request ok")
		default:
			log.WithFields(fields).Info("grpc request ok")
		}
		return resp, err
	}
}

func isHealthMethod(fullMethod string) bool {
	return strings.HasPrefix(fullMethod, "/grpc.health.v1.Health/")
}

// UnaryTracingInterceptor 从 metadata 接上游的 trace，开 server span 放进 ctx，
// 业务侧再用 opentracing.StartSpanFromContext 往下挂子 span。
func UnaryTracingInterceptor(serviceName string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		tracer := opentracing.GlobalTracer()

		opts := []opentracing.StartSpanOption{ext.SpanKindRPCServer}
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if parent, err := tracer.Extract(opentracing.TextMap, metadataTextMapCarrier(md)); err == nil {
				opts = append(opts, opentracing.ChildOf(parent))
			}
		}

		span := tracer.StartSpan(strings.TrimPrefix(info.FullMethod, "/"), opts...)
		defer span.Finish()

		ext.Component.Set(span, "grpc")
		if serviceName != "" {
			span.SetTag("service", serviceName)
		}
		return handler(opentracing.ContextWithSpan(ctx, span), req)
	}
}

// UnaryJWTAuthInterceptor 从 metadata 取 `authorization: Bearer <token>`，
// 验签通过后把 AuthInfo 写进 ctx。校验逻辑与 HTTP 侧共用 auth.ParseAccessToken。
func UnaryJWTAuthInterceptor(cfg config.AuthConfig, log logger.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !cfg.Enabled || isPublicMethod(cfg.PublicMethods, info.FullMethod) {
			return handler(ctx, req)
		}
		if strings.TrimSpace(cfg.JWTSecret) == "" {
			if log != nil {
				log.Warn("auth enabled but jwt_secret is empty")
			}
			return nil, status.Error(codes.Unauthenticated, "auth not configured")
		}

		tokenStr := bearerToken(ctx)
		if tokenStr == "" {
			return nil, status.Error(codes.Unauthenticated, "missing authorization")
		}
		claims, err := auth.ParseAccessToken(cfg, tokenStr)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}

		ctx = ContextWithAuth(ctx, AuthInfo{Subject: claims.Subject, Roles: claims.Roles})
		return handler(ctx, req)
	}
}

func bearerToken(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	raw := ""
	if vs := md.Get("authorization"); len(vs) > 0 {
		raw = strings.TrimSpace(vs[0])
	}
	if strings.HasPrefix(strings.ToLower(raw), "bearer ") {
		raw = strings.TrimSpace(raw[len("bearer "):])
	}
	return raw
}

// UnaryRBACInterceptor 按 method 查 cfg.RBAC 要求的角色，有交集才放行。
// 没配置角色要求的 method 只要求登录过（JWT 拦截器在前面），不限权。
func UnaryRBACInterceptor(cfg config.AuthConfig) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !cfg.Enabled || isPublicMethod(cfg.PublicMethods, info.FullMethod) {
			return handler(ctx, req)
		}
		required := cfg.RBAC[info.FullMethod]
		if len(required) == 0 {
			return handler(ctx, req)
		}

		ai, ok := AuthFromContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing auth context")
		}
		if !hasAnyRole(ai.Roles, required) {
			return nil, status.Error(codes.PermissionDenied, "permission denied")
		}
		return handler(ctx, req)
	}
}

// metadataTextMapCarrier 让 gRPC metadata 适配 OpenTracing 的 TextMap 读写。
type metadataTextMapCarrier metadata.MD

func (c metadataTextMapCarrier) ForeachKey(handler func(key, val string) error) error {
	for k, vs := range metadata.MD(c) {
		for _, v := range vs {
			if err := handler(k, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c metadataTextMapCarrier) Set(key, val string) {
	metadata.MD(c).Set(key, val)
}
