package server

import (
	"context"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/common/auth"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/common/config"
)

func TestUnaryJWTAuthInterceptorAndRBAC(t *testing.T) {
	authCfg := config.AuthConfig{
		Enabled:       true,
		JWTSecret:     "test-secret",
		Issuer:        "abastech",
		Audience:      "fleet-api",
		PublicMethods: []string{"/grpc.health.v1.Health/Check"},
		RBAC: map[string][]string{
			"/x.y.Service/AdminOnly": {"admin"},
		},
	}

	chain := UnaryChain(UnaryJWTAuthInterceptor(authCfg, nil), UnaryRBACInterceptor(authCfg))
	info := &grpc.UnaryServerInfo{FullMethod: "/x.y.Service/AdminOnly"}

	adminToken, _, err := auth.GenerateAccessToken(authCfg, "u-1", []string{"field", "admin"}, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer "+adminToken))
	_, err = chain(ctx, nil, info, func(ctx context.Context, req any) (any, error) {
		ai, ok := AuthFromContext(ctx)
		if !ok {
			t.Fatalf("missing auth info in ctx")
		}
		if ai.Subject != "u-1" {
			t.Fatalf("subject mismatch: %s", ai.Subject)
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("expected allow, got err=%v", err)
	}

	// 只有 field 角色，应被 RBAC 拒绝
	fieldToken, _, err := auth.GenerateAccessToken(authCfg, "u-2", []string{"field"}, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	ctx2 := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer "+fieldToken))
	_, err = chain(ctx2, nil, info, func(ctx context.Context, req any) (any, error) {
		return "ok", nil
	})
	if err == nil {
		t.Fatalf("expected permission denied, got nil")
	}

	// 健康检查在免鉴权清单里，不带 token 也放行
	health := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	_, err = chain(context.Background(), nil, health, func(ctx context.Context, req any) (any, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("health check should bypass auth, got err=%v", err)
	}
}
