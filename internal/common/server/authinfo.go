package server

import (
	"context"
	"strings"
)

// AuthInfo 放进 ctx 的登录身份，gRPC 拦截器和 HTTP 中间件共用一份。
type AuthInfo struct {
	Subject string   // 用户 ID
	Roles   []string // 角色列表
}

type authContextKey struct{}

// ContextWithAuth 把身份写进 ctx。正常请求走 JWT 中间件，测试可以直接塞。
func ContextWithAuth(ctx context.Context, ai AuthInfo) context.Context {
	return context.WithValue(ctx, authContextKey{}, ai)
}

// AuthFromContext 取出 ctx 里的登录身份。没登录（或鉴权关着）时 ok 为 false。
func AuthFromContext(ctx context.Context) (AuthInfo, bool) {
	ai, ok := ctx.Value(authContextKey{}).(AuthInfo)
	return ai, ok
}

// hasAnyRole 两边角色有交集就算过。比较时忽略大小写和首尾空白。
func hasAnyRole(got, required []string) bool {
	if len(got) == 0 || len(required) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(got))
	for _, r := range got {
		r = strings.TrimSpace(strings.ToLower(r))
		if r == "" {
			continue
		}
		set[r] = struct{}{}
	}
	for _, r := range required {
		if _, ok := set[strings.TrimSpace(strings.ToLower(r))]; ok {
			return true
		}
	}
	return false
}

// isPublicMethod 免鉴权清单。gRPC 侧传 FullMethod，HTTP 侧传 URL path。
func isPublicMethod(public []string, method string) bool {
	if method == "" {
		return false
	}
	for _, m := range public {
		if strings.TrimSpace(m) == method {
			return true
		}
	}
	return false
}
