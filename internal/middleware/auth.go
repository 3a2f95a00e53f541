package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/hertz-contrib/jwt"

	"EstouBem/pkg/errors"
	"EstouBem/pkg/response"
	"EstouBem/pkg/token"
)

var (
	authMiddleware *jwt.HertzJWTMiddleware
	// identityKey 用户 ID 在 RequestContext 中的键，与身份声明同名
	identityKey = "sub"
)

func initAuthMiddleware() error {
	// 使用 token 包中共享的配置
	shared := token.GetGenerator()
	if shared == nil {
		return fmt.Errorf("token generator not initialized, call token.Init() first")
	}
	identityKey = shared.IdentityKey

	mw, err := jwt.New(&jwt.HertzJWTMiddleware{
		Realm:            "Estou Bem API",
		Key:              shared.Key,
		SigningAlgorithm: "HS256",
		Timeout:          shared.Timeout,
		IdentityKey:      shared.IdentityKey,
		TimeFunc:         shared.TimeFunc,

		IdentityHandler: func(ctx context.Context, c *app.RequestContext) interface{} {
			uid, err := token.IdentityFromClaims(jwt.ExtractClaims(ctx, c), identityKey)
			if err != nil {
				return nil
			}
			return uid
		},

		// 没有身份声明的 token 视为无效
		Authorizator: func(data interface{}, ctx context.Context, c *app.RequestContext) bool {
			uid, ok := data.(string)
			return ok && uid != ""
		},

		Unauthorized: func(ctx context.Context, c *app.RequestContext, code int, message string) {
			if code == http.StatusForbidden {
				code = http.StatusUnauthorized
			}
			c.JSON(code, response.ErrorResponse{
				Error: response.ErrorDetail{
					Code:    errors.Unauthorized.Code,
					Message: message,
				},
			})
		},

		TokenLookup:   "header: Authorization",
		TokenHeadName: "Bearer",
	})
	if err != nil {
		return fmt.Errorf("failed to build auth middleware: %w", err)
	}

	authMiddleware = mw
	return nil
}

func AuthMiddleware() app.HandlerFunc {
	if authMiddleware == nil {
		panic("AuthMiddleware not initialized, call Init() first")
	}
	return authMiddleware.MiddlewareFunc()
}

// GetUserID 从请求上下文中获取身份服务的用户 ID
func GetUserID(ctx context.Context, c *app.RequestContext) (string, bool) {
	userID, exists := c.Get(identityKey)
	if !exists {
		return "", false
	}

	id, ok := userID.(string)
	if !ok || id == "" {
		return "", false
	}

	return id, true
}
