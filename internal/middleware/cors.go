package middleware

import (
	"context"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"

	"EstouBem/config"
)

// CORSMiddleware 打卡页面和 API 可能不同源，来源白名单取 CORS_ALLOWED_ORIGINS
func CORSMiddleware() app.HandlerFunc {
	return newCORS(config.Cfg.CORSAllowedOrigins)
}

// newCORS 白名单为空时回显任意来源（本地开发）
func newCORS(allowed []string) app.HandlerFunc {
	allowAll := len(allowed) == 0
	origins := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		origins[o] = struct{}{}
	}

	return func(ctx context.Context, c *app.RequestContext) {
		origin := string(c.Request.Header.Get("Origin"))
		preflight := string(c.Method()) == http.MethodOptions

		if origin == "" {
			c.Header("Access-Control-Allow-Origin", "*")
		} else {
			c.Header("Vary", "Origin")
			if _, ok := origins[origin]; !allowAll && !ok {
				// 不带 CORS 头，浏览器会拦截响应
				if preflight {
					c.AbortWithStatus(http.StatusForbidden)
					return
				}
				c.Next(ctx)
				return
			}
			c.Header("Access-Control-Allow-Origin", origin)
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Request-Id")
		c.Header("Access-Control-Max-Age", "86400")

		if preflight {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next(ctx)
	}
}
