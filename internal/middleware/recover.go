package middleware

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"EstouBem/config"
	"EstouBem/pkg/errors"
	"EstouBem/pkg/logger"
	"EstouBem/pkg/response"
)

// RecoverConfig recover 中间件配置
type RecoverConfig struct {
	// 是否启用堆栈追踪
	EnableStackTrace bool
	// 生产环境是否返回详细错误
	ExposeDetailsInProduction bool
	// 是否在 span 中记录异常
	RecordInSpan bool
	IsProduction bool
}

func NewRecoverConfig() RecoverConfig {
	return RecoverConfig{
		EnableStackTrace: true,
		RecordInSpan:     true,
		IsProduction:     config.Cfg.IsProduction(),
	}
}

// RecoverMiddleware 创建 recover 中间件
func RecoverMiddleware() app.HandlerFunc {
	return RecoverMiddlewareWithConfig(NewRecoverConfig())
}

func RecoverMiddlewareWithConfig(cfg RecoverConfig) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		defer func() {
			if err := recover(); err != nil {
				handlePanic(ctx, c, err, cfg)
			}
		}()

		c.Next(ctx)
	}
}

func handlePanic(ctx context.Context, c *app.RequestContext, err interface{}, cfg RecoverConfig) {
	var stack string
	if cfg.EnableStackTrace {
		stack = getStackTrace()
	}

	fields := []zap.Field{
		zap.String("panic", fmt.Sprintf("%v", err)),
		zap.String("path", string(c.Path())),
		zap.String("method", string(c.Method())),
		zap.String("client_ip", c.ClientIP()),
		zap.String("request_id", string(c.GetHeader("X-Request-Id"))),
	}
	if userID, ok := GetUserID(ctx, c); ok {
		fields = append(fields, zap.String("user_id", userID))
	}
	if stack != "" {
		fields = append(fields, zap.String("stack", stack))
	}
	logger.Logger.Error("[PANIC RECOVERED]", fields...)

	if cfg.RecordInSpan {
		span := trace.SpanFromContext(ctx)
		span.RecordError(fmt.Errorf("panic: %v", err))
		span.SetStatus(codes.Error, "panic recovered")
	}

	errDef := errors.Definition{Code: "INTERNAL_ERROR", Message: "Internal server error"}
	if cfg.IsProduction && !cfg.ExposeDetailsInProduction {
		c.Abort()
		response.Error(ctx, c, errDef)
		return
	}

	details := map[string]interface{}{
		"panic":     fmt.Sprintf("%v", err),
		"timestamp": time.Now().Format(time.RFC3339),
	}
	if stack != "" {
		details["stack"] = stack
	}
	c.Abort()
	response.ErrorWithDetails(ctx, c, errDef, details)
}

// getStackTrace 当前 goroutine 的调用栈，跳过 runtime 帧
func getStackTrace() string {
	var sb strings.Builder
	sb.WriteString("goroutine panic:\n")

	for i := 3; ; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		if strings.Contains(file, "/runtime/") {
			continue
		}
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}
		fmt.Fprintf(&sb, "  %s:%d\n    %s\n", file, line, fn.Name())
	}

	return sb.String()
}
