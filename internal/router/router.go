package router

import (
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/route"

	"EstouBem/internal/handler"
	"EstouBem/internal/middleware"
)

// Register 注册全部路由；extra 为额外的全局中间件（如 tracing），按顺序放在 recover 之后
func Register(r *route.Engine, extra ...app.HandlerFunc) {
	r.Use(middleware.RecoverMiddleware())
	r.Use(extra...)
	r.Use(middleware.CORSMiddleware())
	r.Use(middleware.HTTPMetricsMiddleware())

	r.GET("/healthz", handler.Health)

	v1 := r.Group("/v1", middleware.AuthMiddleware())

	// 打卡
	checkIns := v1.Group("/check-ins")
	{
		checkIns.GET("", handler.ListCheckIns)
		checkIns.GET("/today", handler.GetTodayCheckIn)
		checkIns.POST("/today", handler.CompleteTodayCheckIn)
		checkIns.GET("/history", handler.GetCheckInHistory)
	}

	// 紧急联系人，每个用户一个
	contact := v1.Group("/contact")
	{
		contact.GET("", handler.GetContact)
		contact.PUT("", handler.UpsertContact)
		contact.DELETE("", handler.DeleteContact)
	}

	users := v1.Group("/users")
	{
		users.GET("/me", handler.GetUserProfile)
		users.PUT("/me", handler.UpdateUserProfile)
	}
}
