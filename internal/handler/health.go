package handler

import (
	"context"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
)

// Health 存活探针，不检查外部依赖
// GET /healthz
func Health(ctx context.Context, c *app.RequestContext) {
	c.JSON(http.StatusOK, utils.H{"status": "ok"})
}
