package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"EstouBem/internal/middleware"
	"EstouBem/internal/model/dto"
	"EstouBem/internal/service"
	"EstouBem/pkg/errors"
	"EstouBem/pkg/response"
)

// GetUserProfile 获取用户资料，首次访问时创建
// GET /v1/users/me
func GetUserProfile(ctx context.Context, c *app.RequestContext) {
	userID, ok := middleware.GetUserID(ctx, c)
	if !ok {
		response.Error(ctx, c, errors.Unauthorized)
		return
	}

	profile, err := service.User().Profile(ctx, userID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, profile)
}

// UpdateUserProfile 更新告警中使用的显示名
// PUT /v1/users/me
func UpdateUserProfile(ctx context.Context, c *app.RequestContext) {
	userID, ok := middleware.GetUserID(ctx, c)
	if !ok {
		response.Error(ctx, c, errors.Unauthorized)
		return
	}

	var req dto.UpdateProfileRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	profile, err := service.User().UpdateProfile(ctx, userID, req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, profile)
}
