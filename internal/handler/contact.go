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

// GetContact 当前用户的紧急联系人
// GET /v1/contact
func GetContact(ctx context.Context, c *app.RequestContext) {
	userID, ok := middleware.GetUserID(ctx, c)
	if !ok {
		response.Error(ctx, c, errors.Unauthorized)
		return
	}

	contact, err := service.Contact().Get(ctx, userID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, contact)
}

// UpsertContact 保存紧急联系人，已有则覆盖
// PUT /v1/contact
func UpsertContact(ctx context.Context, c *app.RequestContext) {
	userID, ok := middleware.GetUserID(ctx, c)
	if !ok {
		response.Error(ctx, c, errors.Unauthorized)
		return
	}

	var req dto.UpsertContactRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	contact, err := service.Contact().Upsert(ctx, userID, req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, contact)
}

// DeleteContact 删除紧急联系人，删除后不再监控缺席
// DELETE /v1/contact
func DeleteContact(ctx context.Context, c *app.RequestContext) {
	userID, ok := middleware.GetUserID(ctx, c)
	if !ok {
		response.Error(ctx, c, errors.Unauthorized)
		return
	}

	if err := service.Contact().Delete(ctx, userID); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.NoContent(ctx, c)
}
