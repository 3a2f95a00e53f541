package response

import (
	"context"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"

	"EstouBem/pkg/errors"
	"EstouBem/pkg/logger"

	"go.uber.org/zap"
)

// ErrorResponse 统一的错误响应格式
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Details map[string]interface{} `json:"details,omitempty"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
}

// SuccessResponse 统一的成功响应格式
type SuccessResponse struct {
	Data interface{}            `json:"data"`
	Meta map[string]interface{} `json:"meta,omitempty"`
}

func errorToHTTPStatus(code string) int {
	switch code {
	case errors.Unauthorized.Code:
		return http.StatusUnauthorized // 401
	case errors.InvalidRequest.Code, errors.InvalidUserID.Code, errors.ContactInvalid.Code:
		return http.StatusBadRequest // 400
	case errors.ContactNotFound.Code, errors.NoContactConfigured.Code:
		return http.StatusNotFound // 404
	case errors.CheckInAlreadyDone.Code, errors.MarkerConflict.Code:
		return http.StatusConflict // 409
	case errors.WriteError.Code:
		return http.StatusServiceUnavailable // 503
	case errors.DeliveryFailed.Code:
		return http.StatusBadGateway // 502
	default:
		return http.StatusInternalServerError // 500
	}
}

// resolve 从错误链中解析错误码，未知错误统一为 INTERNAL_ERROR 且不暴露内部信息
func resolve(err error) (code, message string) {
	if def, ok := errors.AsDefinition(err); ok {
		return def.Code, def.Message
	}
	return "INTERNAL_ERROR", "Internal server error"
}

// Error 返回错误响应
func Error(ctx context.Context, c *app.RequestContext, err error) {
	ErrorWithDetails(ctx, c, err, nil)
}

func ErrorWithDetails(ctx context.Context, c *app.RequestContext, err error, details map[string]interface{}) {
	code, message := resolve(err)
	statusCode := errorToHTTPStatus(code)

	if statusCode >= http.StatusInternalServerError {
		logger.Logger.Error("Request failed",
			zap.String("path", string(c.Path())),
			zap.String("code", code),
			zap.Error(err),
		)
	}

	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

func Success(ctx context.Context, c *app.RequestContext, data interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{
		Data: data,
	})
}

// Created 返回 201
func Created(ctx context.Context, c *app.RequestContext, data interface{}) {
	c.JSON(http.StatusCreated, SuccessResponse{
		Data: data,
	})
}

func SuccessWithMeta(ctx context.Context, c *app.RequestContext, data interface{}, meta map[string]interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{
		Data: data,
		Meta: meta,
	})
}

func BindError(ctx context.Context, c *app.RequestContext, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error: ErrorDetail{
			Code:    errors.InvalidRequest.Code,
			Message: err.Error(),
		},
	})
}

// NoContent 返回 204 No Content（用于 DELETE 等操作）
func NoContent(ctx context.Context, c *app.RequestContext) {
	c.Status(http.StatusNoContent)
}
