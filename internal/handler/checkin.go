package handler

import (
	"context"
	"strconv"
	"time"

	"github.com/cloudwego/hertz/pkg/app"

	"EstouBem/config"
	"EstouBem/internal/middleware"
	"EstouBem/internal/model/dto"
	"EstouBem/internal/service"
	"EstouBem/pkg/errors"
	"EstouBem/pkg/response"
)

// GetTodayCheckIn 当前打卡状态：今天是否已打卡、沉默时长、预计告警时间
// GET /v1/check-ins/today
func GetTodayCheckIn(ctx context.Context, c *app.RequestContext) {
	userID, ok := middleware.GetUserID(ctx, c)
	if !ok {
		response.Error(ctx, c, errors.Unauthorized)
		return
	}

	result, err := service.CheckIn().Status(ctx, userID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, result)
}

// CompleteTodayCheckIn 完成当日打卡
// POST /v1/check-ins/today
func CompleteTodayCheckIn(ctx context.Context, c *app.RequestContext) {
	userID, ok := middleware.GetUserID(ctx, c)
	if !ok {
		response.Error(ctx, c, errors.Unauthorized)
		return
	}

	result, err := service.CheckIn().CompleteToday(ctx, userID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Created(ctx, c, result)
}

// GetCheckInHistory 最近 N 天的打卡日历
// GET /v1/check-ins/history?days=30
func GetCheckInHistory(ctx context.Context, c *app.RequestContext) {
	userID, ok := middleware.GetUserID(ctx, c)
	if !ok {
		response.Error(ctx, c, errors.Unauthorized)
		return
	}

	var query dto.CheckInHistoryQuery
	if err := c.Bind(&query); err != nil {
		response.BindError(ctx, c, err)
		return
	}
	if query.Days < 0 {
		response.Error(ctx, c, errors.InvalidRequest)
		return
	}

	days, err := service.CheckIn().Calendar(ctx, userID, query.Days)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, days)
}

// ListCheckIns 原始打卡记录，最新在前
// GET /v1/check-ins?since=2025-03-01T00:00:00Z
func ListCheckIns(ctx context.Context, c *app.RequestContext) {
	userID, ok := middleware.GetUserID(ctx, c)
	if !ok {
		response.Error(ctx, c, errors.Unauthorized)
		return
	}

	var query dto.CheckInListQuery
	if err := c.Bind(&query); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	since := time.Now().UTC().AddDate(0, 0, -config.Cfg.HistoryDays)
	if query.Since != "" {
		parsed, err := time.Parse(time.RFC3339, query.Since)
		if err != nil {
			response.Error(ctx, c, errors.InvalidRequest)
			return
		}
		since = parsed
	}

	records, err := service.CheckIn().History(ctx, userID, since)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	items := make([]dto.CheckInItem, 0, len(records))
	for _, r := range records {
		items = append(items, dto.CheckInItem{
			ID:         strconv.FormatInt(r.ID, 10),
			OccurredAt: r.OccurredAt,
		})
	}
	response.Success(ctx, c, items)
}
