package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"EstouBem/config"
	"EstouBem/internal/model"
	"EstouBem/internal/model/dto"
	"EstouBem/internal/repository"
	pkgerrors "EstouBem/pkg/errors"
	"EstouBem/pkg/logger"
	"EstouBem/pkg/metrics"
	"EstouBem/utils"
)

const maxCalendarDays = 366

type CheckInOptions struct {
	Threshold   time.Duration
	Location    *time.Location
	HistoryDays int
	Now         func() time.Time
	NextID      func() (int64, error)
}

// CheckInService 打卡账本：只追加，任何写失败都不留下部分状态
type CheckInService struct {
	store       repository.Store
	threshold   time.Duration
	loc         *time.Location
	historyDays int
	now         func() time.Time
	nextID      func() (int64, error)
}

var (
	checkInService *CheckInService
	checkInOnce    sync.Once
)

func CheckIn() *CheckInService {
	checkInOnce.Do(func() {
		checkInService = NewCheckInService(defaultStore(), CheckInOptions{
			Threshold:   config.Cfg.AbsenceThreshold,
			Location:    config.Cfg.Location(),
			HistoryDays: config.Cfg.HistoryDays,
		})
	})

	return checkInService
}

func NewCheckInService(store repository.Store, opts CheckInOptions) *CheckInService {
	if opts.Threshold <= 0 {
		opts.Threshold = 48 * time.Hour
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.HistoryDays <= 0 {
		opts.HistoryDays = 30
	}
	if opts.Now == nil {
		opts.Now = nowUTC
	}
	if opts.NextID == nil {
		opts.NextID = defaultNextID
	}

	return &CheckInService{
		store:       store,
		threshold:   opts.Threshold,
		loc:         opts.Location,
		historyDays: opts.HistoryDays,
		now:         opts.Now,
		nextID:      opts.NextID,
	}
}

// Record 追加一条打卡事件
func (s *CheckInService) Record(ctx context.Context, userID string, at time.Time) (*model.CheckIn, error) {
	return s.record(ctx, userID, at, nil)
}

// record dailyKey 非空时由存储层保证同一天只有一条
func (s *CheckInService) record(ctx context.Context, userID string, at time.Time, dailyKey *string) (*model.CheckIn, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, pkgerrors.InvalidUserID
	}

	if _, err := s.store.EnsureUser(ctx, userID, s.now()); err != nil {
		logger.Logger.Error("Failed to ensure user before check-in", zap.String("user_id", userID), zap.Error(err))
		return nil, pkgerrors.Wrap(pkgerrors.WriteError, err)
	}

	id, err := s.nextID()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.WriteError, err)
	}

	checkIn := &model.CheckIn{
		ID:         id,
		UserID:     userID,
		OccurredAt: at.UTC(),
		DailyKey:   dailyKey,
		CreatedAt:  s.now(),
	}
	if err := s.store.CreateCheckIn(ctx, checkIn); err != nil {
		if errors.Is(err, repository.ErrDuplicateCheckIn) {
			return nil, pkgerrors.CheckInAlreadyDone
		}
		logger.Logger.Error("Failed to append check-in",
			zap.String("user_id", userID),
			zap.Time("occurred_at", checkIn.OccurredAt),
			zap.Error(err),
		)
		return nil, pkgerrors.Wrap(pkgerrors.WriteError, err)
	}

	metrics.RecordCheckIn(ctx)
	logger.Logger.Info("Check-in recorded",
		zap.String("user_id", userID),
		zap.Int64("check_in_id", checkIn.ID),
		zap.Time("occurred_at", checkIn.OccurredAt),
	)

	return checkIn, nil
}

// LastCheckIn 没有打卡记录时 ok 为 false
func (s *CheckInService) LastCheckIn(ctx context.Context, userID string) (time.Time, bool, error) {
	last, err := s.store.LastCheckIn(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to load last check-in: %w", err)
	}
	return last.OccurredAt, true, nil
}

// History 返回 since 之后的打卡，最近的在前
func (s *CheckInService) History(ctx context.Context, userID string, since time.Time) ([]model.CheckIn, error) {
	items, err := s.store.ListCheckIns(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list check-ins: %w", err)
	}
	return items, nil
}

// CompleteToday 页面上的"我很好"按钮，按展示时区每天只接受一次
func (s *CheckInService) CompleteToday(ctx context.Context, userID string) (*dto.CompleteCheckInResponse, error) {
	now := s.now()

	today := utils.DateKey(now, s.loc)

	last, ok, err := s.LastCheckIn(ctx, userID)
	if err != nil {
		return nil, err
	}
	if ok && utils.DateKey(last, s.loc) == today {
		return nil, pkgerrors.CheckInAlreadyDone
	}

	// 并发请求都可能通过上面的检查，由 (user_id, daily_key) 唯一约束兜底
	checkIn, err := s.record(ctx, userID, now, &today)
	if err != nil {
		return nil, err
	}

	return &dto.CompleteCheckInResponse{
		ID:          strconv.FormatInt(checkIn.ID, 10),
		CompletedAt: checkIn.OccurredAt,
		Date:        utils.DateKey(checkIn.OccurredAt, s.loc),
		NextAlertAt: checkIn.OccurredAt.Add(s.threshold),
	}, nil
}

// Calendar 最近 days 天每天是否打卡，今天在前
func (s *CheckInService) Calendar(ctx context.Context, userID string, days int) ([]dto.CalendarDay, error) {
	if days <= 0 {
		days = s.historyDays
	}
	if days > maxCalendarDays {
		days = maxCalendarDays
	}

	today := utils.StartOfDay(s.now(), s.loc)
	since := today.AddDate(0, 0, -(days - 1))

	items, err := s.History(ctx, userID, since)
	if err != nil {
		return nil, err
	}

	checked := make(map[string]struct{}, len(items))
	for _, item := range items {
		checked[utils.DateKey(item.OccurredAt, s.loc)] = struct{}{}
	}

	result := make([]dto.CalendarDay, 0, days)
	for i := 0; i < days; i++ {
		key := utils.DateKey(today.AddDate(0, 0, -i), s.loc)
		_, ok := checked[key]
		result = append(result, dto.CalendarDay{Date: key, HasCheckIn: ok})
	}

	return result, nil
}

// Status 当前沉默时长和下一次告警时间
func (s *CheckInService) Status(ctx context.Context, userID string) (*dto.CheckInStatusData, error) {
	now := s.now()

	baseline := now
	user, err := s.store.GetUser(ctx, userID)
	switch {
	case err == nil:
		baseline = user.CreatedAt
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	data := &dto.CheckInStatusData{
		Date:             utils.DateKey(now, s.loc),
		ThresholdSeconds: int64(s.threshold / time.Second),
	}

	last, ok, err := s.LastCheckIn(ctx, userID)
	if err != nil {
		return nil, err
	}
	if ok {
		baseline = last
		data.LastCheckInAt = &last
		data.CheckedInToday = utils.DateKey(last, s.loc) == data.Date
	}

	_, err = s.store.GetContact(ctx, userID)
	switch {
	case err == nil:
		data.ContactConfigured = true
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("failed to load contact: %w", err)
	}

	silence := now.Sub(baseline)
	if silence < 0 {
		silence = 0
	}
	data.SilenceSeconds = int64(silence / time.Second)
	data.AlertAt = baseline.Add(s.threshold)
	data.Absent = silence >= s.threshold

	return data, nil
}
