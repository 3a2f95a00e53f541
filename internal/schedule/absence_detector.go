package schedule

// 缺席检测：找出沉默时间达到阈值、且当前缺席区间还没通知过的用户

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"EstouBem/internal/model"
	"EstouBem/internal/repository"
)

const defaultPageSize = 500

// Candidate 一个需要通知的用户及其缺席区间起点
type Candidate struct {
	UserID       string
	EpisodeStart time.Time
	Baseline     time.Time
	HasCheckIn   bool
}

type AbsenceDetector struct {
	store     repository.MonitorStore
	threshold time.Duration
	pageSize  int
	logger    *zap.Logger
}

func NewAbsenceDetector(store repository.MonitorStore, threshold time.Duration, logger *zap.Logger) *AbsenceDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AbsenceDetector{
		store:     store,
		threshold: threshold,
		pageSize:  defaultPageSize,
		logger:    logger,
	}
}

// Scan 返回 now 时刻需要通知的用户 ID。只读，不做任何标记；读取失败直接返回错误
func (d *AbsenceDetector) Scan(ctx context.Context, now time.Time) ([]string, error) {
	candidates, err := d.Candidates(ctx, now)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.UserID
	}
	return ids, nil
}

// Candidates 与 Scan 相同，但带上缺席区间信息，供投递消息使用
func (d *AbsenceDetector) Candidates(ctx context.Context, now time.Time) ([]Candidate, error) {
	var (
		result  []Candidate
		after   string
		scanned int
	)

	for {
		rows, err := d.store.ListMonitored(ctx, after, d.pageSize)
		if err != nil {
			d.logger.Error("Failed to read monitored users", zap.String("after", after), zap.Error(err))
			return nil, fmt.Errorf("failed to read monitored users: %w", err)
		}

		for _, row := range rows {
			if qualifies(row, now, d.threshold) {
				result = append(result, Candidate{
					UserID:       row.UserID,
					EpisodeStart: episodeStart(row, d.threshold),
					Baseline:     row.Baseline(),
					HasCheckIn:   row.LastCheckIn != nil,
				})
			}
		}

		scanned += len(rows)
		if len(rows) < d.pageSize {
			break
		}
		after = rows[len(rows)-1].UserID
	}

	d.logger.Info("Absence scan finished",
		zap.Time("now", now),
		zap.Int("scanned", scanned),
		zap.Int("flagged", len(result)),
	)
	return result, nil
}

func episodeStart(u model.MonitoredUser, threshold time.Duration) time.Time {
	return u.Baseline().Add(threshold)
}

// qualifies 沉默时长 >= 阈值（含边界），且最近一次通知早于本次缺席区间的起点
func qualifies(u model.MonitoredUser, now time.Time, threshold time.Duration) bool {
	start := episodeStart(u, threshold)
	if now.Before(start) {
		return false
	}
	return u.LastNotifiedAt == nil || u.LastNotifiedAt.Before(start)
}
