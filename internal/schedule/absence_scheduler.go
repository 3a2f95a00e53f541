package schedule

// 缺席调度器：周期性扫描并把告警交给通知服务（inline）或消息队列（queue）

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"EstouBem/config"
	"EstouBem/internal/queue"
	"EstouBem/internal/repository"
	"EstouBem/internal/service"
	"EstouBem/pkg/logger"
	"EstouBem/pkg/metrics"
	"EstouBem/storage/database"
)

const (
	DispatchInline = "inline"
	DispatchQueue  = "queue"
)

// ErrScanRunning 同一进程内上一轮扫描还没结束
var ErrScanRunning = errors.New("absence scan already running")

type Notifier interface {
	Notify(ctx context.Context, userID string) error
}

type PublishFunc func(ctx context.Context, msg queue.AbsenceAlertMessage) error

// ScanReport 一轮扫描的结果统计
type ScanReport struct {
	StartedAt time.Time
	Duration  time.Duration
	Flagged   int
	Notified  int
	Skipped   int
	NoContact int
	Conflicts int
	Failed    int
	Published int
}

type SchedulerOptions struct {
	Threshold time.Duration
	Workers   int
	Mode      string
	Notifier  Notifier
	Publish   PublishFunc
	Now       func() time.Time
	Logger    *zap.Logger
}

type AbsenceScheduler struct {
	detector *AbsenceDetector
	opts     SchedulerOptions
	logger   *zap.Logger

	jobMu      sync.Mutex
	jobRunning bool
	lastRun    time.Time
}

var (
	schedulerOnce sync.Once
	schedulerInst *AbsenceScheduler
)

// GetScheduler 进程内单例，使用全局配置、数据库和通知服务
func GetScheduler() *AbsenceScheduler {
	schedulerOnce.Do(func() {
		cfg := config.Cfg
		schedulerInst = NewAbsenceScheduler(repository.NewGormStore(database.DB()), SchedulerOptions{
			Threshold: cfg.AbsenceThreshold,
			Workers:   cfg.MonitorWorkers,
			Mode:      cfg.DispatchMode,
			Notifier:  service.Notification(),
			Publish:   queue.PublishAbsenceAlert,
			Logger:    logger.Named("scheduler"),
		})
	})
	return schedulerInst
}

func NewAbsenceScheduler(store repository.MonitorStore, opts SchedulerOptions) *AbsenceScheduler {
	if opts.Threshold <= 0 {
		opts.Threshold = 48 * time.Hour
	}
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	if opts.Mode == "" {
		opts.Mode = DispatchInline
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &AbsenceScheduler{
		detector: NewAbsenceDetector(store, opts.Threshold, opts.Logger),
		opts:     opts,
		logger:   opts.Logger,
	}
}

// RunOnce 扫描一次并分发。扫描失败时整轮放弃；单个用户失败只计数，不影响其他用户
func (s *AbsenceScheduler) RunOnce(ctx context.Context) (ScanReport, error) {
	s.jobMu.Lock()
	if s.jobRunning {
		s.jobMu.Unlock()
		s.logger.Info("Absence scan already running, skipping")
		return ScanReport{}, ErrScanRunning
	}
	s.jobRunning = true
	startTime := s.opts.Now()
	s.lastRun = startTime
	s.jobMu.Unlock()

	defer func() {
		s.jobMu.Lock()
		s.jobRunning = false
		s.jobMu.Unlock()
	}()

	report := ScanReport{StartedAt: startTime}
	clock := time.Now()

	candidates, err := s.detector.Candidates(ctx, startTime)
	if err != nil {
		metrics.RecordScan(ctx, "error", 0, time.Since(clock).Seconds())
		return report, err
	}
	report.Flagged = len(candidates)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)

	for _, c := range candidates {
		// 取消只在用户之间生效，已经开始的投递会执行完
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			outcome := s.dispatch(gctx, c, startTime)
			mu.Lock()
			report.count(outcome)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = time.Since(clock)
	metrics.RecordScan(ctx, "success", report.Flagged, report.Duration.Seconds())

	s.logger.Info("Absence scan completed",
		zap.String("mode", s.opts.Mode),
		zap.Int("flagged", report.Flagged),
		zap.Int("notified", report.Notified),
		zap.Int("published", report.Published),
		zap.Int("skipped", report.Skipped),
		zap.Int("no_contact", report.NoContact),
		zap.Int("conflicts", report.Conflicts),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

const outcomePublished = "published"

func (s *AbsenceScheduler) dispatch(ctx context.Context, c Candidate, now time.Time) string {
	log := s.logger.With(
		zap.String("user_id", c.UserID),
		zap.Time("episode_start", c.EpisodeStart),
		zap.Time("baseline", c.Baseline),
		zap.Bool("has_check_in", c.HasCheckIn),
	)

	if s.opts.Mode == DispatchQueue {
		msg := queue.NewAbsenceAlertMessage(c.UserID, c.EpisodeStart, now)
		if err := s.opts.Publish(ctx, msg); err != nil {
			log.Error("Failed to publish absence alert", zap.Error(err))
			return service.OutcomeFailed
		}
		return outcomePublished
	}

	err := s.opts.Notifier.Notify(ctx, c.UserID)
	outcome := service.OutcomeOf(err)
	switch outcome {
	case service.OutcomeNotified:
		log.Info("Absence alert dispatched", zap.Duration("silence", now.Sub(c.Baseline)))
	case service.OutcomeFailed:
		log.Error("Absence notification failed", zap.Error(err))
	}
	return outcome
}

func (r *ScanReport) count(outcome string) {
	switch outcome {
	case service.OutcomeNotified:
		r.Notified++
	case service.OutcomeSkipped:
		r.Skipped++
	case service.OutcomeNoContact:
		r.NoContact++
	case service.OutcomeConflict:
		r.Conflicts++
	case outcomePublished:
		r.Published++
	default:
		r.Failed++
	}
}

// LastRun 最近一次扫描开始时间
func (s *AbsenceScheduler) LastRun() time.Time {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	return s.lastRun
}
