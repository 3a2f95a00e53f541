package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"EstouBem/config"
	"EstouBem/internal/cache"
	"EstouBem/internal/model"
	"EstouBem/internal/repository"
	"EstouBem/pkg/breaker"
	"EstouBem/pkg/email"
	pkgerrors "EstouBem/pkg/errors"
	"EstouBem/pkg/logger"
	"EstouBem/pkg/metrics"
	"EstouBem/pkg/sms"
	"EstouBem/utils"
)

// 通知结果，用于指标和扫描报告
const (
	OutcomeNotified  = "notified"
	OutcomeSkipped   = "skipped"
	OutcomeNoContact = "no_contact"
	OutcomeConflict  = "conflict"
	OutcomeFailed    = "failed"
)

type NotificationOptions struct {
	Threshold      time.Duration
	LockTTL        time.Duration
	AttemptTimeout time.Duration
	MaxAttempts    uint
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	Location       *time.Location

	SMS          sms.Client
	Email        email.Client
	SMSBreaker   *breaker.CircuitBreaker
	EmailBreaker *breaker.CircuitBreaker
	Locker       cache.Locker

	Now    func() time.Time
	NextID func() (int64, error)
	Logger *zap.Logger
}

// NotificationService 缺席告警投递：每个缺席区间最多一条告警
type NotificationService struct {
	store repository.Store
	opts  NotificationOptions
	log   *zap.Logger
}

var (
	notificationService *NotificationService
	notificationOnce    sync.Once
)

func Notification() *NotificationService {
	notificationOnce.Do(func() {
		cfg := config.Cfg
		ignore := breaker.WithIgnore(pkgerrors.IsNonRetryableError)

		notificationService = NewNotificationService(defaultStore(), NotificationOptions{
			Threshold:      cfg.AbsenceThreshold,
			LockTTL:        cfg.NotifyLockTTL,
			AttemptTimeout: cfg.DeliveryTimeout,
			MaxAttempts:    cfg.DeliveryMaxAttempts,
			BackoffInitial: cfg.DeliveryBackoffStart,
			BackoffMax:     cfg.DeliveryBackoffMax,
			Location:       cfg.Location(),
			SMS:            sms.GetClient(),
			Email:          email.GetClient(),
			SMSBreaker:     breaker.New("sms", cfg.BreakerMaxFailures, cfg.BreakerResetTimeout, ignore),
			EmailBreaker:   breaker.New("email", cfg.BreakerMaxFailures, cfg.BreakerResetTimeout, ignore),
			Locker:         cache.RedisLocker{},
			Logger:         logger.Named("notifier"),
		})
	})
	return notificationService
}

func NewNotificationService(store repository.Store, opts NotificationOptions) *NotificationService {
	if opts.Threshold <= 0 {
		opts.Threshold = 48 * time.Hour
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 5 * time.Minute
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 10 * time.Second
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 5
	}
	if opts.BackoffInitial <= 0 {
		opts.BackoffInitial = time.Second
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = 30 * time.Second
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Locker == nil {
		opts.Locker = cache.NewMemoryLocker()
	}
	if opts.Now == nil {
		opts.Now = nowUTC
	}
	if opts.NextID == nil {
		opts.NextID = defaultNextID
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	// 为空表示不熔断
	if opts.SMSBreaker == nil {
		opts.SMSBreaker = breaker.New("sms", 0, 0)
	}
	if opts.EmailBreaker == nil {
		opts.EmailBreaker = breaker.New("email", 0, 0)
	}

	return &NotificationService{store: store, opts: opts, log: opts.Logger}
}

// absence 一次告警需要的上下文
type absence struct {
	user         *model.User
	contact      *model.TrustedContact
	lastCheckIn  *time.Time
	baseline     time.Time
	episodeStart time.Time
}

// Notify 给 userID 的紧急联系人发送当前缺席区间的告警。
// 返回 nil 表示已送达并写入标记；SkipMessageError 表示无需发送（已恢复打卡或已通知过）；
// 其余为 NoContactConfigured、MarkerConflict、DeliveryFailed 或存储错误
func (s *NotificationService) Notify(ctx context.Context, userID string) error {
	// 发送和写标记之间不允许被取消
	ctx = context.WithoutCancel(ctx)
	log := logger.WithTrace(ctx, s.log.With(zap.String("user_id", userID)))

	contact, err := s.store.GetContact(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		log.Warn("Absent user has no trusted contact, notification dropped")
		metrics.RecordNotifyOutcome(ctx, OutcomeNoContact)
		return pkgerrors.NoContactConfigured
	}
	if err != nil {
		metrics.RecordNotifyOutcome(ctx, OutcomeFailed)
		return fmt.Errorf("failed to load contact: %w", err)
	}

	now := s.opts.Now()
	ab, err := s.loadAbsence(ctx, userID, contact)
	if err != nil {
		metrics.RecordNotifyOutcome(ctx, OutcomeFailed)
		return err
	}

	// 扫描之后用户又打卡了
	if now.Before(ab.episodeStart) {
		log.Info("User checked in after scan, notification skipped")
		metrics.RecordNotifyOutcome(ctx, OutcomeSkipped)
		return &pkgerrors.SkipMessageError{Reason: "user is no longer absent"}
	}

	channels := s.channels(contact)
	if len(channels) == 0 {
		log.Error("No delivery channel available for contact")
		metrics.RecordNotifyOutcome(ctx, OutcomeFailed)
		return pkgerrors.Wrap(pkgerrors.DeliveryFailed, pkgerrors.NoChannelAvailable)
	}

	lockKey := cache.NotifyLockKey(userID)
	token, ok, err := s.opts.Locker.TryLock(ctx, lockKey, s.opts.LockTTL)
	if err != nil {
		metrics.RecordNotifyOutcome(ctx, OutcomeFailed)
		return fmt.Errorf("failed to acquire notify lock: %w", err)
	}
	if !ok {
		log.Info("Another worker is notifying this user")
		metrics.RecordNotifyOutcome(ctx, OutcomeConflict)
		return pkgerrors.MarkerConflict
	}
	defer func() {
		if err := s.opts.Locker.Unlock(ctx, lockKey, token); err != nil {
			log.Warn("Failed to release notify lock", zap.Error(err))
		}
	}()

	// 拿到锁之后再读标记，读主库
	var version int64
	marker, err := s.store.GetMarker(ctx, userID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
	case err != nil:
		metrics.RecordNotifyOutcome(ctx, OutcomeFailed)
		return fmt.Errorf("failed to load notification marker: %w", err)
	default:
		if marker.Covers(ab.episodeStart) {
			log.Info("Absence episode already notified",
				zap.Time("episode_start", ab.episodeStart),
				zap.Time("notified_at", marker.NotifiedAt),
			)
			metrics.RecordNotifyOutcome(ctx, OutcomeSkipped)
			return &pkgerrors.SkipMessageError{Reason: "episode already notified"}
		}
		version = marker.Version
	}

	task, err := s.openTask(ctx, userID, ab.episodeStart)
	if err != nil {
		metrics.RecordNotifyOutcome(ctx, OutcomeFailed)
		return err
	}
	log = log.With(zap.Int64("task_code", task.TaskCode), zap.Time("episode_start", ab.episodeStart))

	msg := composeAlert(ab, s.opts.Location)
	delivered, lastErr := s.deliver(ctx, task, ab.contact, channels, msg)

	if delivered == 0 {
		s.finishTask(ctx, task, model.NotificationTaskStatusFailed, lastErr)
		log.Error("Absence alert not delivered on any channel", zap.Error(lastErr))
		metrics.RecordNotifyOutcome(ctx, OutcomeFailed)
		return pkgerrors.Wrap(pkgerrors.DeliveryFailed, lastErr)
	}

	notifiedAt := s.opts.Now()
	if err := s.store.CompareAndSetMarker(ctx, userID, version, ab.episodeStart, notifiedAt); err != nil {
		s.finishTask(ctx, task, model.NotificationTaskStatusConflict, err)
		if errors.Is(err, repository.ErrMarkerConflict) {
			log.Warn("Notification marker changed concurrently", zap.Int64("expected_version", version))
			metrics.RecordNotifyOutcome(ctx, OutcomeConflict)
			return pkgerrors.MarkerConflict
		}
		log.Error("Alert delivered but marker write failed", zap.Error(err))
		metrics.RecordNotifyOutcome(ctx, OutcomeFailed)
		return fmt.Errorf("failed to write notification marker: %w", err)
	}

	s.finishTask(ctx, task, model.NotificationTaskStatusSuccess, nil)
	log.Info("Absence alert delivered",
		zap.Int("channels", delivered),
		zap.Time("notified_at", notifiedAt),
	)
	metrics.RecordNotifyOutcome(ctx, OutcomeNotified)
	return nil
}

func (s *NotificationService) loadAbsence(ctx context.Context, userID string, contact *model.TrustedContact) (*absence, error) {
	ab := &absence{contact: contact, baseline: contact.CreatedAt}

	user, err := s.store.GetUser(ctx, userID)
	switch {
	case err == nil:
		ab.user = user
		ab.baseline = user.CreatedAt
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	last, err := s.store.LastCheckIn(ctx, userID)
	switch {
	case err == nil:
		at := last.OccurredAt
		ab.lastCheckIn = &at
		ab.baseline = at
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("failed to load last check-in: %w", err)
	}

	ab.episodeStart = ab.baseline.Add(s.opts.Threshold)
	return ab, nil
}

func (s *NotificationService) channels(contact *model.TrustedContact) []model.NotificationChannel {
	var result []model.NotificationChannel
	if s.opts.Email != nil && contact.HasEmail() {
		result = append(result, model.NotificationChannelEmail)
	}
	if s.opts.SMS != nil && len(contact.PhoneCipher) > 0 {
		result = append(result, model.NotificationChannelSMS)
	}
	return result
}

func (s *NotificationService) openTask(ctx context.Context, userID string, episodeStart time.Time) (*model.NotificationTask, error) {
	code, err := s.opts.NextID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate task code: %w", err)
	}

	task := &model.NotificationTask{
		TaskCode:     code,
		UserID:       userID,
		EpisodeStart: episodeStart,
		Status:       model.NotificationTaskStatusPending,
	}
	if err := s.store.GetOrCreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to open notification task: %w", err)
	}

	task.Status = model.NotificationTaskStatusProcessing
	if err := s.store.UpdateTask(ctx, task); err != nil {
		s.log.Warn("Failed to mark task processing", zap.Int64("task_code", task.TaskCode), zap.Error(err))
	}
	return task, nil
}

func (s *NotificationService) finishTask(ctx context.Context, task *model.NotificationTask, status model.NotificationTaskStatus, cause error) {
	now := s.opts.Now()
	task.Status = status
	task.ProcessedAt = &now
	task.LastError = ""
	if cause != nil {
		task.LastError = truncateMessage(cause.Error())
	}
	if err := s.store.UpdateTask(ctx, task); err != nil {
		s.log.Warn("Failed to update notification task",
			zap.Int64("task_code", task.TaskCode),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
}

// deliver 各渠道独立重试，已送达的渠道不再重发；返回送达渠道数和最后一个错误
func (s *NotificationService) deliver(
	ctx context.Context,
	task *model.NotificationTask,
	contact *model.TrustedContact,
	channels []model.NotificationChannel,
	msg alertMessage,
) (int, error) {
	delivered := 0
	var lastErr error

	for _, channel := range channels {
		send, cb, err := s.sender(channel, contact, msg)
		if err != nil {
			lastErr = err
			s.recordAttempt(ctx, task, channel, 1, err)
			continue
		}

		if err := s.retry(ctx, task, channel, cb, send); err != nil {
			lastErr = err
			continue
		}
		delivered++
	}

	return delivered, lastErr
}

func (s *NotificationService) sender(
	channel model.NotificationChannel,
	contact *model.TrustedContact,
	msg alertMessage,
) (func(context.Context) error, *breaker.CircuitBreaker, error) {
	switch channel {
	case model.NotificationChannelEmail:
		return func(ctx context.Context) error {
			return s.opts.Email.Send(ctx, contact.Email, msg.Subject, msg.Body)
		}, s.opts.EmailBreaker, nil
	case model.NotificationChannelSMS:
		phone, err := utils.DecryptPhone(contact.PhoneCipher)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to decrypt contact phone: %w", err)
		}
		return func(ctx context.Context) error {
			return s.opts.SMS.Send(ctx, phone, msg.SMS)
		}, s.opts.SMSBreaker, nil
	default:
		return nil, nil, fmt.Errorf("unknown channel %q", channel)
	}
}

// retry 指数退避 + 抖动，单次调用有超时；服务商明确拒绝或熔断打开时立即放弃该渠道
func (s *NotificationService) retry(
	ctx context.Context,
	task *model.NotificationTask,
	channel model.NotificationChannel,
	cb *breaker.CircuitBreaker,
	send func(context.Context) error,
) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.opts.BackoffInitial
	policy.MaxInterval = s.opts.BackoffMax

	attempt := 0
	operation := func() (struct{}, error) {
		attempt++
		if attempt > 1 {
			metrics.RecordDeliveryRetry(ctx, string(channel))
		}

		attemptCtx, cancel := context.WithTimeout(ctx, s.opts.AttemptTimeout)
		defer cancel()

		start := time.Now()
		err := cb.Call(attemptCtx, send)
		s.recordAttempt(ctx, task, channel, attempt, err)

		status := "success"
		if err != nil {
			status = "failed"
		}
		metrics.RecordDelivery(ctx, string(channel), status, time.Since(start).Seconds())

		if err == nil {
			return struct{}{}, nil
		}
		if pkgerrors.IsNonRetryableError(err) || errors.Is(err, breaker.ErrOpen) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(s.opts.MaxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.log.Warn("Delivery attempt failed, retrying",
				zap.String("user_id", task.UserID),
				zap.String("channel", string(channel)),
				zap.Int("attempt", attempt),
				zap.Duration("next", next),
				zap.Error(err),
			)
		}),
	)
	return err
}

func (s *NotificationService) recordAttempt(ctx context.Context, task *model.NotificationTask, channel model.NotificationChannel, attempt int, sendErr error) {
	row := &model.ContactAttempt{
		TaskCode:    task.TaskCode,
		Channel:     channel,
		Attempt:     attempt,
		Status:      model.ContactAttemptStatusSuccess,
		AttemptedAt: s.opts.Now(),
	}
	if sendErr != nil {
		row.Status = model.ContactAttemptStatusFailed
		row.ResponseMessage = truncateMessage(sendErr.Error())
		task.RetryCount++
	}

	if err := s.store.CreateAttempt(ctx, row); err != nil {
		s.log.Warn("Failed to record contact attempt",
			zap.Int64("task_code", task.TaskCode),
			zap.String("channel", string(channel)),
			zap.Error(err),
		)
	}
}

// truncateMessage 按字符截断到 varchar(255)，不能切断多字节字符
func truncateMessage(s string) string {
	const max = 255
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

// OutcomeOf 把 Notify 的返回值归类为结果常量
func OutcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeNotified
	case pkgerrors.IsSkipMessageError(err):
		return OutcomeSkipped
	case errors.Is(err, pkgerrors.NoContactConfigured):
		return OutcomeNoContact
	case errors.Is(err, pkgerrors.MarkerConflict):
		return OutcomeConflict
	default:
		return OutcomeFailed
	}
}
