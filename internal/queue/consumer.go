package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"EstouBem/internal/cache"
	"EstouBem/internal/service"
	"EstouBem/pkg/errors"
	"EstouBem/pkg/logger"
	"EstouBem/storage/mq"
)

// Notifier 由通知服务实现
type Notifier interface {
	Notify(ctx context.Context, userID string) error
}

// StartAbsenceAlertConsumer 启动缺席告警消费者，阻塞直到 ctx 取消
func StartAbsenceAlertConsumer(ctx context.Context, prefetch int) error {
	return mq.Consume(ctx, mq.ConsumeOptions{
		Queue:         mq.QueueAbsenceNotify,
		ConsumerTag:   "absence_alert_consumer",
		PrefetchCount: prefetch,
		Handler:       AbsenceAlertHandler(service.Notification()),
	})
}

// AbsenceAlertHandler 处理单条缺席告警消息。
// 同一 MessageID 用 SETNX 去重；投递失败时撤销标记并返回错误，下一轮扫描会重新发布
func AbsenceAlertHandler(notifier Notifier) mq.MessageHandler {
	return func(ctx context.Context, body []byte) error {
		var msg AbsenceAlertMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			return fmt.Errorf("failed to unmarshal absence alert message: %w", err)
		}
		if msg.UserID == "" {
			return fmt.Errorf("absence alert message %s has no user_id", msg.MessageID)
		}
		if msg.MessageID == "" {
			msg.MessageID = AbsenceMessageID(msg.UserID, msg.EpisodeStart)
		}

		log := logger.WithTrace(ctx, logger.Named("absence_consumer").With(
			zap.String("message_id", msg.MessageID),
			zap.String("user_id", msg.UserID),
		))

		marked, err := cache.TryMarkMessageProcessing(ctx, msg.MessageID, 0)
		if err != nil {
			// Redis 不可用时继续处理，重复由通知锁和标记兜底
			log.Warn("Failed to check message processed status", zap.Error(err))
		} else if !marked {
			state, _ := cache.MessageState(ctx, msg.MessageID)
			log.Info("Message already processed or being processed, skipping", zap.String("state", state))
			return &errors.SkipMessageError{Reason: fmt.Sprintf("message %s already processed", msg.MessageID)}
		}

		err = notifier.Notify(ctx, msg.UserID)
		outcome := service.OutcomeOf(err)

		switch outcome {
		case service.OutcomeNotified, service.OutcomeSkipped:
			if mErr := cache.MarkMessageProcessed(ctx, msg.MessageID, 0); mErr != nil {
				log.Warn("Failed to mark message as processed", zap.Error(mErr))
			}
			if err != nil {
				return err
			}
			return nil
		case service.OutcomeNoContact, service.OutcomeConflict:
			// 联系人可能稍后补上，另一个 worker 也可能失败，都允许同一区间再次处理
			unmark(ctx, log, msg.MessageID)
			return &errors.SkipMessageError{Reason: outcome}
		default:
			unmark(ctx, log, msg.MessageID)
			return err
		}
	}
}

func unmark(ctx context.Context, log *zap.Logger, messageID string) {
	if err := cache.UnmarkMessageProcessing(ctx, messageID); err != nil {
		log.Warn("Failed to unmark message processing", zap.Error(err))
	}
}
