package queue

import (
	"context"

	"go.uber.org/zap"

	"EstouBem/pkg/logger"
	"EstouBem/storage/mq"
)

// PublishAbsenceAlert 发布缺席告警消息，由 worker 消费并调用通知服务
func PublishAbsenceAlert(ctx context.Context, msg AbsenceAlertMessage) error {
	err := mq.PublishMessage(ctx,
		mq.ExchangeMonitorEvents,
		mq.RoutingAbsenceNotify,
		msg.MessageID,
		msg,
	)
	if err != nil {
		logger.Logger.Error("Failed to publish absence alert message",
			zap.String("message_id", msg.MessageID),
			zap.String("user_id", msg.UserID),
			zap.Error(err),
		)
		return err
	}

	logger.Logger.Info("Published absence alert message",
		zap.String("message_id", msg.MessageID),
		zap.String("user_id", msg.UserID),
		zap.Time("episode_start", msg.EpisodeStart),
	)
	return nil
}
