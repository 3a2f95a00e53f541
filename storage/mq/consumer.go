package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"EstouBem/pkg/errors"
	"EstouBem/pkg/logger"
)

type MessageHandler func(ctx context.Context, body []byte) error

type ConsumeOptions struct {
	Queue         string
	ConsumerTag   string
	PrefetchCount int
	Handler       MessageHandler
}

// Consume 阻塞消费直到 ctx 取消或 channel 关闭。
// 处理成功或 SkipMessageError 时 ack；其他错误 nack 且不重新入队，下一轮扫描会重新投递
func Consume(ctx context.Context, opts ConsumeOptions) error {
	c := Connection()
	if c == nil {
		return fmt.Errorf("RabbitMQ connection is nil")
	}

	ch, err := c.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if opts.PrefetchCount > 0 {
		if err := ch.Qos(opts.PrefetchCount, 0, false); err != nil {
			return fmt.Errorf("failed to set QoS: %w", err)
		}
	}

	msgs, err := ch.Consume(
		opts.Queue,
		opts.ConsumerTag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	logger.Logger.Info("Started consuming messages",
		zap.String("queue", opts.Queue),
		zap.String("consumer_tag", opts.ConsumerTag),
		zap.Int("prefetch_count", opts.PrefetchCount),
	)

	for {
		select {
		case <-ctx.Done():
			// 停止接收新消息，正在处理的消息已在 handler 内完成
			_ = ch.Cancel(opts.ConsumerTag, false)
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("consumer channel closed: %s", opts.Queue)
			}
			handleDelivery(ctx, opts, msg)
		}
	}
}

func handleDelivery(ctx context.Context, opts ConsumeOptions, msg amqp.Delivery) {
	ctx, span := startConsumeSpan(ctx, opts.Queue, msg)
	defer span.End()

	err := opts.Handler(ctx, msg.Body)
	if err == nil || errors.IsSkipMessageError(err) {
		if err != nil {
			logger.Logger.Info("Message skipped",
				zap.String("queue", opts.Queue),
				zap.String("message_id", msg.MessageId),
				zap.String("reason", err.Error()),
			)
		}
		_ = msg.Ack(false)
		return
	}

	logger.Logger.Error("Failed to process message",
		zap.String("queue", opts.Queue),
		zap.String("consumer_tag", opts.ConsumerTag),
		zap.String("message_id", msg.MessageId),
		zap.Error(err),
	)
	_ = msg.Nack(false, false)
}
