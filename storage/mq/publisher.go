package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"EstouBem/pkg/logger"
)

var (
	publisherCh *amqp.Channel
	pubMutex    sync.Mutex
)

// 等待 broker 确认的上限
const confirmTimeout = 5 * time.Second

// confirmation 对应 *amqp.DeferredConfirmation
type confirmation interface {
	WaitContext(ctx context.Context) (bool, error)
}

// getPublisherChannel 复用一个发布 channel，关闭后下次发布时重建
func getPublisherChannel() (*amqp.Channel, error) {
	pubMutex.Lock()
	defer pubMutex.Unlock()

	if publisherCh != nil && !publisherCh.IsClosed() {
		return publisherCh, nil
	}

	c := Connection()
	if c == nil {
		return nil, fmt.Errorf("RabbitMQ connection is nil")
	}

	ch, err := c.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open publish channel: %w", err)
	}
	// confirm 模式下 broker 落盘后才回 ack
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}
	publisherCh = ch

	closeChan := ch.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		<-closeChan

		pubMutex.Lock()
		if publisherCh == ch {
			publisherCh = nil
		}
		pubMutex.Unlock()

		logger.Logger.Warn("Publisher channel closed, will recreate on next publish",
			zap.String("component", "rabbitmq"),
		)
	}()

	logger.Logger.Info("Publisher channel created",
		zap.String("component", "rabbitmq"),
	)

	return ch, nil
}

// PublishMessage 发送持久化 JSON 消息，messageID 写入 AMQP MessageId 便于排查
func PublishMessage(ctx context.Context, exchange, routingKey, messageID string, body interface{}) error {
	ch, err := getPublisherChannel()
	if err != nil {
		return err
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx,
		exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			Headers:      injectHeaders(ctx, amqp.Table{}),
			ContentType:  "application/json",
			MessageId:    messageID,
			Body:         bodyBytes,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	if confirm == nil {
		return fmt.Errorf("publish channel is not in confirm mode")
	}

	return waitConfirm(ctx, confirm, messageID)
}

// waitConfirm 等待 broker ack，nack 或超时都视为发布失败
func waitConfirm(ctx context.Context, c confirmation, messageID string) error {
	waitCtx, cancel := context.WithTimeout(ctx, confirmTimeout)
	defer cancel()

	acked, err := c.WaitContext(waitCtx)
	if err != nil {
		return fmt.Errorf("failed to confirm message %s: %w", messageID, err)
	}
	if !acked {
		return fmt.Errorf("broker nacked message %s", messageID)
	}
	return nil
}
