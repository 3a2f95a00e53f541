package mq

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"EstouBem/config"
	"EstouBem/pkg/logger"
)

// 缺席告警的拓扑：direct 交换机 + 持久化队列
const (
	ExchangeMonitorEvents = "monitor.events"
	QueueAbsenceNotify    = "monitor.absence.notify"
	RoutingAbsenceNotify  = "absence.notify"
)

var (
	conn     *amqp.Connection
	connMu   sync.RWMutex
	initOnce sync.Once
	initErr  error
)

func Init() error {
	initOnce.Do(func() {
		c, err := amqp.Dial(config.Cfg.GetRabbitMQURL())
		if err != nil {
			initErr = fmt.Errorf("failed to dial rabbitmq: %w", err)
			return
		}

		if err := declareTopology(c); err != nil {
			_ = c.Close()
			initErr = err
			return
		}

		connMu.Lock()
		conn = c
		connMu.Unlock()

		logger.Logger.Info("RabbitMQ connected",
			zap.String("component", "rabbitmq"),
			zap.String("exchange", ExchangeMonitorEvents),
			zap.String("queue", QueueAbsenceNotify),
		)
	})

	return initErr
}

func declareTopology(c *amqp.Connection) error {
	ch, err := c.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(ExchangeMonitorEvents, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", ExchangeMonitorEvents, err)
	}

	if _, err := ch.QueueDeclare(QueueAbsenceNotify, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", QueueAbsenceNotify, err)
	}

	if err := ch.QueueBind(QueueAbsenceNotify, RoutingAbsenceNotify, ExchangeMonitorEvents, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", QueueAbsenceNotify, err)
	}

	return nil
}

func Connection() *amqp.Connection {
	connMu.RLock()
	defer connMu.RUnlock()
	return conn
}

func Close(ctx context.Context) error {
	connMu.Lock()
	defer connMu.Unlock()

	if conn == nil || conn.IsClosed() {
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- conn.Close()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		conn = nil
		return err
	}
}
