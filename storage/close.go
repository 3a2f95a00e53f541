package storage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"EstouBem/pkg/logger"
	"EstouBem/storage/database"
	"EstouBem/storage/mq"
	"EstouBem/storage/redis"
)

const closeTimeout = 15 * time.Second

// Close 按 MQ -> Redis -> Database 顺序关闭，先停止接收新消息，最后关闭数据库
func Close() {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	closers := []struct {
		name  string
		close func(context.Context) error
	}{
		{"rabbitmq", mq.Close},
		{"redis", redis.Close},
		{"database", database.Close},
	}

	for _, c := range closers {
		if err := c.close(ctx); err != nil {
			logger.Logger.Error("Failed to close storage connection",
				zap.String("storage", c.name),
				zap.Error(err),
			)
			continue
		}
		logger.Logger.Info("Storage connection closed", zap.String("storage", c.name))
	}
}
