package sms

import (
	"context"

	"go.uber.org/zap"

	"EstouBem/utils"
)

// LogClient 只写日志不真正发送，开发环境使用
type LogClient struct {
	log *zap.Logger
}

func NewLogClient(log *zap.Logger) *LogClient {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogClient{log: log}
}

func (c *LogClient) Send(ctx context.Context, phone, message string) error {
	c.log.Info("SMS delivery (log provider)",
		zap.String("phone", utils.MaskPhone(phone)),
		zap.Int("length", len([]rune(message))),
	)
	return nil
}
