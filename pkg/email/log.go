package email

import (
	"context"

	"go.uber.org/zap"
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

func (c *LogClient) Send(ctx context.Context, to, subject, body string) error {
	c.log.Info("Email delivery (log provider)",
		zap.String("to", to),
		zap.String("subject", subject),
	)
	return nil
}
