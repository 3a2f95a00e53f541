package email

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"EstouBem/config"
	"EstouBem/pkg/logger"
)

// Client 邮件客户端接口，正文为纯文本
type Client interface {
	Send(ctx context.Context, to, subject, body string) error
}

var (
	emailClient Client
	emailOnce   sync.Once
	emailErr    error
)

// Init 按 EMAIL_PROVIDER 初始化邮件客户端，none 表示不启用邮件渠道
func Init(ctx context.Context) error {
	emailOnce.Do(func() {
		cfg := config.Cfg

		switch cfg.EmailProvider {
		case "ses":
			c, err := NewSESClient(ctx, SESOptions{
				Region:          cfg.AWSRegion,
				AccessKeyID:     cfg.AWSAccessKeyID,
				SecretAccessKey: cfg.AWSSecretAccessKey,
				Endpoint:        cfg.SESEndpoint,
				From:            cfg.EmailFrom,
			})
			if err != nil {
				emailErr = err
			} else {
				emailClient = c
			}
		case "log":
			emailClient = NewLogClient(logger.Named("email"))
		case "none", "":
			emailClient = nil
		default:
			emailErr = fmt.Errorf("unsupported email provider: %s", cfg.EmailProvider)
		}

		if emailErr != nil {
			logger.Logger.Error("Failed to initialize email client", zap.Error(emailErr))
			return
		}

		logger.Logger.Info("Email client initialized successfully",
			zap.String("provider", cfg.EmailProvider),
		)
	})

	return emailErr
}

// GetClient 返回已初始化的客户端，未启用时为 nil
func GetClient() Client {
	return emailClient
}
