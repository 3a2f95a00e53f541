package sms

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"EstouBem/config"
	"EstouBem/pkg/logger"
)

// Client 短信客户端接口，phone 为 E.164 格式
type Client interface {
	Send(ctx context.Context, phone, message string) error
}

var (
	smsClient Client
	smsOnce   sync.Once
	smsErr    error
)

// Init 按 SMS_PROVIDER 初始化短信客户端，none 表示不启用短信渠道
func Init() error {
	smsOnce.Do(func() {
		cfg := config.Cfg

		switch cfg.SMSProvider {
		case "aliyun":
			// 构造失败时不能把 nil 指针赋给接口
			c, err := NewAliyunClient(cfg.SMSEndpoint, cfg.SMSSignName, cfg.SMSTemplateCode)
			if err != nil {
				smsErr = err
			} else {
				smsClient = c
			}
		case "log":
			smsClient = NewLogClient(logger.Named("sms"))
		case "none", "":
			smsClient = nil
		default:
			smsErr = fmt.Errorf("unsupported SMS provider: %s", cfg.SMSProvider)
		}

		if smsErr != nil {
			logger.Logger.Error("Failed to initialize SMS client", zap.Error(smsErr))
			return
		}

		logger.Logger.Info("SMS client initialized successfully",
			zap.String("provider", cfg.SMSProvider),
		)
	})

	return smsErr
}

// GetClient 返回已初始化的客户端，未启用时为 nil
func GetClient() Client {
	return smsClient
}
