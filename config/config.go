package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

var Cfg Config

type Config struct {
	// 服务配置
	ServerPort  string `env:"SERVER_PORT" envDefault:"8888"`
	ServerHost  string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"` // development, staging, production
	ServiceName string `env:"SERVICE_NAME" envDefault:"estoubem"`
	// 允许跨域的前端来源，逗号分隔，为空时不限制
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	// PostgreSQL 配置
	PostgreSQLHost     string `env:"POSTGRESQL_HOST" envDefault:"localhost"`
	PostgreSQLPort     string `env:"POSTGRESQL_PORT" envDefault:"5432"`
	PostgreSQLUser     string `env:"POSTGRESQL_USER" envDefault:"postgres"`
	PostgreSQLPassword string `env:"POSTGRESQL_PASSWORD" envDefault:"postgres"`
	PostgreSQLDatabase string `env:"POSTGRESQL_DATABASE" envDefault:"estoubem"`
	PostgreSQLSchema   string `env:"POSTGRESQL_SCHEMA" envDefault:"public"`
	PostgreSQLSSLMode  string `env:"POSTGRESQL_SSLMODE" envDefault:"disable"`
	PostgreSQLMaxIdle  int    `env:"POSTGRESQL_MAX_IDLE" envDefault:"10"`
	PostgreSQLMaxOpen  int    `env:"POSTGRESQL_MAX_OPEN" envDefault:"50"`
	// 只读副本，扫描查询可以走副本，为空则不启用
	PostgreSQLReplicaDSN string `env:"POSTGRESQL_REPLICA_DSN"`

	// Redis 配置
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"estoubem"`

	// RabbitMQ 配置
	RabbitMQAddr     string `env:"RABBITMQ_ADDR" envDefault:"localhost"`
	RabbitMQPort     string `env:"RABBITMQ_PORT" envDefault:"5672"`
	RabbitMQUsername string `env:"RABBITMQ_USERNAME" envDefault:"guest"`
	RabbitMQPassword string `env:"RABBITMQ_PASSWORD" envDefault:"guest"`
	RabbitMQVhost    string `env:"RABBITMQ_VHOST" envDefault:"/"`

	// JWT 配置，token 由身份服务签发，这里只做校验
	JWTSecret        string `env:"JWT_SECRET"`
	JWTIdentityClaim string `env:"JWT_IDENTITY_CLAIM" envDefault:"sub"`
	JWTExpireMinutes int    `env:"JWT_EXPIRE_MINUTES" envDefault:"60"`

	// 加密配置
	EncryptionKey string `env:"ENCRYPTION_KEY"` // 联系人手机号加密，32字节 AES-256
	PhoneHashSalt string `env:"PHONEHASH_SALT"`
	PhoneRegion   string `env:"PHONE_DEFAULT_REGION" envDefault:"BR"`

	// Snowflake ID 生成器配置
	SnowflakeMachineID  int64 `env:"SNOWFLAKE_MACHINE_ID" envDefault:"1"`
	SnowflakeDataCenter int64 `env:"SNOWFLAKE_DATACENTER_ID" envDefault:"1"`

	// 日志配置
	LoggerLevel      string `env:"LOGGER_LEVEL" envDefault:"INFO"`
	LoggerFormat     string `env:"LOGGER_FORMAT" envDefault:"text"` // json, text
	LoggerOutputPath string `env:"LOGGER_OUTPUT_PATH" envDefault:"stdout"`

	// 链路追踪配置
	OTLPEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	TracingSampler float64 `env:"TRACING_SAMPLER" envDefault:"0.1"`

	// 缺席监控配置
	DisplayTimezone  string        `env:"DISPLAY_TIMEZONE" envDefault:"America/Sao_Paulo"`
	AbsenceThreshold time.Duration `env:"MONITOR_ABSENCE_THRESHOLD" envDefault:"48h"`
	ScanInterval     time.Duration `env:"MONITOR_SCAN_INTERVAL" envDefault:"15m"`
	ScanTimeout      time.Duration `env:"MONITOR_SCAN_TIMEOUT" envDefault:"10m"`
	MonitorWorkers   int           `env:"MONITOR_WORKERS" envDefault:"8"`
	DispatchMode     string        `env:"MONITOR_DISPATCH_MODE" envDefault:"inline"` // inline, queue
	NotifyLockTTL    time.Duration `env:"MONITOR_NOTIFY_LOCK_TTL" envDefault:"5m"`
	HistoryDays      int           `env:"HISTORY_DAYS" envDefault:"30"`

	// 投递重试配置
	DeliveryTimeout      time.Duration `env:"DELIVERY_TIMEOUT" envDefault:"10s"`
	DeliveryMaxAttempts  uint          `env:"DELIVERY_MAX_ATTEMPTS" envDefault:"5"`
	DeliveryBackoffStart time.Duration `env:"DELIVERY_BACKOFF_INITIAL" envDefault:"1s"`
	DeliveryBackoffMax   time.Duration `env:"DELIVERY_BACKOFF_MAX" envDefault:"30s"`
	BreakerMaxFailures   int           `env:"DELIVERY_BREAKER_MAX_FAILURES" envDefault:"5"`
	BreakerResetTimeout  time.Duration `env:"DELIVERY_BREAKER_RESET" envDefault:"30s"`

	// 短信服务配置
	// AccessKey 通过阿里云 SDK 的环境变量自动获取：ALIBABA_CLOUD_ACCESS_KEY_ID / ALIBABA_CLOUD_ACCESS_KEY_SECRET
	SMSProvider     string `env:"SMS_PROVIDER" envDefault:"log"` // aliyun, log, none
	SMSEndpoint     string `env:"SMS_ENDPOINT" envDefault:"dysmsapi.aliyuncs.com"`
	SMSSignName     string `env:"SMS_SIGN_NAME"`
	SMSTemplateCode string `env:"SMS_TEMPLATE_CODE"`

	// 邮件服务配置
	EmailProvider      string `env:"EMAIL_PROVIDER" envDefault:"log"` // ses, log, none
	EmailFrom          string `env:"EMAIL_FROM" envDefault:"Estou Bem <avisos@estoubem.app>"`
	AWSRegion          string `env:"AWS_REGION" envDefault:"sa-east-1"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	SESEndpoint        string `env:"SES_ENDPOINT"`
}

func init() {
	if err := godotenv.Load(); err != nil {
		log.Printf("WARN: Cannot load .env file: %v, using environment variables", err)
	}

	Cfg = Config{}
	if err := env.Parse(&Cfg); err != nil {
		log.Fatalf("Failed to parse environment variables: %v", err)
	}
}

// MustValidate 校验启动必需的配置，由各个 cmd 在启动时调用
func MustValidate() {
	if Cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	if len(Cfg.EncryptionKey) != 32 {
		log.Fatal("ENCRYPTION_KEY must be exactly 32 bytes for AES-256")
	}

	if Cfg.AbsenceThreshold <= 0 {
		log.Fatal("MONITOR_ABSENCE_THRESHOLD must be positive")
	}

	if Cfg.DispatchMode != "inline" && Cfg.DispatchMode != "queue" {
		log.Fatalf("MONITOR_DISPATCH_MODE must be inline or queue, got %q", Cfg.DispatchMode)
	}

	if err := Cfg.ValidateNotifyLock(); err != nil {
		log.Fatal(err)
	}

	if Cfg.SMSProvider == "aliyun" && (Cfg.SMSSignName == "" || Cfg.SMSTemplateCode == "") {
		log.Printf("WARN: SMS_SIGN_NAME or SMS_TEMPLATE_CODE is not set, SMS alerts will fail")
	}

	if Cfg.EmailProvider == "ses" && Cfg.EmailFrom == "" {
		log.Printf("WARN: EMAIL_FROM is not set, email alerts will fail")
	}
}

// 投递渠道数量：email + sms
const deliveryChannels = 2

// WorstCaseDelivery 一次通知最长耗时：每个渠道用满重试次数、每次都超时，退避按上限抖动计算
func (c *Config) WorstCaseDelivery() time.Duration {
	attempts := c.DeliveryMaxAttempts
	if attempts == 0 {
		attempts = 5
	}

	perChannel := time.Duration(attempts) * c.DeliveryTimeout
	interval := c.DeliveryBackoffStart
	for i := uint(1); i < attempts; i++ {
		if interval > c.DeliveryBackoffMax {
			interval = c.DeliveryBackoffMax
		}
		// backoff 默认 multiplier 1.5，jitter 0.5
		perChannel += interval * 3 / 2
		interval = interval * 3 / 2
	}

	return deliveryChannels * perChannel
}

// ValidateNotifyLock 用户锁必须覆盖整次投递，否则锁过期后另一个 worker 会重复发送
func (c *Config) ValidateNotifyLock() error {
	worst := c.WorstCaseDelivery()
	if c.NotifyLockTTL <= worst {
		return fmt.Errorf("MONITOR_NOTIFY_LOCK_TTL (%s) must exceed the worst-case delivery time (%s)", c.NotifyLockTTL, worst)
	}
	return nil
}

func (c *Config) GetDSN() string {
	return "host=" + c.PostgreSQLHost +
		" port=" + c.PostgreSQLPort +
		" user=" + c.PostgreSQLUser +
		" password=" + c.PostgreSQLPassword +
		" dbname=" + c.PostgreSQLDatabase +
		" sslmode=" + c.PostgreSQLSSLMode +
		" search_path=" + c.PostgreSQLSchema
}

func (c *Config) GetRabbitMQURL() string {
	return "amqp://" + c.RabbitMQUsername + ":" + c.RabbitMQPassword + "@" + c.RabbitMQAddr + ":" + c.RabbitMQPort + c.RabbitMQVhost
}

// Location 返回展示用时区，解析失败时回退 UTC
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.DisplayTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
