package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"go.uber.org/zap"

	"EstouBem/config"
	"EstouBem/internal/schedule"
	"EstouBem/pkg/email"
	"EstouBem/pkg/logger"
	"EstouBem/pkg/metrics"
	"EstouBem/pkg/otel"
	"EstouBem/pkg/sms"
	"EstouBem/pkg/snowflake"
	"EstouBem/storage"
)

func main() {
	config.MustValidate()

	logger.Init()
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Logger.Info("Scheduler received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	shutdownOtel, err := otel.InitOpenTelemetry(ctx, otel.Config{
		ServiceName:  config.Cfg.ServiceName + "-scheduler",
		Environment:  config.Cfg.Environment,
		OTLPEndpoint: config.Cfg.OTLPEndpoint,
		SampleRatio:  config.Cfg.TracingSampler,
	})
	if err != nil {
		logger.Logger.Fatal("Failed to initialize OpenTelemetry", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownOtel(shutdownCtx)
	}()

	if err := metrics.InitMetrics(); err != nil {
		logger.Logger.Warn("Failed to initialize metrics", zap.Error(err))
	}

	queueMode := config.Cfg.DispatchMode == schedule.DispatchQueue
	if err := storage.Init(storage.Options{Database: true, Redis: true, MQ: queueMode}); err != nil {
		logger.Logger.Fatal("Failed to initialize storage for scheduler", zap.Error(err))
	}
	defer storage.Close()

	// 与 worker 和 server 使用不同的 machine id
	if err := snowflake.Init(config.Cfg.SnowflakeMachineID, config.Cfg.SnowflakeDataCenter); err != nil {
		logger.Logger.Fatal("Failed to initialize snowflake for scheduler", zap.Error(err))
	}

	// inline 模式由调度器直接投递
	if !queueMode {
		if err := sms.Init(); err != nil {
			logger.Logger.Warn("Failed to initialize SMS service, SMS alerts disabled", zap.Error(err))
		}
		if err := email.Init(ctx); err != nil {
			logger.Logger.Warn("Failed to initialize email service, email alerts disabled", zap.Error(err))
		}
	}

	logger.Logger.Info("Scheduler service starting",
		zap.String("service", config.Cfg.ServiceName+"-scheduler"),
		zap.String("environment", config.Cfg.Environment),
		zap.String("dispatch_mode", config.Cfg.DispatchMode),
		zap.Duration("threshold", config.Cfg.AbsenceThreshold),
	)

	runAbsenceLoop(ctx)

	logger.Logger.Info("Scheduler service shutting down gracefully")
}

// runAbsenceLoop 周期性执行缺席扫描，启动时先跑一次。
// 取消只在两轮之间生效，进行中的投递会完成
func runAbsenceLoop(ctx context.Context) {
	s := schedule.GetScheduler()

	interval := config.Cfg.ScanInterval
	if config.Cfg.IsDevelopment() {
		interval = 1 * time.Minute
		logger.Logger.Info("Absence scan running in development mode with 1m interval")
	}

	runOnce := func() {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), config.Cfg.ScanTimeout)
		defer cancel()

		_, err := s.RunOnce(runCtx)
		switch {
		case errors.Is(err, schedule.ErrScanRunning):
			logger.Logger.Warn("Previous absence scan still running",
				zap.Time("started_at", s.LastRun()),
			)
		case err != nil:
			logger.Logger.Error("Absence scan run failed", zap.Error(err))
		}
	}

	runOnce()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
