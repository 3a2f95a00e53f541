package redis

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// TracingHook Redis 追踪 Hook，只记录命令名和键名，不记录值（锁 token 属于值）
type TracingHook struct {
	tracer   trace.Tracer
	duration metric.Float64Histogram
	attrs    []attribute.KeyValue
}

func NewTracingHook(serviceName string, db int) *TracingHook {
	duration, _ := otel.Meter(serviceName).Float64Histogram(
		"redis.command.duration",
		metric.WithDescription("Redis command duration"),
		metric.WithUnit("s"),
	)

	return &TracingHook{
		tracer:   otel.Tracer(serviceName + ".redis"),
		duration: duration,
		attrs: []attribute.KeyValue{
			semconv.DBSystemRedis,
			semconv.DBRedisDBIndex(db),
		},
	}
}

func (th *TracingHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (th *TracingHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		ctx, span := th.tracer.Start(ctx, cmd.FullName(),
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(th.attrs...),
		)
		defer span.End()

		span.SetAttributes(semconv.DBOperation(cmd.Name()))
		if key := commandKey(cmd); key != "" {
			span.SetAttributes(attribute.String("redis.key", key))
		}

		start := time.Now()
		err := next(ctx, cmd)

		status := "success"
		switch {
		case err == redis.Nil:
			status = "not_found"
		case err != nil:
			status = "error"
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		}

		if th.duration != nil {
			th.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
				attribute.String("redis.command", cmd.Name()),
				attribute.String("redis.status", status),
			))
		}
		return err
	}
}

func (th *TracingHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		ctx, span := th.tracer.Start(ctx, "redis.pipeline",
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(th.attrs...),
		)
		defer span.End()

		names := make([]string, 0, len(cmds))
		for _, cmd := range cmds {
			names = append(names, cmd.Name())
		}
		span.SetAttributes(
			attribute.Int("redis.pipeline.count", len(cmds)),
			attribute.String("redis.pipeline.commands", strings.Join(names, ";")),
		)

		err := next(ctx, cmds)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		return err
	}
}

// commandKey 取第一个键名；EVALSHA/EVAL 的键在 numkeys 之后
func commandKey(cmd redis.Cmder) string {
	args := cmd.Args()
	idx := 1
	switch cmd.Name() {
	case "eval", "evalsha":
		idx = 3
	}
	if len(args) <= idx {
		return ""
	}
	key, ok := args[idx].(string)
	if !ok {
		return ""
	}
	if len(key) > 100 {
		return key[:100] + "..."
	}
	return key
}
