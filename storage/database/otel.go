package database

import (
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const (
	spanKey  = "otel:span"
	startKey = "otel:start_time"
)

// OTELPlugin GORM OpenTelemetry 插件，每条语句一个 client span
type OTELPlugin struct {
	tracer   trace.Tracer
	duration metric.Float64Histogram
	maxSQL   int
}

func NewOTELPlugin(serviceName string) *OTELPlugin {
	meter := otel.Meter(serviceName)
	duration, _ := meter.Float64Histogram(
		"db.query.duration",
		metric.WithDescription("Database query duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0),
	)

	return &OTELPlugin{
		tracer:   otel.Tracer(serviceName + ".gorm"),
		duration: duration,
		maxSQL:   500,
	}
}

func (p *OTELPlugin) Name() string {
	return "otel_plugin"
}

func (p *OTELPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()

	hooks := []struct {
		name     string
		register func(before, after func(*gorm.DB)) error
	}{
		{"query", func(b, a func(*gorm.DB)) error {
			if err := cb.Query().Before("gorm:query").Register("otel:before_query", b); err != nil {
				return err
			}
			return cb.Query().After("gorm:query").Register("otel:after_query", a)
		}},
		{"create", func(b, a func(*gorm.DB)) error {
			if err := cb.Create().Before("gorm:create").Register("otel:before_create", b); err != nil {
				return err
			}
			return cb.Create().After("gorm:create").Register("otel:after_create", a)
		}},
		{"update", func(b, a func(*gorm.DB)) error {
			if err := cb.Update().Before("gorm:update").Register("otel:before_update", b); err != nil {
				return err
			}
			return cb.Update().After("gorm:update").Register("otel:after_update", a)
		}},
		{"delete", func(b, a func(*gorm.DB)) error {
			if err := cb.Delete().Before("gorm:delete").Register("otel:before_delete", b); err != nil {
				return err
			}
			return cb.Delete().After("gorm:delete").Register("otel:after_delete", a)
		}},
		{"raw", func(b, a func(*gorm.DB)) error {
			if err := cb.Raw().Before("gorm:raw").Register("otel:before_raw", b); err != nil {
				return err
			}
			return cb.Raw().After("gorm:raw").Register("otel:after_raw", a)
		}},
	}

	for _, h := range hooks {
		op := h.name
		if err := h.register(
			func(tx *gorm.DB) { p.before(tx, op) },
			func(tx *gorm.DB) { p.after(tx, op) },
		); err != nil {
			return err
		}
	}
	return nil
}

func (p *OTELPlugin) before(tx *gorm.DB, op string) {
	ctx, span := p.tracer.Start(tx.Statement.Context, "db."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(semconv.DBSystemPostgreSQL, semconv.DBOperation(op)),
	)
	tx.Statement.Context = ctx
	tx.InstanceSet(spanKey, span)
	tx.InstanceSet(startKey, time.Now())
}

func (p *OTELPlugin) after(tx *gorm.DB, op string) {
	v, ok := tx.InstanceGet(spanKey)
	if !ok {
		return
	}
	span, ok := v.(trace.Span)
	if !ok {
		return
	}
	defer span.End()

	if table := tx.Statement.Table; table != "" {
		span.SetAttributes(semconv.DBSQLTable(table))
	}
	// 只记录带占位符的语句，不记录参数
	span.SetAttributes(
		semconv.DBStatement(truncate(strings.TrimSpace(tx.Statement.SQL.String()), p.maxSQL)),
		attribute.Int64("db.rows_affected", tx.Statement.RowsAffected),
	)

	status := "success"
	if tx.Error != nil && tx.Error != gorm.ErrRecordNotFound {
		status = "error"
		span.SetStatus(codes.Error, tx.Error.Error())
		span.RecordError(tx.Error)
	}

	if s, ok := tx.InstanceGet(startKey); ok {
		if start, ok := s.(time.Time); ok && p.duration != nil {
			p.duration.Record(tx.Statement.Context, time.Since(start).Seconds(), metric.WithAttributes(
				attribute.String("db.operation", op),
				attribute.String("db.status", status),
			))
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
