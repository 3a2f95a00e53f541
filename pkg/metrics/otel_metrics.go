package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MonitorMetrics 缺席监控相关指标
type MonitorMetrics struct {
	ScanRunsTotal       metric.Int64Counter
	ScanDuration        metric.Float64Histogram
	UsersFlaggedTotal   metric.Int64Counter
	NotifyOutcomesTotal metric.Int64Counter
	DeliveryTotal       metric.Int64Counter
	DeliveryRetryTotal  metric.Int64Counter
	DeliveryDuration    metric.Float64Histogram
	CheckInsTotal       metric.Int64Counter
}

var (
	metrics     *MonitorMetrics
	metricsOnce sync.Once
	metricsErr  error
)

// InitMetrics 在全局 MeterProvider 设置之后调用
func InitMetrics() error {
	metricsOnce.Do(func() {
		metrics, metricsErr = newMonitorMetrics(otel.Meter("estoubem"))
	})
	return metricsErr
}

func newMonitorMetrics(meter metric.Meter) (*MonitorMetrics, error) {
	m := &MonitorMetrics{}
	var err error

	if m.ScanRunsTotal, err = meter.Int64Counter(
		"monitor_scan_runs_total",
		metric.WithDescription("Total number of absence scans"),
		metric.WithUnit("{scan}"),
	); err != nil {
		return nil, err
	}

	if m.ScanDuration, err = meter.Float64Histogram(
		"monitor_scan_duration_seconds",
		metric.WithDescription("Time spent on one scan cycle including dispatch"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if m.UsersFlaggedTotal, err = meter.Int64Counter(
		"monitor_users_flagged_total",
		metric.WithDescription("Users found absent past the threshold"),
		metric.WithUnit("{user}"),
	); err != nil {
		return nil, err
	}

	if m.NotifyOutcomesTotal, err = meter.Int64Counter(
		"monitor_notify_outcomes_total",
		metric.WithDescription("Dispatcher outcomes by result"),
		metric.WithUnit("{notification}"),
	); err != nil {
		return nil, err
	}

	if m.DeliveryTotal, err = meter.Int64Counter(
		"monitor_delivery_attempts_total",
		metric.WithDescription("Provider delivery attempts by channel and status"),
		metric.WithUnit("{attempt}"),
	); err != nil {
		return nil, err
	}

	if m.DeliveryRetryTotal, err = meter.Int64Counter(
		"monitor_delivery_retry_total",
		metric.WithDescription("Delivery retries after transient failures"),
		metric.WithUnit("{retry}"),
	); err != nil {
		return nil, err
	}

	if m.DeliveryDuration, err = meter.Float64Histogram(
		"monitor_delivery_duration_seconds",
		metric.WithDescription("Provider call latency"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if m.CheckInsTotal, err = meter.Int64Counter(
		"checkins_recorded_total",
		metric.WithDescription("Check-ins appended to the ledger"),
		metric.WithUnit("{checkin}"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// GetMetrics 未初始化时返回 nil，下面的记录函数都做了判空
func GetMetrics() *MonitorMetrics {
	return metrics
}

func RecordScan(ctx context.Context, status string, flagged int, seconds float64) {
	m := GetMetrics()
	if m == nil {
		return
	}
	m.ScanRunsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	m.ScanDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("status", status)))
	if flagged > 0 {
		m.UsersFlaggedTotal.Add(ctx, int64(flagged))
	}
}

// RecordNotifyOutcome outcome: notified, skipped, no_contact, conflict, failed
func RecordNotifyOutcome(ctx context.Context, outcome string) {
	m := GetMetrics()
	if m == nil {
		return
	}
	m.NotifyOutcomesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func RecordDelivery(ctx context.Context, channel, status string, seconds float64) {
	m := GetMetrics()
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("channel", channel),
		attribute.String("status", status),
	)
	m.DeliveryTotal.Add(ctx, 1, attrs)
	m.DeliveryDuration.Record(ctx, seconds, attrs)
}

func RecordDeliveryRetry(ctx context.Context, channel string) {
	m := GetMetrics()
	if m == nil {
		return
	}
	m.DeliveryRetryTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("channel", channel)))
}

func RecordCheckIn(ctx context.Context) {
	m := GetMetrics()
	if m == nil {
		return
	}
	m.CheckInsTotal.Add(ctx, 1)
}
