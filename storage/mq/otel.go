package mq

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("estoubem.rabbitmq")

// MessageHeaderCarrier 实现 propagation.TextMapCarrier，trace 上下文随消息头传递
type MessageHeaderCarrier struct {
	Headers amqp.Table
}

func (m *MessageHeaderCarrier) Get(key string) string {
	if val, ok := m.Headers[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

func (m *MessageHeaderCarrier) Set(key, value string) {
	if m.Headers == nil {
		m.Headers = make(amqp.Table)
	}
	m.Headers[key] = value
}

func (m *MessageHeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(m.Headers))
	for k := range m.Headers {
		keys = append(keys, k)
	}
	return keys
}

// injectHeaders 把当前 trace 上下文写入发布消息头
func injectHeaders(ctx context.Context, headers amqp.Table) amqp.Table {
	carrier := &MessageHeaderCarrier{Headers: headers}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier.Headers
}

// startConsumeSpan 从消息头恢复上下文并开启消费 span
func startConsumeSpan(ctx context.Context, queue string, msg amqp.Delivery) (context.Context, trace.Span) {
	ctx = otel.GetTextMapPropagator().Extract(ctx, &MessageHeaderCarrier{Headers: msg.Headers})
	return tracer.Start(ctx, "rabbitmq.process "+queue,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			semconv.MessagingSystem("rabbitmq"),
			semconv.MessagingDestinationName(queue),
			semconv.MessagingMessageID(msg.MessageId),
			attribute.String("messaging.rabbitmq.routing_key", msg.RoutingKey),
		),
	)
}
