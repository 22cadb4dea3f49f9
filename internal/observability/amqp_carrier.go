package observability

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// AMQPHeaders adapts message headers to a propagation.TextMapCarrier.
type AMQPHeaders amqp.Table

var _ propagation.TextMapCarrier = AMQPHeaders{}

func (h AMQPHeaders) Get(key string) string {
	v, ok := h[key]
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	}
	return ""
}

func (h AMQPHeaders) Set(key, value string) {
	h[key] = value
}

func (h AMQPHeaders) Keys() []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	return keys
}

// InjectHeaders returns a header table carrying the trace context of ctx
func InjectHeaders(ctx context.Context) amqp.Table {
	headers := amqp.Table{}
	otel.GetTextMapPropagator().Inject(ctx, AMQPHeaders(headers))
	return headers
}

// ExtractContext connects the consumer span to the producer's trace
func ExtractContext(ctx context.Context, headers amqp.Table) context.Context {
	if headers == nil {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, AMQPHeaders(headers))
}
