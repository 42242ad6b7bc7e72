package pipeline

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

func withChannel(name string) trace.SpanStartOption {
	return trace.WithAttributes(attribute.String("pipeline.channel", name))
}
