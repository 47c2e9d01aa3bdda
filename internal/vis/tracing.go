package vis

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/netlabworks/vlansim/internal/vis"

// startCommandSpan opens a server span for one WebSocket command.
func startCommandSpan(ctx context.Context, command string, extra ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer(tracerName)
	attrs := make([]attribute.KeyValue, 0, len(extra)+1)
	attrs = append(attrs, attribute.String("sim.command", command))
	attrs = append(attrs, extra...)
	return tracer.Start(ctx, "Sim/"+command,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attrs...),
	)
}
