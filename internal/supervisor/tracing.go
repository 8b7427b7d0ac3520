// Tracing instrumentation for agent invocations.
package supervisor

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vinayprograms/ocbridge/internal/invoke"
)

// tracer is the global tracer; a no-op unless the host process installed a
// trace provider.
func tracer() trace.Tracer {
	return otel.Tracer("ocbridge/supervisor")
}

// startInvokeSpan starts a span for an agent invocation.
func startInvokeSpan(ctx context.Context, inv Invocation) (context.Context, trace.Span) {
	ctx, span := tracer().Start(ctx, "agent.invoke")
	span.SetAttributes(
		attribute.Int64("agent.actor_id", inv.ActorID),
		attribute.String("agent.cwd", inv.Dir),
		attribute.Bool("agent.attached", invoke.Attached(inv.Argv)),
	)
	return ctx, span
}

// endInvokeSpan ends the invocation span with result info.
func endInvokeSpan(span trace.Span, sessionID string, err error) {
	if sessionID != "" {
		span.SetAttributes(attribute.String("agent.session_id", sessionID))
	}
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}
