package workerpresentation

import (
	"context"
	"maps"
	"slices"

	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability/logctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// WithEventContext stores a logger for one event delivery on ctx.
// It carries event_id (generated when attrs has none), the trace and span
// ids of the handling span when valid, and the remaining attrs.
// Keep attrs low-cardinality: event name, worker, queue.
func WithEventContext(ctx context.Context, base observability.Logger, attrs map[string]string) context.Context {
	base = logctx.FromOr(ctx, base)

	evtID := attrs["event_id"]
	if evtID == "" {
		evtID = uuid.NewString()
	}
	fields := []observability.Field{observability.F("event_id", evtID)}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}

	for _, k := range slices.Sorted(maps.Keys(attrs)) {
		if k == "event_id" || attrs[k] == "" {
			continue
		}
		fields = append(fields, observability.F(k, attrs[k]))
	}

	return logctx.With(ctx, base.With(fields...))
}
