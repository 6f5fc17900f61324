package workerpresentation

import (
	"context"

	"github.com/Zhima-Mochi/minishop-cart/internal/application"
	appcart "github.com/Zhima-Mochi/minishop-cart/internal/application/cart"
	domcart "github.com/Zhima-Mochi/minishop-cart/internal/domain/cart"
	domoutbox "github.com/Zhima-Mochi/minishop-cart/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability/logctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const workerRestock = "restock_worker"

// RestockWorker turns cart removal events into restock commands.
type RestockWorker struct {
	restock application.UseCase[appcart.RestockCommand, *appcart.RestockResult]
	log     observability.Logger
	tracer  observability.Tracer
}

func NewRestockWorker(
	restock application.UseCase[appcart.RestockCommand, *appcart.RestockResult],
	tel observability.Observability,
) *RestockWorker {
	if tel == nil {
		tel = observability.Nop()
	}
	return &RestockWorker{
		restock: restock,
		log:     tel.Logger().With(observability.F("component", workerRestock)),
		tracer:  tel.Tracer(),
	}
}

func (w *RestockWorker) Register(sub domoutbox.Subscriber) {
	sub.Subscribe(domcart.ItemRemovedEvent{}.EventName(), w.Handle)
	sub.Subscribe(domcart.CartDeletedEvent{}.EventName(), w.Handle)
}

func (w *RestockWorker) Handle(ctx context.Context, e domoutbox.Event) error {
	var cmd appcart.RestockCommand
	switch evt := e.(type) {
	case domcart.ItemRemovedEvent:
		cmd = appcart.RestockCommand{CartID: evt.CartID, Reason: evt.EventName(), Lines: []domcart.Line{evt.Line}}
	case domcart.CartDeletedEvent:
		cmd = appcart.RestockCommand{CartID: evt.CartID, Reason: evt.EventName(), Lines: evt.Lines}
	default:
		return nil
	}

	ctx, span := w.tracer.Start(ctx, "Worker.Restock",
		attribute.String("event", e.EventName()),
		attribute.String("cart.id", cmd.CartID),
	)
	defer span.End()
	span.SetAttributes(attribute.Int("restock.lines", len(cmd.Lines)))

	ctx = WithEventContext(ctx, w.log, map[string]string{
		"event":  e.EventName(),
		"worker": workerRestock,
	})
	logger := logctx.FromOr(ctx, w.log)

	res, err := w.restock.Execute(ctx, cmd)
	if err != nil {
		span.RecordError(err)
		logger.Warn("restock_failed",
			observability.F("cart_id", cmd.CartID),
			observability.F("error", err),
		)
		return err
	}

	span.AddEvent("restocked", trace.WithAttributes(
		attribute.Int("restocked", res.Restocked),
		attribute.Int("skipped", res.Skipped),
	))
	logger.Info("restock_succeeded",
		observability.F("cart_id", cmd.CartID),
		observability.F("restocked", res.Restocked),
		observability.F("skipped", res.Skipped),
	)
	return nil
}
