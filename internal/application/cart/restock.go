package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-cart/internal/application"
	domcart "github.com/Zhima-Mochi/minishop-cart/internal/domain/cart"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability/logctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	useCaseRestock      = "cart.restock"
	defaultRestockTries = 3
)

// RestockCommand returns the units of lines that left cart CartID.
type RestockCommand struct {
	CartID string
	Reason string
	Lines  []domcart.Line
}

type RestockResult struct {
	Restocked int
	Skipped   int
	Failed    int
}

// RestockUseCase puts units back with compare-and-set stock writes,
// re-reading and retrying when a concurrent writer wins.
type RestockUseCase struct {
	products    ProductGateway
	maxAttempts int

	log          observability.Logger
	tracer       observability.Tracer
	reqCounter   observability.Counter
	durHistogram observability.Histogram
}

var _ application.UseCase[RestockCommand, *RestockResult] = (*RestockUseCase)(nil)

func NewRestockUseCase(products ProductGateway, maxAttempts int, tel observability.Observability) *RestockUseCase {
	if tel == nil {
		tel = observability.Nop()
	}
	if maxAttempts < 1 {
		maxAttempts = defaultRestockTries
	}
	return &RestockUseCase{
		products:     products,
		maxAttempts:  maxAttempts,
		log:          tel.Logger().With(observability.F("service", cartService)),
		tracer:       tel.Tracer(),
		reqCounter:   tel.Metrics().Counter(observability.MUsecaseRequests),
		durHistogram: tel.Metrics().Histogram(observability.MUsecaseDuration),
	}
}

func (uc *RestockUseCase) Execute(ctx context.Context, cmd RestockCommand) (_ *RestockResult, err error) {
	logger := logctx.FromOr(ctx, uc.log).With(
		observability.F("use_case", useCaseRestock),
		observability.F("cart_id", cmd.CartID),
		observability.F("reason", cmd.Reason),
	)
	ctx, span := uc.tracer.Start(ctx, spanPrefix+"Restock",
		attribute.String("use_case", useCaseRestock),
		attribute.String("cart.id", cmd.CartID),
		attribute.Int("restock.lines", len(cmd.Lines)),
	)
	start := time.Now()
	result := &RestockResult{}

	defer func() {
		outcome, status := "success", "OK"
		if err != nil {
			outcome, status = "error", "RESTOCK_INCOMPLETE"
			span.RecordError(err)
			span.SetStatus(codes.Error, status)
		} else {
			span.SetStatus(codes.Ok, status)
		}
		span.End()

		latency := time.Since(start).Seconds()
		uc.reqCounter.Add(1,
			observability.L("use_case", useCaseRestock),
			observability.L("outcome", outcome),
		)
		uc.durHistogram.Observe(latency, observability.L("use_case", useCaseRestock))

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", status),
			observability.F("latency_seconds", latency),
			observability.F("restocked", result.Restocked),
			observability.F("skipped", result.Skipped),
			observability.F("failed", result.Failed),
		}
		fields = append(fields, observability.TraceFields(ctx)...)
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
		}
		logger.Info("use_case_done", fields...)
	}()

	var errs []error
	for _, line := range cmd.Lines {
		if line.Quantity < 1 {
			result.Skipped++
			continue
		}
		switch lineErr := uc.restockLine(ctx, line); {
		case lineErr == nil:
			result.Restocked++
		case errors.Is(lineErr, application.ErrNotFound):
			// the product is gone; nothing to return the units to
			result.Skipped++
			logger.Warn("restock_product_missing", observability.F("product_id", line.ProductID))
		default:
			result.Failed++
			errs = append(errs, fmt.Errorf("restock product %s: %w", line.ProductID, lineErr))
		}
	}
	return result, errors.Join(errs...)
}

func (uc *RestockUseCase) restockLine(ctx context.Context, line domcart.Line) error {
	var err error
	for attempt := 1; attempt <= uc.maxAttempts; attempt++ {
		var p ProductSnapshot
		p, err = uc.products.FetchProduct(ctx, line.ProductID)
		if err != nil {
			return err
		}
		err = uc.products.AdjustStock(ctx, line.ProductID, p.Stock+line.Quantity, p.Stock)
		if err == nil || !errors.Is(err, application.ErrConflict) {
			return err
		}
	}
	return err
}
