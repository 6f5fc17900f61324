package outbox_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	domoutbox "github.com/Zhima-Mochi/minishop-cart/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability/logctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type namedEvent string

func (e namedEvent) EventName() string { return string(e) }

func TestBus_DeliversToSubscribers(t *testing.T) {
	bus := outbox.NewBus(nil)

	var mu sync.Mutex
	var got []string
	record := func(tag string) domoutbox.Handler {
		return func(_ context.Context, e domoutbox.Event) error {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, tag+":"+e.EventName())
			return nil
		}
	}
	bus.Subscribe("cart.deleted", record("a"))
	bus.Subscribe("cart.deleted", record("b"))
	bus.Subscribe("cart.item_removed", record("a"))

	bus.Start(t.Context())
	require.NoError(t, bus.Publish(t.Context(), namedEvent("cart.deleted")))
	require.NoError(t, bus.Publish(t.Context(), namedEvent("unrouted")))
	require.NoError(t, bus.Stop(t.Context()))

	assert.ElementsMatch(t, []string{"a:cart.deleted", "b:cart.deleted"}, got)
}

func TestBus_StopDrainsQueue(t *testing.T) {
	bus := outbox.NewBus(nil, outbox.WithConcurrency(1))

	var handled atomic.Int32
	bus.Subscribe("tick", func(context.Context, domoutbox.Event) error {
		time.Sleep(time.Millisecond)
		handled.Add(1)
		return nil
	})
	bus.Start(t.Context())
	for range 20 {
		require.NoError(t, bus.Publish(t.Context(), namedEvent("tick")))
	}

	require.NoError(t, bus.Stop(t.Context()))
	assert.EqualValues(t, 20, handled.Load())

	err := bus.Publish(t.Context(), namedEvent("tick"))
	require.ErrorIs(t, err, outbox.ErrClosed)
}

func TestBus_StopTimeout(t *testing.T) {
	bus := outbox.NewBus(nil)
	release := make(chan struct{})
	bus.Subscribe("slow", func(context.Context, domoutbox.Event) error {
		<-release
		return nil
	})
	bus.Start(t.Context())
	require.NoError(t, bus.Publish(t.Context(), namedEvent("slow")))

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, bus.Stop(ctx), context.DeadlineExceeded)

	close(release)
	require.NoError(t, bus.Stop(t.Context()))
}

func TestBus_CarriesRequestContext(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	bus := outbox.NewBus(zaplogger.Wrap(zap.New(core)))

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3},
		SpanID:     trace.SpanID{4, 5, 6},
		TraceFlags: trace.FlagsSampled,
	})

	type seen struct {
		span      trace.SpanContext
		requestID string
	}
	got := make(chan seen, 1)
	bus.Subscribe("cart.deleted", func(ctx context.Context, _ domoutbox.Event) error {
		got <- seen{span: trace.SpanContextFromContext(ctx), requestID: logctx.RequestID(ctx)}
		return errors.New("handler failed")
	})
	bus.Start(t.Context())

	ctx := trace.ContextWithSpanContext(t.Context(), sc)
	ctx = logctx.WithRequestID(ctx, "req-42")
	require.NoError(t, bus.Publish(ctx, namedEvent("cart.deleted")))
	require.NoError(t, bus.Stop(t.Context()))

	s := <-got
	assert.Equal(t, sc.TraceID(), s.span.TraceID())
	assert.Equal(t, sc.SpanID(), s.span.SpanID())
	assert.True(t, s.span.IsRemote())
	assert.Equal(t, "req-42", s.requestID)

	failed := logs.FilterMessage("event_handler_error").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "req-42", failed[0].ContextMap()["request_id"])
}

func TestBus_RecoversHandlerPanic(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	bus := outbox.NewBus(zaplogger.Wrap(zap.New(core)))

	var after atomic.Bool
	bus.Subscribe("boom", func(context.Context, domoutbox.Event) error { panic("kaboom") })
	bus.Subscribe("fine", func(context.Context, domoutbox.Event) error {
		after.Store(true)
		return nil
	})
	bus.Start(t.Context())
	require.NoError(t, bus.Publish(t.Context(), namedEvent("boom")))
	require.NoError(t, bus.Publish(t.Context(), namedEvent("fine")))
	require.NoError(t, bus.Stop(t.Context()))

	assert.Equal(t, 1, logs.FilterMessage("event_handler_panic").Len())
	assert.True(t, after.Load())
}

func TestBus_StopWithoutStart(t *testing.T) {
	bus := outbox.NewBus(nil)
	require.NoError(t, bus.Stop(t.Context()))
	require.ErrorIs(t, bus.Publish(t.Context(), namedEvent("x")), outbox.ErrClosed)
}
