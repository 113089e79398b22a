package otel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	eventbus "github.com/hanpama/graphpager/internal/eventbus"
	events "github.com/hanpama/graphpager/internal/events"
	reqid "github.com/hanpama/graphpager/internal/reqid"
)

func TestSubscriberRecordsSpans(t *testing.T) {
	eventbus.Use(eventbus.New())
	t.Cleanup(func() { eventbus.Use(nil) })

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	unsubscribe := newSubscriber(tp.Tracer("test")).register()
	defer unsubscribe()

	ctx, _ := reqid.NewContext(context.Background())
	eventbus.Publish(ctx, events.HTTPStart{Query: "issues", Endpoint: "http://example.test", Attempt: 1})
	eventbus.Publish(ctx, events.HTTPFinish{Query: "issues", Attempt: 1, Status: 502, Err: errors.New("bad gateway")})
	eventbus.Publish(ctx, events.HTTPStart{Query: "issues", Endpoint: "http://example.test", Attempt: 2})
	eventbus.Publish(ctx, events.HTTPFinish{Query: "issues", Attempt: 2, Status: 200})
	eventbus.Publish(ctx, events.ScanStart{Query: "issues", NodeCost: 10})
	eventbus.Publish(ctx, events.ScanFinish{Query: "issues", Nodes: 3, Continuations: 1})

	spans := rec.Ended()
	require.Len(t, spans, 3)
	assert.Equal(t, "http.request", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "http.request", spans[1].Name())
	assert.Equal(t, codes.Unset, spans[1].Status().Code)
	assert.Equal(t, "graphql.scan", spans[2].Name())
}

func TestFinishWithoutStartIsIgnored(t *testing.T) {
	eventbus.Use(eventbus.New())
	t.Cleanup(func() { eventbus.Use(nil) })

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	unsubscribe := newSubscriber(tp.Tracer("test")).register()
	defer unsubscribe()

	eventbus.Publish(context.Background(), events.ScanFinish{Query: "x"})
	assert.Empty(t, rec.Ended())
}

func TestSetupWithoutEndpoint(t *testing.T) {
	shutdown, err := Setup("", "graphpager")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
