package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/staffdeck/staffdeck/internal/config"
)

// installTracing wires a recording tracer provider and W3C propagator into the
// global otel state for a single test, restoring the previous state afterwards.
func installTracing(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(recorder),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	prevTP := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})

	return recorder
}

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), config.TracingConfig{Enabled: false}, "staffdeck", "test")
	if err != nil {
		t.Fatalf("InitTracing() error = %v", err)
	}
	if shutdown == nil {
		t.Fatal("shutdown func is nil")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() error = %v", err)
	}
}

func TestInitTracingStdoutExporter(t *testing.T) {
	cfg := config.TracingConfig{
		Enabled:      true,
		Exporter:     "stdout",
		SamplingRate: 1.0,
	}
	shutdown, err := InitTracing(context.Background(), cfg, "staffdeck", "test")
	if err != nil {
		t.Fatalf("InitTracing() error = %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() error = %v", err)
	}
}

func TestNewExporterUnsupported(t *testing.T) {
	_, err := newExporter(context.Background(), config.TracingConfig{Exporter: "jaeger"})
	if err == nil {
		t.Fatal("newExporter() error = nil for unsupported exporter")
	}
	if !strings.Contains(err.Error(), "unsupported exporter") {
		t.Errorf("error = %q, want mention of unsupported exporter", err)
	}
}

func TestNewSampler(t *testing.T) {
	tests := []struct {
		name string
		rate float64
	}{
		{"zero defaults to ratio", 0},
		{"negative defaults to ratio", -1},
		{"fractional ratio", 0.5},
		{"full rate always samples", 1.0},
		{"above one clamps", 2.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if sampler := newSampler(config.TracingConfig{SamplingRate: tt.rate}); sampler == nil {
				t.Fatal("newSampler() = nil")
			}
		})
	}
}

func TestTracingMiddleware(t *testing.T) {
	recorder := installTracing(t)

	var gotTraceID string
	handler := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTraceID = TraceIDFromContext(r.Context())
		w.WriteHeader(http.StatusBadGateway)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ui/screens", nil))

	if gotTraceID == "" {
		t.Error("handler saw no trace ID in request context")
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	span := spans[0]
	if span.Name() != "GET /ui/screens" {
		t.Errorf("span name = %q, want %q", span.Name(), "GET /ui/screens")
	}
	if span.Status().Code.String() != "Error" {
		t.Errorf("span status = %v, want Error for 502 response", span.Status().Code)
	}
}

func TestTracingMiddlewareExtractsTraceparent(t *testing.T) {
	installTracing(t)

	const inboundTraceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	var gotTraceID string
	handler := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTraceID = TraceIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/ui/screens", nil)
	req.Header.Set("Traceparent", "00-"+inboundTraceID+"-00f067aa0ba902b7-01")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if gotTraceID != inboundTraceID {
		t.Errorf("trace ID = %q, want %q from inbound traceparent", gotTraceID, inboundTraceID)
	}
}

func TestTraceIDFromContextNoSpan(t *testing.T) {
	if id := TraceIDFromContext(context.Background()); id != "" {
		t.Errorf("TraceIDFromContext() = %q, want empty", id)
	}
}

func TestEndSpanWithError(t *testing.T) {
	recorder := installTracing(t)

	_, span := StartSpan(context.Background(), "backend.list")
	EndSpanWithError(span, errors.New("backend unreachable"))

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	if spans[0].Status().Code.String() != "Error" {
		t.Errorf("span status = %v, want Error", spans[0].Status().Code)
	}
	if len(spans[0].Events()) == 0 {
		t.Error("span has no recorded error event")
	}
}

func TestInjectTraceHeaders(t *testing.T) {
	installTracing(t)

	ctx, span := StartSpan(context.Background(), "outbound")
	defer span.End()

	headers := http.Header{}
	InjectTraceHeaders(ctx, headers)
	if headers.Get("Traceparent") == "" {
		t.Error("traceparent header not injected")
	}
}
