package observe

import (
	"net/http"
	"net/http/httptest"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// newTestHandler wraps a trivial handler in the middleware with a fresh
// Metrics and an in-memory span recorder installed as the global tracer.
func newTestHandler(t *testing.T, inner http.HandlerFunc) (http.Handler, *sdkmetric.ManualReader, *tracetest.SpanRecorder) {
	t.Helper()
	m, reader := newTestMetrics(t)

	sr := tracetest.NewSpanRecorder()
	installTracerProvider(t, sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)))

	return Middleware(m)(inner), reader, sr
}

func TestMiddlewareSetsCorrelationID(t *testing.T) {
	h, _, _ := newTestHandler(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/research", nil))

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("X-Correlation-ID") == "" {
		t.Error("X-Correlation-ID header not set")
	}
	if rec.Header().Get("Traceparent") == "" {
		t.Error("traceparent header not injected")
	}
}

func TestMiddlewareRecordsDuration(t *testing.T) {
	h, reader, _ := newTestHandler(t, func(w http.ResponseWriter, r *http.Request) {})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat/messages", nil))

	rm := collect(t, reader)
	met := findMetric(rm, "scholarpipe.http.request.duration")
	if met == nil {
		t.Fatal("http request duration metric not recorded")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("metric data type = %T, want Histogram[float64]", met.Data)
	}
	if len(hist.DataPoints) != 1 {
		t.Fatalf("data points = %d, want 1", len(hist.DataPoints))
	}
	dp := hist.DataPoints[0]
	if dp.Count != 1 {
		t.Errorf("count = %d, want 1", dp.Count)
	}
	attrs := map[string]string{}
	for _, kv := range dp.Attributes.ToSlice() {
		attrs[string(kv.Key)] = kv.Value.AsString()
	}
	if attrs["method"] != http.MethodPost || attrs["path"] != "/api/chat/messages" {
		t.Errorf("attributes = %v, want method=POST path=/api/chat/messages", attrs)
	}
}

func TestMiddlewareEmitsServerSpan(t *testing.T) {
	h, _, sr := newTestHandler(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/research/res_abc", nil))

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	span := spans[0]
	if got, want := span.Name(), "HTTP GET /api/research/res_abc"; got != want {
		t.Errorf("span name = %q, want %q", got, want)
	}

	var status int64 = -1
	for _, kv := range span.Attributes() {
		if kv.Key == "http.response.status_code" {
			status = kv.Value.AsInt64()
		}
	}
	if status != http.StatusNotFound {
		t.Errorf("span status attribute = %d, want 404", status)
	}
}

func TestMiddlewareContinuesIncomingTrace(t *testing.T) {
	h, _, _ := newTestHandler(t, func(w http.ResponseWriter, r *http.Request) {})

	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Correlation-ID"); got != traceID {
		t.Errorf("X-Correlation-ID = %q, want incoming trace id %q", got, traceID)
	}
}
