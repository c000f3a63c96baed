package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// routedHandler serves a few chattervc-shaped routes behind the middleware.
func routedHandler(t *testing.T) (http.Handler, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/audio/voices", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Seen-CID", CorrelationID(r.Context()))
		_, _ = w.Write([]byte(`{"voices":[]}`))
	})
	mux.HandleFunc("POST /v1/audio/speech", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "synthesis failed", http.StatusInternalServerError)
	})
	return Middleware(m)(mux), reader
}

func attrValue(attrs []attribute.KeyValue, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range attrs {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestMiddleware_Routes(t *testing.T) {
	exp := installTracer(t)
	logs := captureLog(t)
	h, reader := routedHandler(t)

	tests := []struct {
		method, path string
		wantStatus   int
		wantSpan     string
		wantRoute    string
	}{
		{"GET", "/v1/audio/voices", 200, "HTTP GET /v1/audio/voices", "GET /v1/audio/voices"},
		{"POST", "/v1/audio/speech", 500, "HTTP POST /v1/audio/speech", "POST /v1/audio/speech"},
		{"GET", "/nope", 404, "HTTP GET /nope", "/nope"},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		if rec.Code != tt.wantStatus {
			t.Errorf("%s %s: status = %d, want %d", tt.method, tt.path, rec.Code, tt.wantStatus)
		}
		cid := rec.Header().Get("X-Correlation-ID")
		if len(cid) != 32 {
			t.Errorf("%s %s: X-Correlation-ID = %q", tt.method, tt.path, cid)
		}
		if seen := rec.Header().Get("X-Seen-CID"); seen != "" && seen != cid {
			t.Errorf("handler saw correlation ID %q, response carries %q", seen, cid)
		}
	}

	spans := exp.GetSpans()
	if len(spans) != len(tests) {
		t.Fatalf("got %d spans, want %d", len(spans), len(tests))
	}
	for i, tt := range tests {
		if spans[i].Name != tt.wantSpan {
			t.Errorf("span %d name = %q, want %q", i, spans[i].Name, tt.wantSpan)
		}
		v, ok := attrValue(spans[i].Attributes, "http.response.status_code")
		if !ok || v.AsInt64() != int64(tt.wantStatus) {
			t.Errorf("span %q status attribute = %v", spans[i].Name, v.Emit())
		}
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "chattervc.http.request.duration")
	if met == nil {
		t.Fatal("http duration histogram not recorded")
	}
	routes := map[string]uint64{}
	for _, dp := range met.Data.(metricdata.Histogram[float64]).DataPoints {
		v, _ := dp.Attributes.Value("path")
		routes[v.AsString()] += dp.Count
	}
	for _, tt := range tests {
		if routes[tt.wantRoute] != 1 {
			t.Errorf("histogram count for %q = %d, want 1 (all: %v)", tt.wantRoute, routes[tt.wantRoute], routes)
		}
	}

	if !strings.Contains(logs.String(), "level=WARN msg=\"request completed\"") {
		t.Errorf("5xx not logged at warn level:\n%s", logs)
	}
}

func TestMiddleware_PropagatesTraceparent(t *testing.T) {
	installTracer(t)
	h, _ := routedHandler(t)

	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	req := httptest.NewRequest("GET", "/v1/audio/voices", nil)
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Seen-CID"); got != traceID {
		t.Errorf("handler correlation ID = %q, want %q", got, traceID)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != traceID {
		t.Errorf("X-Correlation-ID = %q, want %q", got, traceID)
	}
	if tp := rec.Header().Get("traceparent"); !strings.Contains(tp, traceID) {
		t.Errorf("traceparent not injected into response, got %q", tp)
	}
}
