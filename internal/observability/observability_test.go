package observability

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	dto "github.com/prometheus/client_model/go"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/jkaninda/rubani/internal/config"
	"github.com/jkaninda/rubani/internal/llm"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func findMetric(t *testing.T, m *MetricsCollector, name string) *dto.MetricFamily {
	t.Helper()
	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("gathering metrics: %v", err)
	}
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

func counterValue(f *dto.MetricFamily, labels map[string]string) float64 {
	if f == nil {
		return 0
	}
	for _, m := range f.GetMetric() {
		match := true
		for _, l := range m.GetLabel() {
			if want, ok := labels[l.GetName()]; ok && want != l.GetValue() {
				match = false
				break
			}
		}
		if match {
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestMetricsCollectorRegistersAll(t *testing.T) {
	m := NewMetricsCollector()

	m.QueriesTotal.WithLabelValues(OutcomeMatched).Inc()
	m.QueriesTotal.WithLabelValues(OutcomeRefused).Inc()
	m.QueriesTotal.WithLabelValues(OutcomeRefused).Inc()
	m.TokenSweepsTotal.Inc()
	m.TokensSweptTotal.Add(3)
	m.ContextTruncatedPercent.Observe(42.5)

	f := findMetric(t, m, "rubani_query_total")
	if f == nil {
		t.Fatal("expected rubani_query_total to be registered")
	}
	if got := counterValue(f, map[string]string{"outcome": OutcomeRefused}); got != 2 {
		t.Errorf("refused count = %v, want 2", got)
	}
	if got := counterValue(f, map[string]string{"outcome": OutcomeMatched}); got != 1 {
		t.Errorf("matched count = %v, want 1", got)
	}

	swept := findMetric(t, m, "rubani_tokens_swept_total")
	if got := counterValue(swept, nil); got != 3 {
		t.Errorf("swept count = %v, want 3", got)
	}

	hist := findMetric(t, m, "rubani_query_context_truncated_percent")
	if hist == nil {
		t.Fatal("expected truncation histogram to be registered")
	}
	if got := hist.GetMetric()[0].GetHistogram().GetSampleCount(); got != 1 {
		t.Errorf("truncation sample count = %d, want 1", got)
	}
}

func TestRecordQuery(t *testing.T) {
	m := NewMetricsCollector()

	m.RecordQuery(OutcomeMatched)
	m.RecordQuery(OutcomeMatched)
	m.RecordQuery(OutcomeError)
	m.RecordQuery("") // handlers that never classify must not be counted

	f := findMetric(t, m, "rubani_query_total")
	if got := counterValue(f, map[string]string{"outcome": OutcomeMatched}); got != 2 {
		t.Errorf("matched count = %v, want 2", got)
	}
	if got := counterValue(f, map[string]string{"outcome": OutcomeError}); got != 1 {
		t.Errorf("error count = %v, want 1", got)
	}
	for _, metric := range f.GetMetric() {
		for _, label := range metric.GetLabel() {
			if label.GetValue() == "" {
				t.Error("empty outcome must not create a series")
			}
		}
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	m := NewMetricsCollector()

	m.RecordHTTPRequest("POST", "/api/v1/query", 200, 0.25)
	m.RecordHTTPRequest("POST", "/api/v1/query", 200, 0.05)
	m.RecordHTTPRequest("GET", "/healthz", 503, 0.01)

	f := findMetric(t, m, "rubani_http_requests_total")
	labels := map[string]string{"method": "POST", "path": "/api/v1/query", "status_code": "200"}
	if got := counterValue(f, labels); got != 2 {
		t.Errorf("query request count = %v, want 2", got)
	}
	labels = map[string]string{"method": "GET", "path": "/healthz", "status_code": "503"}
	if got := counterValue(f, labels); got != 1 {
		t.Errorf("healthz request count = %v, want 1", got)
	}
	if findMetric(t, m, "rubani_http_request_duration_seconds") == nil {
		t.Error("expected request durations to be recorded")
	}
}

func TestStartSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	_, end := StartSpan(context.Background(), tp.Tracer("test"), "query.select_tool")
	end()

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("recorded spans = %d, want 1", len(spans))
	}
	if spans[0].Name() != "query.select_tool" {
		t.Errorf("span name = %q, want query.select_tool", spans[0].Name())
	}
}

func TestStartSpanNilTracer(t *testing.T) {
	ctx := context.Background()
	got, end := StartSpan(ctx, nil, "ignored")
	if got != ctx {
		t.Error("nil tracer must return the context unchanged")
	}
	end()
}

func TestRecordersNilSafe(t *testing.T) {
	var m *MetricsCollector
	m.RecordQuery(OutcomeMatched)
	m.RecordHTTPRequest("GET", "/healthz", 200, 0.01)
}

type stubProvider struct {
	resp *llm.Response
	err  error
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) SendMessage(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	return s.resp, s.err
}

func TestInstrumentedProviderRecordsSuccess(t *testing.T) {
	m := NewMetricsCollector()
	inner := &stubProvider{resp: &llm.Response{
		Content: "ok",
		Usage:   llm.Usage{InputTokens: 120, OutputTokens: 30},
	}}
	p := NewInstrumentedProvider(inner, m, nil)

	if p.Name() != "stub" {
		t.Errorf("Name() = %q, want stub", p.Name())
	}

	resp, err := p.SendMessage(context.Background(), &llm.Request{})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("Content = %q, want ok", resp.Content)
	}

	reqs := findMetric(t, m, "rubani_llm_requests_total")
	if got := counterValue(reqs, map[string]string{"provider": "stub", "status": "success"}); got != 1 {
		t.Errorf("success request count = %v, want 1", got)
	}

	tokens := findMetric(t, m, "rubani_llm_tokens_used_total")
	if got := counterValue(tokens, map[string]string{"provider": "stub", "direction": "input"}); got != 120 {
		t.Errorf("input tokens = %v, want 120", got)
	}
	if got := counterValue(tokens, map[string]string{"provider": "stub", "direction": "output"}); got != 30 {
		t.Errorf("output tokens = %v, want 30", got)
	}
}

func TestInstrumentedProviderRecordsError(t *testing.T) {
	m := NewMetricsCollector()
	inner := &stubProvider{err: errors.New("rate limited")}
	p := NewInstrumentedProvider(inner, m, nil)

	if _, err := p.SendMessage(context.Background(), &llm.Request{}); err == nil {
		t.Fatal("expected error from inner provider")
	}

	reqs := findMetric(t, m, "rubani_llm_requests_total")
	if got := counterValue(reqs, map[string]string{"provider": "stub", "status": "error"}); got != 1 {
		t.Errorf("error request count = %v, want 1", got)
	}
}

func TestHealthChecker(t *testing.T) {
	hc := NewHealthChecker(discardLogger())
	hc.AddCheck("store", func(ctx context.Context) error { return nil })

	if got := hc.CheckHealth(); got.Status != "ok" {
		t.Errorf("liveness status = %q, want ok", got.Status)
	}

	ready := hc.CheckReady(context.Background())
	if ready.Status != "ok" {
		t.Errorf("readiness status = %q, want ok", ready.Status)
	}
	if ready.Checks["store"].Status != "ok" {
		t.Errorf("store check = %q, want ok", ready.Checks["store"].Status)
	}

	hc.AddCheck("broken", func(ctx context.Context) error { return errors.New("down") })
	ready = hc.CheckReady(context.Background())
	if ready.Status != "degraded" {
		t.Errorf("readiness status = %q, want degraded", ready.Status)
	}
	if ready.Checks["broken"].Message != "down" {
		t.Errorf("broken check message = %q, want down", ready.Checks["broken"].Message)
	}
}

func TestObservabilityDisabled(t *testing.T) {
	obs, err := New(nil, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if obs != nil {
		t.Fatal("expected nil observability when config is nil")
	}
	if obs.MetricsOrNil() != nil {
		t.Error("MetricsOrNil on nil receiver should return nil")
	}
	if obs.TracerOrNil() != nil {
		t.Error("TracerOrNil on nil receiver should return nil")
	}
}

func TestObservabilityMetricsOnly(t *testing.T) {
	cfg := &config.ObservabilityConfig{
		Metrics: &config.MetricsConfig{Enabled: true},
	}
	obs, err := New(cfg, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if obs.MetricsOrNil() == nil {
		t.Fatal("expected metrics collector when metrics enabled")
	}
	if obs.TracerOrNil() != nil {
		t.Error("expected no tracer when tracing disabled")
	}
	obs.Shutdown(context.Background())
}
