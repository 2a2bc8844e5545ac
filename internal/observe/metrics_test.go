package observe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestCountersRecordWithAttributes(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.SessionsStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", "rapid")))
	m.SessionsStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", "rapid")))
	m.LevelUps.Add(ctx, 2, metric.WithAttributes(attribute.String("ladder", "player")))

	rm := collect(t, reader)
	started := findMetric(rm, "songquiz.sessions.started")
	if started == nil {
		t.Fatalf("sessions.started not found")
	}
	sum, ok := started.Data.(metricdata.Sum[int64])
	if !ok || len(sum.DataPoints) != 1 {
		t.Fatalf("unexpected data %#v", started.Data)
	}
	if sum.DataPoints[0].Value != 2 {
		t.Fatalf("expected 2 rapid sessions, got %d", sum.DataPoints[0].Value)
	}
	if v, ok := sum.DataPoints[0].Attributes.Value("mode"); !ok || v.AsString() != "rapid" {
		t.Fatalf("expected mode attribute, got %v", sum.DataPoints[0].Attributes)
	}

	levels := findMetric(rm, "songquiz.level_ups")
	if levels == nil || levels.Data.(metricdata.Sum[int64]).DataPoints[0].Value != 2 {
		t.Fatalf("expected 2 level ups, got %#v", levels)
	}
}

func TestMiddlewareRecordsDuration(t *testing.T) {
	m, reader := newTestMetrics(t)
	h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/progress/p1", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("status not passed through: %d", rec.Code)
	}

	hist := findMetric(collect(t, reader), "songquiz.http.request.duration")
	if hist == nil {
		t.Fatalf("http duration not recorded")
	}
	data := hist.Data.(metricdata.Histogram[float64])
	if len(data.DataPoints) != 1 || data.DataPoints[0].Count != 1 {
		t.Fatalf("expected one observation, got %#v", data.DataPoints)
	}
}

func TestInitProviderServesPrometheus(t *testing.T) {
	handler, shutdown, err := InitProvider(context.Background(), ProviderConfig{ServiceVersion: "test"})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	m, err := NewMetrics(otel.GetMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.SessionsCompleted.Add(context.Background(), 3)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "songquiz_sessions_completed") {
		t.Fatalf("expected completed sessions in scrape output, got:\n%s", body)
	}
}
