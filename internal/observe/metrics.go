// Package observe holds the service's OpenTelemetry metric instruments and
// the Prometheus bridge that exposes them on /metrics.
//
// Tests should build their own Metrics with NewMetrics over a ManualReader
// instead of using DefaultMetrics.
package observe

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "song-quiz-service"

// Metrics holds every instrument the service records.
type Metrics struct {
	// SessionsStarted counts new sessions by attribute "mode".
	SessionsStarted metric.Int64Counter
	// SessionsCompleted counts sessions that reached the summary and committed.
	SessionsCompleted metric.Int64Counter
	// SessionsAbandoned counts sessions dropped before the summary.
	SessionsAbandoned metric.Int64Counter
	// ActiveSessions is the number of live sessions.
	ActiveSessions metric.Int64UpDownCounter

	// AnswersScored counts scored answers by "outcome" and "special".
	AnswersScored metric.Int64Counter
	// PointsAwarded sums points committed at session end.
	PointsAwarded metric.Int64Counter
	// LevelUps counts level boundaries crossed by "ladder" (player|playlist).
	LevelUps metric.Int64Counter

	// CommentaryFallbacks counts canned lines used in place of generated ones.
	CommentaryFallbacks metric.Int64Counter
	// ProviderDuration tracks external provider latency by "provider".
	ProviderDuration metric.Float64Histogram
	// PersistenceErrors counts failed progress reads and writes by "op".
	PersistenceErrors metric.Int64Counter

	// HTTPRequestDuration tracks request latency by "method" and "path".
	HTTPRequestDuration metric.Float64Histogram
}

var latencyBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// NewMetrics creates every instrument from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.SessionsStarted, err = m.Int64Counter("songquiz.sessions.started",
		metric.WithDescription("Game sessions started, by mode."),
	); err != nil {
		return nil, err
	}
	if met.SessionsCompleted, err = m.Int64Counter("songquiz.sessions.completed",
		metric.WithDescription("Game sessions committed at the summary, by mode."),
	); err != nil {
		return nil, err
	}
	if met.SessionsAbandoned, err = m.Int64Counter("songquiz.sessions.abandoned",
		metric.WithDescription("Game sessions abandoned before the summary."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("songquiz.sessions.active",
		metric.WithDescription("Number of live game sessions."),
	); err != nil {
		return nil, err
	}
	if met.AnswersScored, err = m.Int64Counter("songquiz.answers.scored",
		metric.WithDescription("Scored answers by outcome."),
	); err != nil {
		return nil, err
	}
	if met.PointsAwarded, err = m.Int64Counter("songquiz.points.awarded",
		metric.WithDescription("Points committed to progression."),
	); err != nil {
		return nil, err
	}
	if met.LevelUps, err = m.Int64Counter("songquiz.level_ups",
		metric.WithDescription("Level boundaries crossed, by ladder."),
	); err != nil {
		return nil, err
	}
	if met.CommentaryFallbacks, err = m.Int64Counter("songquiz.commentary.fallbacks",
		metric.WithDescription("Canned commentary lines used, by moment."),
	); err != nil {
		return nil, err
	}
	if met.ProviderDuration, err = m.Float64Histogram("songquiz.provider.duration",
		metric.WithDescription("Latency of commentary and speech providers."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PersistenceErrors, err = m.Int64Counter("songquiz.persistence.errors",
		metric.WithDescription("Failed progress reads and writes, by operation."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("songquiz.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a process-wide instance built on the global
// MeterProvider. Call it after InitProvider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}
