// Package telemetry provides Prometheus metrics, the metrics HTTP endpoint,
// and OpenTelemetry tracing setup.
package telemetry

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"tools.zach/dev/embycord/internal/discord"
	"tools.zach/dev/embycord/internal/media"
)

var (
	once sync.Once

	Ticks            prometheus.Counter
	TickDuration     prometheus.Observer
	SourceFailures   prometheus.Counter
	TransportCalls   *prometheus.CounterVec
	ArtworkFallbacks *prometheus.CounterVec
	ActiveUsers      prometheus.Gauge
	Renders          *prometheus.CounterVec
	Suppressed       prometheus.Counter
)

// Init registers metrics with the default registry. Safe to call repeatedly.
func Init() {
	once.Do(func() {
		Ticks = promauto.NewCounter(prometheus.CounterOpts{Name: "embycord_ticks_total", Help: "Reconciliation ticks run"})
		TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "embycord_tick_duration_seconds", Help: "Reconciliation tick duration seconds", Buckets: prometheus.DefBuckets})
		SourceFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "embycord_source_failures_total", Help: "Ticks aborted because sessions could not be listed"})
		TransportCalls = promauto.NewCounterVec(prometheus.CounterOpts{Name: "embycord_transport_calls_total", Help: "Discord message calls by operation and result"}, []string{"op", "result"})
		ArtworkFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{Name: "embycord_artwork_fallbacks_total", Help: "Renders whose preferred artwork was unavailable"}, []string{"kind"})
		ActiveUsers = promauto.NewGauge(prometheus.GaugeOpts{Name: "embycord_active_users", Help: "Watched users currently displayed"})
		Renders = promauto.NewCounterVec(prometheus.CounterOpts{Name: "embycord_renders_total", Help: "Presence messages published by media kind"}, []string{"kind"})
		Suppressed = promauto.NewCounter(prometheus.CounterOpts{Name: "embycord_suppressed_total", Help: "Session observations hidden by rating"})
	})
}

// Recorder forwards reconciliation events to the registered metrics.
type Recorder struct{}

// NewRecorder initializes metrics and returns a Recorder.
func NewRecorder() Recorder {
	Init()
	return Recorder{}
}

// TickDone records one tick. A non-nil err means the session source failed.
func (Recorder) TickDone(d time.Duration, err error) {
	Ticks.Inc()
	TickDuration.Observe(d.Seconds())
	if err != nil {
		SourceFailures.Inc()
	}
}

// Rendered counts a published presence message.
func (Recorder) Rendered(k media.Kind) { Renders.WithLabelValues(k.String()).Inc() }

// Suppressed counts a hidden session.
func (Recorder) Suppressed() { Suppressed.Inc() }

// ActiveUsers sets the active user gauge.
func (Recorder) ActiveUsers(n int) { ActiveUsers.Set(float64(n)) }

// TransportCall counts one Discord call.
func (Recorder) TransportCall(op string, err error) {
	TransportCalls.WithLabelValues(op, callResult(err)).Inc()
}

// ArtworkFallback counts a render that lost its preferred image.
func (Recorder) ArtworkFallback(k media.Kind) {
	ArtworkFallbacks.WithLabelValues(k.String()).Inc()
}

func callResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, discord.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
