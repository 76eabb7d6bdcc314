package telemetry

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/spimrig/internal/device"
	"github.com/nerrad567/spimrig/internal/setup"
)

const namespace = "spimrig"

// Metrics holds the rig's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	events   *prometheus.CounterVec
	failures *prometheus.CounterVec
	timeouts prometheus.Counter
	snaps    prometheus.Histogram
	position *prometheus.GaugeVec
	power    *prometheus.GaugeVec
	laserOn  *prometheus.GaugeVec
}

// NewMetrics creates the collectors on a fresh registry, together with the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Completed rig operations by event type and outcome.",
		}, []string{"type", "ok"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_failures_total",
			Help:      "Backend calls that failed, by device operation.",
		}, []string{"op"}),
		timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wait_timeouts_total",
			Help:      "Waits for a busy device that hit the wait bound.",
		}),
		snaps: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "snap_duration_seconds",
			Help:      "Wall time of successful snap sequences.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		position: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage_position_micrometres",
			Help:      "Last commanded stage position by slot.",
		}, []string{"slot"}),
		power: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "laser_power_watts",
			Help:      "Last laser power setpoint by slot.",
		}, []string{"slot"}),
		laserOn: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "laser_on",
			Help:      "1 while the laser in the slot is switched on.",
		}, []string{"slot"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.events, m.failures, m.timeouts, m.snaps, m.position, m.power, m.laserOn,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Notify implements setup.Observer.
func (m *Metrics) Notify(e setup.Event) {
	m.events.WithLabelValues(string(e.Type), strconv.FormatBool(e.OK)).Inc()
	if !e.OK {
		return
	}

	switch e.Type {
	case setup.EventMove:
		if e.Position != nil {
			m.position.WithLabelValues(string(device.SlotStageX)).Set(e.Position.X)
			m.position.WithLabelValues(string(device.SlotStageY)).Set(e.Position.Y)
			m.position.WithLabelValues(string(device.SlotStageZ)).Set(e.Position.Z)
		} else if e.Value != nil && e.Slot != "" {
			m.position.WithLabelValues(string(e.Slot)).Set(*e.Value)
		}
	case setup.EventLaser:
		if e.Value != nil {
			m.power.WithLabelValues(string(e.Slot)).Set(*e.Value)
		}
		if e.On != nil {
			v := 0.0
			if *e.On {
				v = 1
			}
			m.laserOn.WithLabelValues(string(e.Slot)).Set(v)
		}
	case setup.EventSnap:
		m.snaps.Observe(e.Duration.Seconds())
	}
}

// Report implements device.FailureSink.
func (m *Metrics) Report(f device.Failure) {
	m.failures.WithLabelValues(f.Op).Inc()
	if errors.Is(f.Err, device.ErrWaitTimeout) {
		m.timeouts.Inc()
	}
}

var (
	_ setup.Observer     = (*Metrics)(nil)
	_ device.FailureSink = (*Metrics)(nil)
)
