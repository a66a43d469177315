// Package metrics holds the prometheus collectors of the relay server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Relay counts store traffic handled by the relay server.
type Relay struct {
	registry *prometheus.Registry

	Requests    *prometheus.CounterVec
	Watchers    *prometheus.GaugeVec
	Frames      *prometheus.CounterVec
	RateLimited prometheus.Counter
}

func NewRelay() *Relay {
	m := &Relay{
		registry: prometheus.NewRegistry(),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: "store",
			Name:      "requests_total",
		}, []string{"op", "code"}),
		Watchers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Subsystem: "store",
			Name:      "watchers",
		}, []string{"kind"}),
		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: "store",
			Name:      "watch_frames_total",
		}, []string{"kind"}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Subsystem: "store",
			Name:      "rate_limited_total",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		m.Requests,
		m.Watchers,
		m.Frames,
		m.RateLimited,
	)
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Relay) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Relay) Registry() *prometheus.Registry { return m.registry }
