// Package metrics holds the Prometheus collectors for pipeline runs.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	IsochroneRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "isoreach_isochrone_requests_total",
		Help: "Isochrone requests by provider and outcome (ok, cached, transient, permanent, circuit_open)",
	}, []string{"provider", "outcome"})
	IsochroneDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "isoreach_isochrone_duration_seconds",
		Help:    "Isochrone provider call duration in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"provider"})
	CacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "isoreach_isochrone_cache_lookups_total",
		Help: "Isochrone cache lookups by backend and result (hit, miss, error)",
	}, []string{"backend", "result"})
	BuildingsClassified = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "isoreach_buildings_classified_total",
		Help: "Buildings classified by region and side (inside, outside)",
	}, []string{"region", "side"})
	RegionOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "isoreach_region_outcomes_total",
		Help: "Region pipeline outcomes by region and result (ok or error kind)",
	}, []string{"region", "result"})
	RegionDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "isoreach_region_duration_seconds",
		Help:    "Wall time of one region pipeline in seconds",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"region"})
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "isoreach_http_requests_total",
		Help: "Map server requests by route and status",
	}, []string{"route", "status"})
)

func init() {
	prometheus.MustRegister(IsochroneRequests)
	prometheus.MustRegister(IsochroneDurationSeconds)
	prometheus.MustRegister(CacheLookups)
	prometheus.MustRegister(BuildingsClassified)
	prometheus.MustRegister(RegionOutcomes)
	prometheus.MustRegister(RegionDurationSeconds)
	prometheus.MustRegister(HTTPRequests)
}

// Handler exposes the default registry.
func Handler() http.Handler { return promhttp.Handler() }
