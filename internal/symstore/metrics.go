package symstore

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	statusSuccess  = "success"
	statusNotFound = "not_found"
	statusError    = "error"

	resultFound    = "found"
	resultUnmapped = "unmapped"
	resultError    = "error"
)

type metrics struct {
	cacheOperations      *prometheus.CounterVec
	openCaches           prometheus.Gauge
	openDuration         prometheus.Histogram
	symbolicateDuration  *prometheus.HistogramVec
	symbolicateAddresses *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		cacheOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "symcache_registry_cache_operations_total",
			Help: "Open cache operations by operation (hit, miss, evict, invalidate) and status",
		}, []string{"operation", "status"}),
		openCaches: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "symcache_registry_open_caches",
			Help: "Number of caches currently held open by the registry",
		}),
		openDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "symcache_registry_open_duration_seconds",
			Help:    "Time spent opening and validating cache files",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		}),
		symbolicateDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "symcache_symbolicate_duration_seconds",
			Help:    "Time spent symbolicating one request by status",
			Buckets: []float64{.00001, .0001, .001, .01, .1, 1},
		}, []string{"status"}),
		symbolicateAddresses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "symcache_symbolicate_addresses_total",
			Help: "Addresses looked up by result",
		}, []string{"result"}),
	}

	if reg != nil {
		m.cacheOperations = registerOrGet(reg, m.cacheOperations)
		m.openCaches = registerOrGet(reg, m.openCaches)
		m.openDuration = registerOrGet(reg, m.openDuration)
		m.symbolicateDuration = registerOrGet(reg, m.symbolicateDuration)
		m.symbolicateAddresses = registerOrGet(reg, m.symbolicateAddresses)
	}
	return m
}

// registerOrGet registers c, or returns the collector already registered under the same
// descriptor so that several registries can share one prometheus.Registerer.
func registerOrGet[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return already.ExistingCollector.(T)
		}
		panic(err)
	}
	return c
}
