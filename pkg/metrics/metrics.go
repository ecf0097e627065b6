// Package metrics provides Prometheus metrics for cache lookups, asset downloads and bulk warming.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups every collector the data layer updates.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	LookupsTotal        *prometheus.CounterVec // Resolve outcomes by status
	RemoteRequestsTotal *prometheus.CounterVec // Remote calls by kind and result
	AssetDownloadsTotal *prometheus.CounterVec // Asset fetches by result
	WarmItemsTotal      *prometheus.CounterVec // Bulk warm items by result
	WarmProgress        prometheus.Gauge       // Fraction of the current warm run completed
	Connectivity        prometheus.Gauge       // 1=online, 0=offline after the last probe
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		LookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dexcache_lookups_total",
				Help: "Total number of record lookups by outcome",
			},
			[]string{"outcome"}, // cache_hit, fetched, remote_unavailable, not_found, remote_fetch_failed
		),
		RemoteRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dexcache_remote_requests_total",
				Help: "Total number of remote API requests by kind and result",
			},
			[]string{"kind", "result"},
		),
		AssetDownloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dexcache_asset_downloads_total",
				Help: "Total number of asset resolutions by result",
			},
			[]string{"result"}, // cached, downloaded, failed
		),
		WarmItemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dexcache_warm_items_total",
				Help: "Total number of bulk warm items by result",
			},
			[]string{"result"}, // stored, failed
		),
		WarmProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dexcache_warm_progress_ratio",
			Help: "Completed fraction of the running bulk warm",
		}),
		Connectivity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dexcache_remote_connectivity",
			Help: "Result of the last connectivity probe (1=online, 0=offline)",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.LookupsTotal, m.RemoteRequestsTotal, m.AssetDownloadsTotal,
		m.WarmItemsTotal, m.WarmProgress, m.Connectivity,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register dexcache metrics: %w", err)
		}
	}
	return m, nil
}

// ObserveLookup counts a resolve outcome.
func (m *Metrics) ObserveLookup(outcome string) {
	if m == nil {
		return
	}
	m.LookupsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRemote counts a remote request.
func (m *Metrics) ObserveRemote(kind, result string) {
	if m == nil {
		return
	}
	m.RemoteRequestsTotal.WithLabelValues(kind, result).Inc()
}

// ObserveAsset counts an asset resolution.
func (m *Metrics) ObserveAsset(result string) {
	if m == nil {
		return
	}
	m.AssetDownloadsTotal.WithLabelValues(result).Inc()
}

// ObserveWarmItem counts one bulk warm item and updates the progress gauge.
func (m *Metrics) ObserveWarmItem(result string, done, total int) {
	if m == nil {
		return
	}
	m.WarmItemsTotal.WithLabelValues(result).Inc()
	if total > 0 {
		m.WarmProgress.Set(float64(done) / float64(total))
	}
}

// SetConnectivity records the last probe result.
func (m *Metrics) SetConnectivity(online bool) {
	if m == nil {
		return
	}
	if online {
		m.Connectivity.Set(1)
	} else {
		m.Connectivity.Set(0)
	}
}
