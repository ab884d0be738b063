// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2024 Intel Corporation

// Package telemetry exposes discovery results as Prometheus metrics.
package telemetry

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dora-zhang/hwloc/pkg/topology"
)

const (
	backendLabel    = "backend"
	pciAddressLabel = "pci_address"
)

type Gatherer struct {
	deviceGauge    *prometheus.GaugeVec
	linkSpeedGauge *prometheus.GaugeVec
	durationGauge  prometheus.Gauge

	// mu guards metricUpdates; observations and scrapes may come from
	// different goroutines.
	mu            sync.Mutex
	metricUpdates []func()
}

func NewGatherer() *Gatherer {
	g := &Gatherer{}
	g.deviceGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "discovered_devices",
		Help: `number of OS-level devices discovered per stage. 'backend' - represents which discovery stage created the node, e.g. 'LevelZero'`,
	}, []string{backendLabel})

	g.linkSpeedGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pci_link_speed_gbps",
		Help: `maximum link bandwidth in GB/s reported for a PCI device. 'pci_address' - represents unique BDF for the device`,
	}, []string{pciAddressLabel})

	g.durationGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "last_discovery_duration_seconds",
		Help: "duration of the last topology build",
	})
	return g
}

// ObserveTopology queues metric updates from a finished topology build.
// Updates are applied atomically on the next gather.
func (g *Gatherer) ObserveTopology(topo *topology.Topology, duration time.Duration) {
	countByBackend := map[string]float64{}
	linkSpeeds := map[string]float64{}
	topo.Walk(func(n *topology.Node, _ int) {
		switch n.Type {
		case topology.OSDevice:
			backend, ok := n.Info("Backend")
			if !ok {
				backend = "unknown"
			}
			countByBackend[backend]++
		case topology.PCIDevice:
			if n.PCI != nil && n.PCI.LinkSpeed > 0 {
				linkSpeeds[n.PCI.Address.String()] = n.PCI.LinkSpeed
			}
		}
	})

	g.mu.Lock()
	defer g.mu.Unlock()
	for backend, count := range countByBackend {
		g.queueMetric(g.deviceGauge, map[string]string{backendLabel: backend}, count)
	}
	for addr, speed := range linkSpeeds {
		g.queueMetric(g.linkSpeedGauge, map[string]string{pciAddressLabel: addr}, speed)
	}
	seconds := duration.Seconds()
	g.metricUpdates = append(g.metricUpdates, func() {
		g.durationGauge.Set(seconds)
	})
}

// queueMetric must be called with mu held.
func (g *Gatherer) queueMetric(gauge *prometheus.GaugeVec, labels map[string]string, val float64) {
	g.metricUpdates = append(g.metricUpdates, func() {
		gauge.With(labels).Set(val)
	})
}

func (g *Gatherer) resetMetrics() {
	g.deviceGauge.Reset()
	g.linkSpeedGauge.Reset()
}

func (g *Gatherer) updateMetrics() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.metricUpdates) == 0 {
		return
	}
	g.resetMetrics()
	for _, metricUpdate := range g.metricUpdates {
		metricUpdate()
	}
	g.metricUpdates = nil
}

// Handler returns an HTTP handler serving the gathered metrics, applying
// any queued updates before each scrape.
func (g *Gatherer) Handler() (http.Handler, error) {
	reg := prometheus.NewRegistry()
	for _, collector := range []prometheus.Collector{g.deviceGauge, g.linkSpeedGauge, g.durationGauge} {
		if err := reg.Register(collector); err != nil {
			return nil, err
		}
	}
	inner := promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.updateMetrics()
		inner.ServeHTTP(w, r)
	}), nil
}
