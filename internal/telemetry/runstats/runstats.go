// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package runstats exposes MapCombine run telemetry as Prometheus
// metrics. It is opt-in: when disabled, every observation is a cheap
// atomic check and nothing is recorded or served. The metrics are
// registered with the default Prometheus registry at package init either
// way.
package runstats

import (
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config controls the module.
//
//   - MetricsAddr, when non-empty and Enabled is true, starts a dedicated
//     HTTP server serving
//     /metrics. If Prometheus is exposed elsewhere, leave it empty and
//     register promhttp yourself.
type Config struct {
	Enabled     bool
	MetricsAddr string
}

var (
	modEnabled atomic.Bool
	serverOnce sync.Once

	runsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mapcombine_runs_total",
		Help: "Total engine runs completed",
	})
	runSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "mapcombine_run_seconds",
		Help:    "Wall time per engine run",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
	})
	recordsMappedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mapcombine_records_mapped_total",
		Help: "Total input records driven through the mapper",
	})
	emitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mapcombine_emits_total",
		Help: "Total pairs emitted into the aggregation substrate",
	})
	proxyElectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mapcombine_psm_proxy_elections_total",
		Help: "Times a worker was elected proxy of a PSM shard queue",
	})
	handoffsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mapcombine_psm_handoffs_total",
		Help: "Emits delegated to an already-active proxy",
	})
	affinityFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mapcombine_affinity_failures_total",
		Help: "Workers that could not be pinned to their CPU",
	})
)

func init() {
	// Registration is harmless when no endpoint is exposed.
	prometheus.MustRegister(runsTotal, runSeconds, recordsMappedTotal,
		emitsTotal, proxyElectionsTotal, handoffsTotal, affinityFailuresTotal)
}

// Enable configures the module. Safe to call multiple times.
func Enable(cfg Config) {
	modEnabled.Store(cfg.Enabled)
	if !cfg.Enabled || cfg.MetricsAddr == "" {
		return
	}
	serverOnce.Do(func() {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				log.Printf("runstats: metrics server on %s: %v", cfg.MetricsAddr, err)
			}
		}()
	})
}

// Enabled reports whether observations are currently recorded.
func Enabled() bool { return modEnabled.Load() }

// ObserveRun records one completed run and its duration.
func ObserveRun(d time.Duration) {
	if !modEnabled.Load() {
		return
	}
	runsTotal.Inc()
	runSeconds.Observe(d.Seconds())
}

// AddRecords accumulates mapped input records.
func AddRecords(n uint64) {
	if !modEnabled.Load() || n == 0 {
		return
	}
	recordsMappedTotal.Add(float64(n))
}

// AddEmits accumulates emitted pairs.
func AddEmits(n uint64) {
	if !modEnabled.Load() || n == 0 {
		return
	}
	emitsTotal.Add(float64(n))
}

// AddProxyElections accumulates PSM proxy elections.
func AddProxyElections(n uint64) {
	if !modEnabled.Load() || n == 0 {
		return
	}
	proxyElectionsTotal.Add(float64(n))
}

// AddHandoffs accumulates PSM handoffs.
func AddHandoffs(n uint64) {
	if !modEnabled.Load() || n == 0 {
		return
	}
	handoffsTotal.Add(float64(n))
}

// AddAffinityFailures accumulates failed CPU pins.
func AddAffinityFailures(n uint64) {
	if !modEnabled.Load() || n == 0 {
		return
	}
	affinityFailuresTotal.Add(float64(n))
}
