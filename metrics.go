// Copyright © 2024 Meroxa, Inc.
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

package connector

import (
	"net/http"
	"sync/atomic"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus metrics of a pipeline.
type Metrics struct {
	RecordsRead      prometheus.Counter
	RecordsWritten   prometheus.Counter
	RecordsSkipped   prometheus.Counter
	RecordsAcked     prometheus.Counter
	WriteAttempts    prometheus.Counter
	Batches          *prometheus.CounterVec
	WriteDuration    prometheus.Histogram
	PausedPartitions prometheus.Gauge
	BufferedRecords  prometheus.Gauge
}

// NewMetrics creates the metrics and registers them with reg. A nil reg
// creates unregistered metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RecordsRead: factory.NewCounter(prometheus.CounterOpts{
			Name: "solarsink_records_read_total",
			Help: "Records read from the source.",
		}),
		RecordsWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "solarsink_records_written_total",
			Help: "Rows persisted in the store.",
		}),
		RecordsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "solarsink_records_skipped_total",
			Help: "Records dropped because they could not be decoded.",
		}),
		RecordsAcked: factory.NewCounter(prometheus.CounterOpts{
			Name: "solarsink_records_acked_total",
			Help: "Record positions acknowledged to the source.",
		}),
		WriteAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "solarsink_write_attempts_total",
			Help: "Store calls made, including retries.",
		}),
		Batches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "solarsink_batches_total",
			Help: "Batch writes by outcome.",
		}, []string{"outcome"}),
		WriteDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "solarsink_batch_write_duration_seconds",
			Help:    "Time spent writing a batch, including retries.",
			Buckets: prometheus.DefBuckets,
		}),
		PausedPartitions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "solarsink_paused_partitions",
			Help: "Partitions currently paused due to backpressure.",
		}),
		BufferedRecords: factory.NewGauge(prometheus.GaugeOpts{
			Name: "solarsink_buffered_records",
			Help: "Records waiting in partition buffers.",
		}),
	}
}

func (m *Metrics) observe(res WriteResult) {
	m.WriteAttempts.Add(float64(res.Attempts))
	m.RecordsWritten.Add(float64(res.Written))
	m.RecordsSkipped.Add(float64(res.Skipped))
	if res.Outcome != 0 {
		m.Batches.WithLabelValues(res.Outcome.String()).Inc()
	}
}

// HealthServer exposes /metrics, /healthz and /readyz endpoints.
type HealthServer struct {
	ready    atomic.Bool
	gatherer prometheus.Gatherer
}

func NewHealthServer(g prometheus.Gatherer) *HealthServer {
	return &HealthServer{gatherer: g}
}

// SetReady marks the pipeline as running.
func (h *HealthServer) SetReady(ready bool) {
	h.ready.Store(ready)
}

func (h *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.HandleFunc("GET /readyz", h.handleReady)
	return mux
}

func (h *HealthServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, http.StatusOK, "ok")
}

func (h *HealthServer) handleReady(w http.ResponseWriter, _ *http.Request) {
	if h.ready.Load() {
		writeStatus(w, http.StatusOK, "ready")
		return
	}
	writeStatus(w, http.StatusServiceUnavailable, "not ready")
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}
