/*
 * Licensed to the Apache Software Foundation (ASF) under one
 * or more contributor license agreements.  See the NOTICE file
 * distributed with this work for additional information
 * regarding copyright ownership.  The ASF licenses this file
 * to you under the Apache License, Version 2.0 (the
 * "License"); you may not use this file except in compliance
 * with the License.  You may obtain a copy of the License at
 *
 *   http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	clrserver "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/server"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/runner"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/util/logger"
)

const (
	Namespace = "storage"
	Subsystem = "harvester"
)

// Status label values
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusPartial = "partial"
)

var (
	// HarvestCycleTotal counts harvest cycles by job kind and outcome
	HarvestCycleTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "cycle_total",
			Help:      "Total number of harvest cycles",
		},
		[]string{"kind", "status"},
	)

	// HarvestCycleDuration tracks the duration of harvest cycles
	HarvestCycleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of harvest cycles in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// HarvestedRecordsTotal counts emitted metric and alert records
	HarvestedRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "records_total",
			Help:      "Total number of normalized records emitted",
		},
		[]string{"kind"},
	)

	// MalformedRecordsTotal counts samples and events skipped as malformed
	MalformedRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "malformed_records_total",
			Help:      "Total number of raw samples or events skipped as malformed",
		},
		[]string{"kind"},
	)

	// ExportErrorsTotal counts failed sink deliveries
	ExportErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "export_errors_total",
			Help:      "Total number of failed exporter deliveries",
		},
		[]string{"sink"},
	)

	// ScheduledJobs is the number of jobs registered with the scheduler
	ScheduledJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "scheduled_jobs",
			Help:      "Number of jobs registered with the scheduler",
		},
	)

	// HarvesterUp indicates if the harvester is up
	HarvesterUp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "up",
			Help:      "1 if the harvester is up, 0 otherwise",
		},
	)
)

func init() {
	// Register metrics with the global prometheus registry
	prometheus.MustRegister(HarvestCycleTotal)
	prometheus.MustRegister(HarvestCycleDuration)
	prometheus.MustRegister(HarvestedRecordsTotal)
	prometheus.MustRegister(MalformedRecordsTotal)
	prometheus.MustRegister(ExportErrorsTotal)
	prometheus.MustRegister(ScheduledJobs)
	prometheus.MustRegister(HarvesterUp)
	HarvesterUp.Set(1)
}

// Runner implements the metrics server runner
type Runner struct {
	cfg       *clrserver.Server
	gatherers prometheus.Gatherers
	server    *http.Server
}

// New creates a new metrics runner. Extra gatherers, such as the registry of
// the prometheus exporter, are served next to the process metrics.
func New(cfg *clrserver.Server, extra ...prometheus.Gatherer) *Runner {

	gatherers := prometheus.Gatherers{prometheus.DefaultGatherer}
	gatherers = append(gatherers, extra...)

	return &Runner{cfg: cfg, gatherers: gatherers}
}

// Handler returns the /metrics handler
func (r *Runner) Handler() http.Handler {

	return promhttp.HandlerFor(r.gatherers, promhttp.HandlerOpts{})
}

// Start starts the metrics server
func (r *Runner) Start(ctx context.Context) error {

	mlog := r.initLogs()

	if !r.cfg.Config.Harvester.Metrics.Enabled {
		mlog.Info("metrics server disabled")
		<-ctx.Done()
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())

	addr := fmt.Sprintf(":%d", r.cfg.Config.Harvester.Metrics.Port)
	r.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       15 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	mlog.Info("Starting metrics server", "addr", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := r.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			mlog.Error(err, "Metrics server failed")
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Info returns the runner info
func (r *Runner) Info() runner.Info {

	return runner.Info{
		Name: "metrics-server",
	}
}

// Close closes the metrics server
func (r *Runner) Close() error {

	HarvesterUp.Set(0)
	if r.server != nil {
		r.initLogs().Info("Shutting down metrics server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return r.server.Shutdown(ctx)
	}
	return nil
}

func (r *Runner) initLogs() logger.Logger {

	return r.cfg.Logger.WithName("metrics")
}
