/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package exporter forwards normalized records to downstream sinks.
package exporter

import (
	"context"
	"fmt"
	"io"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"

	selfmetrics "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/metrics"
	cfgtypes "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/config"
	loggertypes "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/logger"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/storage"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/util/logger"
)

// MetricSink receives metric records of one harvest cycle
type MetricSink interface {
	Name() string
	ExportMetrics(ctx context.Context, records []storage.MetricRecord) error
}

// AlertSink receives alert records of one harvest cycle or trap
type AlertSink interface {
	Name() string
	ExportAlerts(ctx context.Context, records []storage.AlertRecord) error
}

// Exporter is what the job runner hands harvested records to
type Exporter interface {
	ExportMetrics(ctx context.Context, records []storage.MetricRecord) error
	ExportAlerts(ctx context.Context, records []storage.AlertRecord) error
}

// Manager fans batches out to every registered sink. A failing sink does not
// keep the others from receiving the batch, and nothing is retried.
type Manager struct {
	metricSinks []MetricSink
	alertSinks  []AlertSink
	gatherers   []prometheus.Gatherer
	logger      logger.Logger
}

var _ Exporter = (*Manager)(nil)

func NewManager(log logger.Logger) *Manager {
	return &Manager{logger: log.WithName(string(loggertypes.LogComponentExporter))}
}

// NewFromConfig builds the manager with every enabled sink
func NewFromConfig(cfg cfgtypes.ExportersConfig, log logger.Logger) (*Manager, error) {
	m := NewManager(log)

	if cfg.Log.Enabled {
		sink := NewLogSink(m.logger)
		m.AddMetricSink(sink)
		m.AddAlertSink(sink)
	}

	if cfg.Prometheus.Enabled {
		sink := NewPrometheusSink(cfg.Prometheus, m.logger)
		m.AddMetricSink(sink)
		m.gatherers = append(m.gatherers, sink.Registry())
	}

	if cfg.Kafka.Enabled {
		sink, err := NewKafkaSink(cfg.Kafka, m.logger)
		if err != nil {
			return nil, err
		}
		m.AddMetricSink(sink)
		m.AddAlertSink(sink)
	}

	if cfg.Alertmanager.Enabled {
		sink, err := NewAlertmanagerSink(cfg.Alertmanager, m.logger)
		if err != nil {
			return nil, err
		}
		m.AddAlertSink(sink)
	}

	m.logger.Info("exporters configured", "metricSinks", m.sinkNames(true), "alertSinks", m.sinkNames(false))
	return m, nil
}

func (m *Manager) AddMetricSink(sink MetricSink) {
	m.metricSinks = append(m.metricSinks, sink)
}

func (m *Manager) AddAlertSink(sink AlertSink) {
	m.alertSinks = append(m.alertSinks, sink)
}

// Gatherers returns the registries of sinks that are scraped
func (m *Manager) Gatherers() []prometheus.Gatherer {
	return m.gatherers
}

// ExportMetrics delivers records to every metric sink. The returned error
// aggregates the failed sinks.
func (m *Manager) ExportMetrics(ctx context.Context, records []storage.MetricRecord) error {
	if len(records) == 0 {
		return nil
	}

	var result *multierror.Error
	for _, sink := range m.metricSinks {
		if err := sink.ExportMetrics(ctx, records); err != nil {
			result = multierror.Append(result, m.failed(sink.Name(), err, len(records)))
		}
	}
	return result.ErrorOrNil()
}

// ExportAlerts delivers records to every alert sink
func (m *Manager) ExportAlerts(ctx context.Context, records []storage.AlertRecord) error {
	if len(records) == 0 {
		return nil
	}

	var result *multierror.Error
	for _, sink := range m.alertSinks {
		if err := sink.ExportAlerts(ctx, records); err != nil {
			result = multierror.Append(result, m.failed(sink.Name(), err, len(records)))
		}
	}
	return result.ErrorOrNil()
}

func (m *Manager) failed(sink string, err error, count int) error {
	selfmetrics.ExportErrorsTotal.WithLabelValues(sink).Inc()
	m.logger.Error(err, "sink export failed", "sink", sink, "records", count)
	return fmt.Errorf("sink %s: %w", sink, err)
}

// ForgetDevice drops state kept for a removed device by sinks that keep any
func (m *Manager) ForgetDevice(deviceID string) {
	for _, sink := range m.metricSinks {
		if f, ok := sink.(interface{ ForgetDevice(string) }); ok {
			f.ForgetDevice(deviceID)
		}
	}
}

// Close closes every sink holding resources, each once
func (m *Manager) Close() error {
	closed := make(map[any]struct{})
	var result *multierror.Error

	closeSink := func(sink any) {
		c, ok := sink.(io.Closer)
		if !ok {
			return
		}
		if _, done := closed[sink]; done {
			return
		}
		closed[sink] = struct{}{}
		if err := c.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}

	for _, sink := range m.metricSinks {
		closeSink(sink)
	}
	for _, sink := range m.alertSinks {
		closeSink(sink)
	}
	return result.ErrorOrNil()
}

func (m *Manager) sinkNames(metrics bool) []string {
	var names []string
	if metrics {
		for _, s := range m.metricSinks {
			names = append(names, s.Name())
		}
		return names
	}
	for _, s := range m.alertSinks {
		names = append(names, s.Name())
	}
	return names
}
