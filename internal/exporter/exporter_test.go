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

package exporter

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfgtypes "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/config"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/storage"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/util/logger"
)

func testLogger() logger.Logger {
	return logger.DefaultLogger(io.Discard, "info")
}

// recordingSink keeps every batch and can be told to fail
type recordingSink struct {
	name    string
	err     error
	mu      sync.Mutex
	metrics []storage.MetricRecord
	alerts  []storage.AlertRecord
	closed  int
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) ExportMetrics(_ context.Context, records []storage.MetricRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.metrics = append(s.metrics, records...)
	return nil
}

func (s *recordingSink) ExportAlerts(_ context.Context, records []storage.AlertRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.alerts = append(s.alerts, records...)
	return nil
}

func (s *recordingSink) Close() error {
	s.closed++
	return nil
}

func sampleMetrics() []storage.MetricRecord {
	return []storage.MetricRecord{{
		Name:         storage.MetricReadIOPS,
		DeviceID:     "array-01",
		ResourceType: "volume",
		ResourceID:   "vol-1",
		Unit:         "IO/s",
		Points:       []storage.Point{{Timestamp: 1_700_000_000_000, Value: 10}, {Timestamp: 1_700_000_060_000, Value: 12}},
	}}
}

func sampleAlerts() []storage.AlertRecord {
	return []storage.AlertRecord{
		{AlertID: "evt-1", AlertName: "DiskFailure", Severity: storage.SeverityCritical, OccurTime: 1_700_000_000_000, DeviceID: "array-01", MatchKey: "aa"},
		{AlertID: "evt-2", AlertName: "FanSpeedLow", Severity: storage.SeverityWarning, OccurTime: 1_700_000_060_000, DeviceID: "array-01", MatchKey: "bb"},
	}
}

func TestManagerFanOutIsolatesFailures(t *testing.T) {
	m := NewManager(testLogger())
	broken := &recordingSink{name: "broken", err: errors.New("unreachable")}
	healthy := &recordingSink{name: "healthy"}
	m.AddMetricSink(broken)
	m.AddMetricSink(healthy)
	m.AddAlertSink(broken)
	m.AddAlertSink(healthy)

	err := m.ExportMetrics(context.Background(), sampleMetrics())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink broken")
	assert.Len(t, healthy.metrics, 1)

	err = m.ExportAlerts(context.Background(), sampleAlerts())
	require.Error(t, err)
	assert.Len(t, healthy.alerts, 2)
}

func TestManagerSkipsEmptyBatches(t *testing.T) {
	m := NewManager(testLogger())
	broken := &recordingSink{name: "broken", err: errors.New("unreachable")}
	m.AddMetricSink(broken)
	m.AddAlertSink(broken)

	assert.NoError(t, m.ExportMetrics(context.Background(), nil))
	assert.NoError(t, m.ExportAlerts(context.Background(), nil))
}

func TestManagerClosesEachSinkOnce(t *testing.T) {
	m := NewManager(testLogger())
	sink := &recordingSink{name: "both"}
	m.AddMetricSink(sink)
	m.AddAlertSink(sink)

	require.NoError(t, m.Close())
	assert.Equal(t, 1, sink.closed)
}

func TestNewFromConfig(t *testing.T) {
	m, err := NewFromConfig(cfgtypes.ExportersConfig{
		Log:        cfgtypes.LogExporterConfig{Enabled: true},
		Prometheus: cfgtypes.PrometheusExporterConfig{Enabled: true},
		Kafka: cfgtypes.KafkaExporterConfig{
			Enabled: true, Brokers: []string{"localhost:9092"},
			MetricsTopic: "storage-metrics", AlertsTopic: "storage-alerts", Encoding: EncodingArrow,
		},
		Alertmanager: cfgtypes.AlertmanagerExporterConfig{Enabled: true, URL: "http://localhost:9093/"},
	}, testLogger())
	require.NoError(t, err)

	assert.Equal(t, []string{"log", "prometheus", "kafka"}, m.sinkNames(true))
	assert.Equal(t, []string{"log", "kafka", "alertmanager"}, m.sinkNames(false))
	assert.Len(t, m.Gatherers(), 1)
	assert.NoError(t, m.Close())
}

func TestNewFromConfigRejectsBadSinks(t *testing.T) {
	_, err := NewFromConfig(cfgtypes.ExportersConfig{
		Kafka: cfgtypes.KafkaExporterConfig{Enabled: true},
	}, testLogger())
	assert.Error(t, err)

	_, err = NewFromConfig(cfgtypes.ExportersConfig{
		Alertmanager: cfgtypes.AlertmanagerExporterConfig{Enabled: true},
	}, testLogger())
	assert.Error(t, err)
}

func TestLogSink(t *testing.T) {
	sink := NewLogSink(testLogger())
	assert.NoError(t, sink.ExportMetrics(context.Background(), sampleMetrics()))
	assert.NoError(t, sink.ExportAlerts(context.Background(), sampleAlerts()))
}
