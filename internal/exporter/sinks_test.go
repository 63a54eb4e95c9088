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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfgtypes "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/config"
	errtypes "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/err"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/storage"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/util/arrow"
)

func TestPrometheusSinkKeepsNewestPoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storage.prom")
	sink := NewPrometheusSink(cfgtypes.PrometheusExporterConfig{Enabled: true, TextfilePath: path}, testLogger())

	require.NoError(t, sink.ExportMetrics(context.Background(), sampleMetrics()))

	stale := sampleMetrics()
	stale[0].Points = []storage.Point{{Timestamp: 1_600_000_000_000, Value: 99}}
	require.NoError(t, sink.ExportMetrics(context.Background(), stale))

	count, err := testutil.GatherAndCount(sink.Registry(), "storage_read_iops")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content),
		`storage_read_iops{device_id="array-01",resource_id="vol-1",resource_type="volume",unit="IO/s"} 12 1700000060000`)

	sink.ForgetDevice("array-01")
	count, err = testutil.GatherAndCount(sink.Registry(), "storage_read_iops")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

// fakeWriter captures kafka messages
type fakeWriter struct {
	messages []kafka.Message
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func kafkaConfig(encoding string) cfgtypes.KafkaExporterConfig {
	return cfgtypes.KafkaExporterConfig{
		Enabled:      true,
		Brokers:      []string{"localhost:9092"},
		MetricsTopic: "storage-metrics",
		AlertsTopic:  "storage-alerts",
		Encoding:     encoding,
	}
}

func TestKafkaSinkJSON(t *testing.T) {
	writer := &fakeWriter{}
	sink, err := newKafkaSink(kafkaConfig(""), writer, testLogger())
	require.NoError(t, err)

	require.NoError(t, sink.ExportMetrics(context.Background(), sampleMetrics()))
	require.Len(t, writer.messages, 1)
	msg := writer.messages[0]
	assert.Equal(t, "storage-metrics", msg.Topic)
	assert.Equal(t, "array-01", string(msg.Key))

	var decoded storage.MetricRecord
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, sampleMetrics()[0].Points, decoded.Points)

	require.NoError(t, sink.ExportAlerts(context.Background(), sampleAlerts()))
	require.Len(t, writer.messages, 3)
	assert.Equal(t, "storage-alerts", writer.messages[1].Topic)
	assert.Equal(t, "array-01/aa", string(writer.messages[1].Key))

	require.NoError(t, sink.Close())
	assert.True(t, writer.closed)
}

func TestKafkaSinkArrow(t *testing.T) {
	writer := &fakeWriter{}
	sink, err := newKafkaSink(kafkaConfig(EncodingArrow), writer, testLogger())
	require.NoError(t, err)

	records := append(sampleMetrics(), storage.MetricRecord{
		Name: storage.MetricReadIOPS, DeviceID: "array-02", ResourceType: "volume", ResourceID: "vol-9", Unit: "IO/s",
		Points: []storage.Point{{Timestamp: 1_700_000_000_000, Value: 3}},
	})
	require.NoError(t, sink.ExportMetrics(context.Background(), records))
	require.Len(t, writer.messages, 2)

	first := writer.messages[0]
	assert.Equal(t, "array-01", string(first.Key))
	require.Len(t, first.Headers, 1)
	assert.Equal(t, contentTypeArrow, string(first.Headers[0].Value))

	rows, err := arrow.DeserializeMetrics(first.Value)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1_700_000_060_000), rows[1].Timestamp)
	assert.Equal(t, 12.0, rows[1].Value)
	assert.Equal(t, "read_iops", rows[1].Metric)
}

func TestKafkaSinkRejectsConfig(t *testing.T) {
	_, err := newKafkaSink(kafkaConfig("avro"), &fakeWriter{}, testLogger())
	assert.ErrorIs(t, err, errtypes.UnknownEncoding)

	cfg := kafkaConfig(EncodingJSON)
	cfg.AlertsTopic = ""
	_, err = newKafkaSink(cfg, &fakeWriter{}, testLogger())
	assert.Error(t, err)
}

func TestAlertmanagerSinkDeduplicatesByMatchKey(t *testing.T) {
	var posts atomic.Int32
	var last []postableAlert
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, alertsPath, r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		last = nil
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&last))
		posts.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink, err := NewAlertmanagerSink(cfgtypes.AlertmanagerExporterConfig{Enabled: true, URL: server.URL + "/"}, testLogger())
	require.NoError(t, err)

	alerts := sampleAlerts()
	// the trap delivered twin of evt-1
	twin := alerts[0]
	twin.AlertID = "trap-1"
	alerts = append(alerts, twin)

	require.NoError(t, sink.ExportAlerts(context.Background(), alerts))
	assert.Equal(t, int32(1), posts.Load())
	require.Len(t, last, 2)
	assert.Equal(t, "critical", last[0].Labels["severity"])
	assert.Equal(t, "aa", last[0].Labels["match_key"])
	assert.True(t, last[0].EndsAt.After(last[0].StartsAt))

	require.NoError(t, sink.ExportAlerts(context.Background(), sampleAlerts()))
	assert.Equal(t, int32(1), posts.Load(), "already sent alerts posted again")
}

func TestAlertmanagerSinkRejected(t *testing.T) {
	var posts atomic.Int32
	status := atomic.Int32{}
	status.Store(http.StatusBadRequest)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		posts.Add(1)
		w.WriteHeader(int(status.Load()))
		_, _ = w.Write([]byte("bad alert"))
	}))
	defer server.Close()

	sink, err := NewAlertmanagerSink(cfgtypes.AlertmanagerExporterConfig{Enabled: true, URL: server.URL}, testLogger())
	require.NoError(t, err)

	err = sink.ExportAlerts(context.Background(), sampleAlerts())
	assert.ErrorIs(t, err, errtypes.ExportRejected)
	assert.Contains(t, err.Error(), "bad alert")

	// rejected alerts are not remembered
	status.Store(http.StatusOK)
	require.NoError(t, sink.ExportAlerts(context.Background(), sampleAlerts()))
	assert.Equal(t, int32(2), posts.Load())
}
