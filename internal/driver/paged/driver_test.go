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

package paged

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/driver"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/driver/lookup"
	cfgtypes "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/config"
	errtypes "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/err"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/storage"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/util/logger"
)

// staticBackend serves a single page of samples and events in epoch ms
type staticBackend struct {
	samples []driver.Sample
	events  []driver.RawAlert
	latest  string
	cleared []string
	closed  bool
}

func (b *staticBackend) SamplePath(target driver.Target) (string, error) {
	return target.String(), nil
}

func (b *staticBackend) FetchSamplePage(_ context.Context, _ string, page int) ([]driver.Sample, error) {
	if page > 1 {
		return nil, nil
	}
	return b.samples, nil
}

func (b *staticBackend) FetchEventPage(_ context.Context, _ storage.TimeRange, page int) ([]driver.RawAlert, error) {
	if page > 1 {
		return nil, nil
	}
	return b.events, nil
}

func (b *staticBackend) LatestSampleTime(context.Context) (string, error) {
	return b.latest, nil
}

func (b *staticBackend) ClearEvent(_ context.Context, ref string) error {
	b.cleared = append(b.cleared, ref)
	return nil
}

func (b *staticBackend) Close() error {
	b.closed = true
	return nil
}

func genericDevice() cfgtypes.DeviceConfig {
	return cfgtypes.DeviceConfig{ID: "array-02", Vendor: "acme", Family: "generic"}
}

func newDriver(t *testing.T, device cfgtypes.DeviceConfig, backend driver.Backend) *Driver {
	t.Helper()
	tables, err := lookup.Default()
	require.NoError(t, err)
	d, err := New(device, backend, tables, logger.DefaultLogger(io.Discard, "info"))
	require.NoError(t, err)
	return d
}

func TestNewRejectsBadDevice(t *testing.T) {
	log := logger.DefaultLogger(io.Discard, "info")

	_, err := New(cfgtypes.DeviceConfig{ID: "x", Vendor: "acme"}, &staticBackend{}, nil, log)
	assert.ErrorIs(t, err, errtypes.UnknownFamily)

	device := genericDevice()
	device.TimeZone = "Mars/Olympus"
	_, err = New(device, &staticBackend{}, nil, log)
	assert.ErrorIs(t, err, errtypes.InvalidDeviceConfig)

	_, err = New(genericDevice(), nil, nil, log)
	assert.ErrorIs(t, err, errtypes.InvalidDeviceConfig)

	device = genericDevice()
	device.Options = map[string]string{OptionUnits: "bogus"}
	_, err = New(device, &staticBackend{}, nil, log)
	assert.Error(t, err)
}

func TestCollectWithUnitOverride(t *testing.T) {
	device := genericDevice()
	device.Options = map[string]string{OptionUnits: " read_throughput=MB/s->GB/s , "}

	backend := &staticBackend{samples: []driver.Sample{
		{ResourceID: "vol-1", Shard: "0", Time: "1700000000000", Value: "1024"},
		{ResourceID: "vol-1", Shard: "1", Time: "1700000000000", Value: "1024"},
	}}
	d := newDriver(t, device, backend)

	records, err := d.CollectPerfMetrics(context.Background(), driver.PerfRequest{
		Targets: []driver.Target{{ResourceType: "volume", Metric: storage.MetricReadThroughput}},
		Start:   1_699_999_000_000,
		End:     1_700_000_000_000,
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "GB/s", records[0].Unit)
	assert.InDelta(t, 2.0, records[0].Points[0].Value, 1e-9)
}

func TestLatestAlertsAndClear(t *testing.T) {
	backend := &staticBackend{
		latest: "1700000000000",
		events: []driver.RawAlert{{ID: "e-1", Name: "PoolFull", SeverityCode: "critical", Time: "1700000000000"}},
	}
	d := newDriver(t, genericDevice(), backend)

	latest, err := d.GetLatestPerfTimestamp(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1_700_000_000_000), latest)

	events, err := d.ListAlerts(context.Background(), storage.TimeRange{Start: 0, End: latest}, 1)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	record, err := d.ParseAlert(context.Background(), driver.RawTrap{
		driver.TrapKeyName:     "PoolFull",
		driver.TrapKeySeverity: "critical",
		driver.TrapKeyTime:     "1700000000000",
	})
	require.NoError(t, err)
	assert.Equal(t, storage.SeverityCritical, record.Severity)
	assert.Equal(t, "PoolFull", record.AlertID)

	require.NoError(t, d.ClearAlert(context.Background(), "e-1"))
	assert.Equal(t, []string{"e-1"}, backend.cleared)
	assert.ErrorIs(t, d.ClearAlert(context.Background(), " "), errtypes.AlertNotFound)

	require.NoError(t, d.Close())
	assert.True(t, backend.closed)
}
