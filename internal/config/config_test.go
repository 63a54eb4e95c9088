// Licensed to the Apache Software Foundation (ASF) under one
// or more contributor license agreements.  See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership.  The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License.  You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/constants"
	cfgtypes "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/config"
	harvestertypes "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/err"
)

const sampleConfig = `
harvester:
  info:
    name: fleet-harvester
    ip: 127.0.0.1
    port: "8080"
  engine:
    perf_interval: 1m
  exporters:
    kafka:
      brokers: ["k1:9092"]
  devices:
    - id: array-01
      vendor: simulator
      timezone: "+08:00"
      alert_interval: 30s
      targets:
        - resource_type: volume
          metric: read_iops
    - id: array-02
      vendor: simulator
      family: simulator-v2
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "harvester.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	loader := New(writeConfig(t, sampleConfig))

	cfg, err := loader.LoadConfig()
	require.NoError(t, err)
	require.NoError(t, loader.ValidateConfig(cfg))

	h := cfg.Harvester
	assert.Equal(t, "fleet-harvester", h.Info.Name)
	assert.Equal(t, time.Minute, h.Engine.PerfInterval)
	assert.Equal(t, constants.DefaultAlertInterval, h.Engine.AlertInterval)
	assert.Equal(t, constants.DefaultAlertLookback, h.Engine.AlertLookback)
	assert.Equal(t, constants.DefaultMaxFailedRetries, h.Engine.MaxFailedRetries)
	assert.Equal(t, constants.DefaultTickDuration, h.Scheduler.TickDuration)
	assert.Equal(t, "json", h.Exporters.Kafka.Encoding)

	require.Len(t, h.Devices, 2)
	assert.Equal(t, "simulator", h.Devices[0].Family)
	assert.Equal(t, time.Minute, h.Devices[0].PerfInterval)
	assert.Equal(t, 30*time.Second, h.Devices[0].AlertInterval)
	assert.Equal(t, "simulator-v2", h.Devices[1].Family)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := New("").LoadConfig()
	assert.ErrorIs(t, err, harvestertypes.ConfigPathIsEmpty)

	_, err = New(filepath.Join(t.TempDir(), "missing.yaml")).LoadConfig()
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	loader := New("")

	assert.ErrorIs(t, loader.ValidateConfig(nil), harvestertypes.HarvesterConfigIsNil)

	cfg := DefaultConfig()
	cfg.Harvester.Info.IP = ""
	assert.ErrorIs(t, loader.ValidateConfig(cfg), harvestertypes.HarvesterIPIsNil)

	cfg = DefaultConfig()
	cfg.Harvester.Devices = []cfgtypes.DeviceConfig{
		{ID: "a", Vendor: "simulator"},
		{ID: "a", Vendor: "simulator"},
		{ID: "b"},
		{ID: "c", Vendor: "simulator", TimeZone: "Mars/Olympus"},
		{ID: "d", Vendor: "simulator", Targets: []cfgtypes.TargetConfig{{ResourceType: "volume", Metric: "temperature"}}},
	}
	err := loader.ValidateConfig(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, harvestertypes.InvalidDeviceConfig)
	assert.Contains(t, err.Error(), `duplicate device id "a"`)
	assert.Contains(t, err.Error(), "device b has no vendor")
	assert.Contains(t, err.Error(), "Mars/Olympus")
	assert.Contains(t, err.Error(), "temperature")
}

func TestMergeWithEnv(t *testing.T) {
	t.Setenv(EnvHarvesterName, "env-harvester")
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvMetricsEnabled, "true")
	t.Setenv(EnvMetricsPort, "9191")
	t.Setenv(EnvKafkaBrokers, "k1:9092, k2:9092,")
	t.Setenv(EnvAlertmanagerURL, "http://am:9093")

	base := DefaultConfig()
	cfg := MergeWithEnv(base)

	assert.Equal(t, "env-harvester", cfg.Harvester.Info.Name)
	assert.Equal(t, "debug", cfg.Harvester.Log.Level)
	assert.True(t, cfg.Harvester.Metrics.Enabled)
	assert.Equal(t, 9191, cfg.Harvester.Metrics.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Harvester.Exporters.Kafka.Brokers)
	assert.Equal(t, "http://am:9093", cfg.Harvester.Exporters.Alertmanager.URL)

	// the input is left alone
	assert.Equal(t, constants.DefaultHarvesterName, base.Harvester.Info.Name)
}

func TestUnifiedLoaderWithoutFile(t *testing.T) {
	t.Setenv(EnvHarvesterPort, "8181")

	cfg, err := NewUnifiedConfigLoader("").Load()
	require.NoError(t, err)
	assert.Equal(t, "8181", cfg.Harvester.Info.Port)
	assert.True(t, cfg.Harvester.Exporters.Log.Enabled)
	assert.Same(t, cfg, GetGlobalConfig())
}

func TestUnifiedLoaderRejectsBrokenFile(t *testing.T) {
	_, err := NewUnifiedConfigLoader(writeConfig(t, "harvester: [")).Load()
	assert.Error(t, err)
}

func TestWatchConfigAndReload(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	loader := New(path)

	var reloaded atomic.Pointer[cfgtypes.HarvesterConfig]
	loader.OnReload(func(cfg *cfgtypes.HarvesterConfig) {
		reloaded.Store(cfg)
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewWatcher(loader).Start(ctx) }()

	updated := sampleConfig + `    - id: array-03
      vendor: simulator
`
	// retry the write until the watcher has registered
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte(updated), 0o600)
		cfg := reloaded.Load()
		return cfg != nil && len(cfg.Harvester.Devices) == 3
	}, 5*time.Second, 200*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
