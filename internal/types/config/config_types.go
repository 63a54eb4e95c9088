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
	"time"

	loggertypes "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/logger"
)

type HarvesterConfig struct {
	Harvester HarvesterSection `yaml:"harvester"`
}

type HarvesterSection struct {
	Info      HarvesterInfo      `yaml:"info"`
	Log       HarvesterLogConfig `yaml:"log"`
	Metrics   MetricsConfig      `yaml:"metrics"`
	Scheduler SchedulerConfig    `yaml:"scheduler"`
	Engine    EngineConfig       `yaml:"engine"`
	Exporters ExportersConfig    `yaml:"exporters"`
	Devices   []DeviceConfig     `yaml:"devices"`
}

type HarvesterInfo struct {
	Name string `yaml:"name"`
	IP   string `yaml:"ip"`
	Port string `yaml:"port"`
}

type HarvesterLogConfig struct {
	Level      string                                                     `yaml:"level"`
	Components map[loggertypes.HarvesterLogComponent]loggertypes.LogLevel `yaml:"components"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// SchedulerConfig tunes the hashed wheel timer backing the scheduler
type SchedulerConfig struct {
	TickDuration  time.Duration `yaml:"tick_duration"`
	WheelSize     int           `yaml:"wheel_size"`
	MaxConcurrent int           `yaml:"max_concurrent"`
}

// EngineConfig holds engine wide defaults applied to devices that leave them unset
type EngineConfig struct {
	PerfInterval     time.Duration `yaml:"perf_interval"`
	AlertInterval    time.Duration `yaml:"alert_interval"`
	AlertLookback    time.Duration `yaml:"alert_lookback"`
	MaxFailedRetries int           `yaml:"max_failed_retries"`
}

type ExportersConfig struct {
	Log          LogExporterConfig          `yaml:"log"`
	Prometheus   PrometheusExporterConfig   `yaml:"prometheus"`
	Kafka        KafkaExporterConfig        `yaml:"kafka"`
	Alertmanager AlertmanagerExporterConfig `yaml:"alertmanager"`
}

type LogExporterConfig struct {
	Enabled bool `yaml:"enabled"`
}

type PrometheusExporterConfig struct {
	Enabled bool `yaml:"enabled"`
	// TextfilePath, when set, receives the latest samples after every export
	TextfilePath string `yaml:"textfile_path"`
}

type KafkaExporterConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      []string      `yaml:"brokers"`
	MetricsTopic string        `yaml:"metrics_topic"`
	AlertsTopic  string        `yaml:"alerts_topic"`
	Encoding     string        `yaml:"encoding"`
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
}

type AlertmanagerExporterConfig struct {
	Enabled   bool          `yaml:"enabled"`
	URL       string        `yaml:"url"`
	Timeout   time.Duration `yaml:"timeout"`
	DedupTTL  time.Duration `yaml:"dedup_ttl"`
	ResolveIn time.Duration `yaml:"resolve_in"`
}

// DeviceConfig describes one managed storage array
type DeviceConfig struct {
	ID            string            `yaml:"id"`
	Vendor        string            `yaml:"vendor"`
	Model         string            `yaml:"model"`
	Family        string            `yaml:"family"`
	Host          string            `yaml:"host"`
	Port          int               `yaml:"port"`
	Username      string            `yaml:"username"`
	Password      string            `yaml:"password"`
	TimeZone      string            `yaml:"timezone"`
	PerfInterval  time.Duration     `yaml:"perf_interval"`
	AlertInterval time.Duration     `yaml:"alert_interval"`
	InitialDelay  time.Duration     `yaml:"initial_delay"`
	Targets       []TargetConfig    `yaml:"targets"`
	Options       map[string]string `yaml:"options"`
}

// TargetConfig names one (resource type, metric) pair to collect
type TargetConfig struct {
	ResourceType string `yaml:"resource_type"`
	Metric       string `yaml:"metric"`
}
