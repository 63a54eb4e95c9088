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
	"os"
	"strconv"
	"strings"

	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/constants"
	cfgtypes "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/config"
)

// Environment variables overriding the config file
const (
	EnvHarvesterName   = "HARVESTER_NAME"
	EnvHarvesterIP     = "HARVESTER_IP"
	EnvHarvesterPort   = "HARVESTER_PORT"
	EnvLogLevel        = "LOG_LEVEL"
	EnvMetricsEnabled  = "METRICS_ENABLED"
	EnvMetricsPort     = "METRICS_PORT"
	EnvKafkaBrokers    = "KAFKA_BROKERS"
	EnvAlertmanagerURL = "ALERTMANAGER_URL"
)

// DefaultConfig is the configuration used when no file is given
func DefaultConfig() *cfgtypes.HarvesterConfig {
	cfg := &cfgtypes.HarvesterConfig{
		Harvester: cfgtypes.HarvesterSection{
			Info: cfgtypes.HarvesterInfo{
				Name: constants.DefaultHarvesterName,
				IP:   constants.DefaultHarvesterIP,
				Port: constants.DefaultHarvesterPort,
			},
			Exporters: cfgtypes.ExportersConfig{
				Log: cfgtypes.LogExporterConfig{Enabled: true},
			},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// MergeWithEnv returns a copy of cfg with environment variable overrides applied.
// Device definitions only come from the file.
func MergeWithEnv(fileCfg *cfgtypes.HarvesterConfig) *cfgtypes.HarvesterConfig {
	if fileCfg == nil {
		fileCfg = DefaultConfig()
	}

	cfg := *fileCfg
	h := &cfg.Harvester

	if name := os.Getenv(EnvHarvesterName); name != "" {
		h.Info.Name = name
	}
	if ip := os.Getenv(EnvHarvesterIP); ip != "" {
		h.Info.IP = ip
	}
	if port := os.Getenv(EnvHarvesterPort); port != "" {
		h.Info.Port = port
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		h.Log.Level = level
	}

	h.Metrics.Enabled = getEnvBool(EnvMetricsEnabled, h.Metrics.Enabled)
	h.Metrics.Port = getEnvInt(EnvMetricsPort, h.Metrics.Port)

	if brokers := os.Getenv(EnvKafkaBrokers); brokers != "" {
		var list []string
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				list = append(list, b)
			}
		}
		h.Exporters.Kafka.Brokers = list
	}
	if url := os.Getenv(EnvAlertmanagerURL); url != "" {
		h.Exporters.Alertmanager.URL = url
	}

	return &cfg
}

// getEnvBool gets boolean environment variable with default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvInt gets integer environment variable with default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
