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
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfgtypes "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/config"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/storage"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/util/logger"
)

const storageNamespace = "storage"

var seriesLabels = []string{
	storage.LabelDeviceID,
	storage.LabelResourceType,
	storage.LabelResourceID,
	storage.LabelUnit,
}

type seriesID struct {
	deviceID     string
	resourceType string
	resourceID   string
	metric       storage.MetricType
}

type latestSample struct {
	unit  string
	point storage.Point
}

// PrometheusSink keeps the newest point of every series and exposes them with
// their device timestamps, on scrape and optionally as a node exporter textfile.
type PrometheusSink struct {
	registry     *prometheus.Registry
	textfilePath string
	logger       logger.Logger

	mu     sync.RWMutex
	latest map[seriesID]latestSample
	descs  map[storage.MetricType]*prometheus.Desc

	// serializes textfile writes
	writeMu sync.Mutex
}

var _ prometheus.Collector = (*PrometheusSink)(nil)

func NewPrometheusSink(cfg cfgtypes.PrometheusExporterConfig, log logger.Logger) *PrometheusSink {
	s := &PrometheusSink{
		registry:     prometheus.NewRegistry(),
		textfilePath: cfg.TextfilePath,
		logger:       log.WithValues("sink", "prometheus"),
		latest:       make(map[seriesID]latestSample),
		descs:        make(map[storage.MetricType]*prometheus.Desc),
	}
	s.registry.MustRegister(s)
	return s
}

func (s *PrometheusSink) Name() string { return "prometheus" }

// Registry is the gatherer serving the exported series
func (s *PrometheusSink) Registry() *prometheus.Registry {
	return s.registry
}

func (s *PrometheusSink) ExportMetrics(_ context.Context, records []storage.MetricRecord) error {
	s.mu.Lock()
	for _, r := range records {
		if len(r.Points) == 0 {
			continue
		}
		id := seriesID{deviceID: r.DeviceID, resourceType: r.ResourceType, resourceID: r.ResourceID, metric: r.Name}
		newest := r.Points[len(r.Points)-1]
		if prev, ok := s.latest[id]; ok && prev.point.Timestamp > newest.Timestamp {
			continue
		}
		s.latest[id] = latestSample{unit: r.Unit, point: newest}
		if _, ok := s.descs[r.Name]; !ok {
			s.descs[r.Name] = prometheus.NewDesc(
				prometheus.BuildFQName(storageNamespace, "", string(r.Name)),
				fmt.Sprintf("Latest harvested %s of a storage resource", r.Name),
				seriesLabels, nil)
		}
	}
	s.mu.Unlock()

	return s.writeTextfile()
}

// ForgetDevice drops every series of a device
func (s *PrometheusSink) ForgetDevice(deviceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range s.latest {
		if id.deviceID == deviceID {
			delete(s.latest, id)
		}
	}
}

// Describe sends nothing, which makes the sink an unchecked collector since
// the metric set depends on what was harvested
func (s *PrometheusSink) Describe(chan<- *prometheus.Desc) {}

func (s *PrometheusSink) Collect(ch chan<- prometheus.Metric) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for id, sample := range s.latest {
		m, err := prometheus.NewConstMetric(s.descs[id.metric], prometheus.GaugeValue, sample.point.Value,
			id.deviceID, id.resourceType, id.resourceID, sample.unit)
		if err != nil {
			s.logger.Error(err, "failed to build series", "metric", string(id.metric))
			continue
		}
		ch <- prometheus.NewMetricWithTimestamp(time.UnixMilli(sample.point.Timestamp), m)
	}
}

func (s *PrometheusSink) writeTextfile() error {
	if s.textfilePath == "" {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := prometheus.WriteToTextfile(s.textfilePath, s.registry); err != nil {
		return fmt.Errorf("write textfile %s: %w", s.textfilePath, err)
	}
	return nil
}
