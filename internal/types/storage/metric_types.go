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

package storage

import "fmt"

// MetricType names a normalized performance metric
type MetricType string

const (
	MetricIOPS            MetricType = "iops"
	MetricReadIOPS        MetricType = "read_iops"
	MetricWriteIOPS       MetricType = "write_iops"
	MetricThroughput      MetricType = "throughput"
	MetricReadThroughput  MetricType = "read_throughput"
	MetricWriteThroughput MetricType = "write_throughput"
	MetricResponseTime    MetricType = "response_time"
	MetricIOSize          MetricType = "io_size"
	MetricReadIOSize      MetricType = "read_io_size"
	MetricWriteIOSize     MetricType = "write_io_size"
)

// Label keys attached to every metric record
const (
	LabelDeviceID     = "device_id"
	LabelResourceType = "resource_type"
	LabelResourceID   = "resource_id"
	LabelUnit         = "unit"
)

var allMetricTypes = map[MetricType]struct{}{
	MetricIOPS:            {},
	MetricReadIOPS:        {},
	MetricWriteIOPS:       {},
	MetricThroughput:      {},
	MetricReadThroughput:  {},
	MetricWriteThroughput: {},
	MetricResponseTime:    {},
	MetricIOSize:          {},
	MetricReadIOSize:      {},
	MetricWriteIOSize:     {},
}

// ParseMetricType validates a metric type name
func ParseMetricType(name string) (MetricType, error) {
	mt := MetricType(name)
	if _, ok := allMetricTypes[mt]; !ok {
		return "", fmt.Errorf("unknown metric type %q", name)
	}
	return mt, nil
}

// IsLatency reports whether values of this metric combine by maximum instead of sum
func (m MetricType) IsLatency() bool {
	return m == MetricResponseTime
}

// Point is one timestamped sample value, timestamp in epoch milliseconds UTC
type Point struct {
	Timestamp int64   `json:"timestamp"`
	Value     float64 `json:"value"`
}

// MetricRecord aggregates all samples of one (resource, metric) pair collected in one cycle.
// Points are ordered by ascending timestamp.
type MetricRecord struct {
	Name         MetricType        `json:"name"`
	DeviceID     string            `json:"deviceId"`
	ResourceType string            `json:"resourceType"`
	ResourceID   string            `json:"resourceId"`
	Unit         string            `json:"unit"`
	Labels       map[string]string `json:"labels"`
	Points       []Point           `json:"points"`
}

// TimeRange is an inclusive window in epoch milliseconds UTC
type TimeRange struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Contains reports whether ts lies within the inclusive window
func (r TimeRange) Contains(ts int64) bool {
	return ts >= r.Start && ts <= r.End
}

func (r TimeRange) Valid() bool {
	return r.Start <= r.End
}

// WatermarkKind distinguishes the per-job watermarks
type WatermarkKind string

const (
	WatermarkPerf  WatermarkKind = "perf"
	WatermarkAlert WatermarkKind = "alert"
)

// Watermark is the newest timestamp already harvested for a device
type Watermark struct {
	DeviceID       string        `json:"deviceId"`
	Kind           WatermarkKind `json:"kind"`
	LatestSeenTime int64         `json:"latestSeenTime"`
}
