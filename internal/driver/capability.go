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

package driver

import (
	"context"
	"fmt"
	"strings"

	errtypes "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/err"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/storage"
)

// Capability is the per device adapter the engine harvests through.
// One instance exists per managed device and it owns that device's session.
type Capability interface {
	// ListAlerts returns one page of raw events, an empty page ends pagination
	ListAlerts(ctx context.Context, timeRange storage.TimeRange, page int) ([]RawAlert, error)

	// CollectPerfMetrics returns normalized records for new samples in the window
	CollectPerfMetrics(ctx context.Context, req PerfRequest) ([]storage.MetricRecord, error)

	// GetLatestPerfTimestamp returns the newest sample time on the device in epoch ms UTC
	GetLatestPerfTimestamp(ctx context.Context) (int64, error)

	// ParseAlert normalizes a push delivered trap
	ParseAlert(ctx context.Context, trap RawTrap) (*storage.AlertRecord, error)

	// ClearAlert acknowledges an alert on the device
	ClearAlert(ctx context.Context, ref string) error

	// Close releases the device session
	Close() error
}

// Target is one (resource type, metric) pair to collect
type Target struct {
	ResourceType string
	Metric       storage.MetricType
}

func (t Target) String() string {
	return t.ResourceType + "/" + string(t.Metric)
}

// PerfRequest asks for all samples of the targets within [Start, End]
type PerfRequest struct {
	Targets []Target
	Start   int64
	End     int64
}

// Window returns the request window as a time range
func (r PerfRequest) Window() storage.TimeRange {
	return storage.TimeRange{Start: r.Start, End: r.End}
}

// Sample is one raw per shard sample as the device reports it
type Sample struct {
	ResourceID string
	Shard      string
	Time       string
	Value      string
}

// RawAlert is one raw event as the device reports it
type RawAlert struct {
	ID           string
	Name         string
	Code         string
	SeverityCode string
	Category     string
	Type         string
	Time         string
	Sequence     string
	Message      string
	ResourceType string
	Location     string
	Solved       bool
}

// RawTrap is a push delivered alert as flat key/value pairs
type RawTrap map[string]string

// Trap keys understood by ToRawAlert
const (
	TrapKeyID           = "alert_id"
	TrapKeyName         = "name"
	TrapKeyCode         = "code"
	TrapKeySeverity     = "severity"
	TrapKeyCategory     = "category"
	TrapKeyType         = "type"
	TrapKeyTime         = "time"
	TrapKeySequence     = "sequence"
	TrapKeyMessage      = "message"
	TrapKeyResourceType = "resource_type"
	TrapKeyLocation     = "location"
)

// ToRawAlert maps trap fields onto a raw event
func (t RawTrap) ToRawAlert() (RawAlert, error) {
	get := func(key string) string { return strings.TrimSpace(t[key]) }

	raw := RawAlert{
		ID:           get(TrapKeyID),
		Name:         get(TrapKeyName),
		Code:         get(TrapKeyCode),
		SeverityCode: get(TrapKeySeverity),
		Category:     get(TrapKeyCategory),
		Type:         get(TrapKeyType),
		Time:         get(TrapKeyTime),
		Sequence:     get(TrapKeySequence),
		Message:      get(TrapKeyMessage),
		ResourceType: get(TrapKeyResourceType),
		Location:     get(TrapKeyLocation),
	}
	if raw.ID == "" && raw.Name == "" {
		return RawAlert{}, fmt.Errorf("%w: trap carries neither id nor name", errtypes.MalformedAlert)
	}
	return raw, nil
}

// SampleSource is the paged historical sample listing of a device
type SampleSource interface {
	// SamplePath resolves the device side path holding the samples of a target
	SamplePath(target Target) (string, error)

	// FetchSamplePage returns one page of samples, newest first, pages start at 1.
	// An empty page ends pagination.
	FetchSamplePage(ctx context.Context, path string, page int) ([]Sample, error)
}

// Backend is the vendor transport a paged driver is built on
type Backend interface {
	SampleSource

	// FetchEventPage returns one page of events, an empty page ends pagination
	FetchEventPage(ctx context.Context, timeRange storage.TimeRange, page int) ([]RawAlert, error)

	// LatestSampleTime returns the device timestamp of the newest sample
	LatestSampleTime(ctx context.Context) (string, error)

	// ClearEvent acknowledges an event on the device
	ClearEvent(ctx context.Context, ref string) error

	Close() error
}
