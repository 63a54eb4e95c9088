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

// Package perf pulls paginated historical performance samples of one device
// and turns the samples newer than the per target watermark into metric records.
package perf

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/driver"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/driver/lookup"
	selfmetrics "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/metrics"
	errtypes "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/err"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/storage"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/util/logger"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/util/timeutil"
)

// maxPagesPerTarget bounds pagination against devices that never return an empty page
const maxPagesPerTarget = 100000

type Config struct {
	DeviceID string
	Source   driver.SampleSource
	Family   *lookup.FamilyTable
	Location *time.Location
	// UnitOverrides are "metric=origin->new" rules taking precedence over the family table
	UnitOverrides []string
}

// Harvester is owned by one device. Harvest calls are expected to be sequential,
// the watermark map is locked only so it can be inspected concurrently.
type Harvester struct {
	deviceID string
	source   driver.SampleSource
	family   *lookup.FamilyTable
	location *time.Location
	units    *unitResolver
	logger   logger.Logger

	mu         sync.RWMutex
	watermarks map[driver.Target]int64
}

type seriesKey struct {
	resourceType string
	resourceID   string
	metric       storage.MetricType
}

// series maps a timestamp to its aggregated value
type series map[int64]float64

func New(cfg Config, log logger.Logger) (*Harvester, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("sample source is nil for device %s", cfg.DeviceID)
	}
	if cfg.Family == nil {
		return nil, fmt.Errorf("%w: no lookup table for device %s", errtypes.UnknownFamily, cfg.DeviceID)
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	units, err := newUnitResolver(cfg.Family, cfg.UnitOverrides)
	if err != nil {
		return nil, err
	}

	return &Harvester{
		deviceID:   cfg.DeviceID,
		source:     cfg.Source,
		family:     cfg.Family,
		location:   loc,
		units:      units,
		logger:     log.WithValues("device", cfg.DeviceID),
		watermarks: make(map[driver.Target]int64),
	}, nil
}

// Harvest collects all samples of the requested targets within the window that
// are newer than each target's watermark.
//
// A target whose page fetch fails contributes nothing and keeps its watermark,
// the remaining targets still produce records. The read and write halves of a
// derived total succeed or fail together, so a retry can still build the total.
// Failed targets are reported together in the returned error.
func (h *Harvester) Harvest(ctx context.Context, req driver.PerfRequest) ([]storage.MetricRecord, error) {
	if req.Start > req.End {
		return nil, fmt.Errorf("%w: start %d after end %d", errtypes.InvalidTimeRange, req.Start, req.End)
	}

	type harvested struct {
		target driver.Target
		prior  int64
		data   map[string]series
		newest int64
	}

	var (
		succeeded []harvested
		failed    = make(map[driver.Target]bool)
		result    *multierror.Error
	)

	for _, target := range req.Targets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		prior := h.watermark(target)
		data, newest, err := h.harvestTarget(ctx, target, req, prior)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			h.logger.Error(err, "target harvest failed, discarding its samples", "target", target.String())
			result = multierror.Append(result, fmt.Errorf("target %s: %w", target, err))
			failed[target] = true
			continue
		}
		succeeded = append(succeeded, harvested{target: target, prior: prior, data: data, newest: newest})
	}

	collected := make(map[seriesKey]series)
	advanced := make(map[driver.Target]int64)

	for _, t := range succeeded {
		if partner, ok := totalPartner(t.target); ok && failed[partner] {
			h.logger.Info("discarding samples, the other half of the total failed",
				"target", t.target.String(), "partner", partner.String())
			continue
		}

		for resourceID, values := range t.data {
			key := seriesKey{resourceType: t.target.ResourceType, resourceID: resourceID, metric: t.target.Metric}
			merge(collected, key, values)
		}
		if t.newest > t.prior {
			advanced[t.target] = t.newest
		}
	}

	deriveTotals(collected)
	records := h.pack(collected)

	h.mu.Lock()
	for target, ts := range advanced {
		h.watermarks[target] = ts
	}
	h.mu.Unlock()

	selfmetrics.HarvestedRecordsTotal.WithLabelValues(string(storage.WatermarkPerf)).Add(float64(len(records)))

	return records, result.ErrorOrNil()
}

// Watermark returns the newest emitted sample time of a target
func (h *Harvester) Watermark(target driver.Target) (int64, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ts, ok := h.watermarks[target]
	return ts, ok
}

func (h *Harvester) watermark(target driver.Target) int64 {
	ts, _ := h.Watermark(target)
	return ts
}

// harvestTarget pages through one target, newest first, and returns the
// in-window samples per resource id with the newest accepted timestamp.
func (h *Harvester) harvestTarget(ctx context.Context, target driver.Target, req driver.PerfRequest, prior int64) (map[string]series, int64, error) {
	path, err := h.source.SamplePath(target)
	if err != nil {
		return nil, prior, err
	}

	// everything below floor was either emitted before or is out of window
	floor := req.Start
	if prior >= floor {
		floor = prior + 1
	}

	data := make(map[string]series)
	newest := prior

	for page := 1; ; page++ {
		if page > maxPagesPerTarget {
			return nil, prior, fmt.Errorf("path %s exceeded %d pages", path, maxPagesPerTarget)
		}
		if err := ctx.Err(); err != nil {
			return nil, prior, err
		}

		samples, err := h.source.FetchSamplePage(ctx, path, page)
		if err != nil {
			return nil, prior, fmt.Errorf("fetch page %d of %s: %w", page, path, err)
		}
		if len(samples) == 0 {
			break
		}

		reachedFloor := false
		for _, sample := range samples {
			ts, value, err := h.parseSample(sample)
			if err != nil {
				h.logger.Info("skipping malformed sample", "target", target.String(), "page", page, "error", err.Error())
				selfmetrics.MalformedRecordsTotal.WithLabelValues(string(storage.WatermarkPerf)).Inc()
				continue
			}
			if ts < floor {
				// pages are newest first, the rest of the target is older
				reachedFloor = true
				continue
			}
			if ts > req.End {
				continue
			}

			s, ok := data[sample.ResourceID]
			if !ok {
				s = make(series)
				data[sample.ResourceID] = s
			}
			s.add(ts, value, target.Metric)

			if ts > newest {
				newest = ts
			}
		}

		if reachedFloor {
			break
		}
	}

	return data, newest, nil
}

func (h *Harvester) parseSample(sample driver.Sample) (int64, float64, error) {
	if strings.TrimSpace(sample.ResourceID) == "" {
		return 0, 0, fmt.Errorf("%w: empty resource id", errtypes.MalformedSample)
	}

	ts, err := timeutil.ParseDeviceTime(sample.Time, h.family.TimeLayout, h.location)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", errtypes.MalformedSample, err)
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(sample.Value), 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, 0, fmt.Errorf("%w: value %q of %s", errtypes.MalformedSample, sample.Value, sample.ResourceID)
	}

	return ts, value, nil
}

// add folds a shard value into the series: latency keeps the maximum,
// every other metric sums across shards.
func (s series) add(ts int64, value float64, metric storage.MetricType) {
	existing, ok := s[ts]
	switch {
	case !ok:
		s[ts] = value
	case metric.IsLatency():
		s[ts] = math.Max(existing, value)
	default:
		s[ts] = existing + value
	}
}

func merge(collected map[seriesKey]series, key seriesKey, values series) {
	dst, ok := collected[key]
	if !ok {
		collected[key] = values
		return
	}
	for ts, v := range values {
		dst.add(ts, v, key.metric)
	}
}

// pack converts every series into a record in emitted units, ordered by
// resource type, resource id and metric.
func (h *Harvester) pack(collected map[seriesKey]series) []storage.MetricRecord {
	keys := make([]seriesKey, 0, len(collected))
	for key, s := range collected {
		if len(s) > 0 {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.resourceType != b.resourceType {
			return a.resourceType < b.resourceType
		}
		if a.resourceID != b.resourceID {
			return a.resourceID < b.resourceID
		}
		return a.metric < b.metric
	})

	records := make([]storage.MetricRecord, 0, len(keys))
	for _, key := range keys {
		s := collected[key]
		conv := h.units.conversion(key.resourceType, key.metric)
		emitUnit := conv.NewUnit
		if conv.OriginUnit != "" {
			if _, err := conv.Apply(0); err != nil {
				h.logger.Error(err, "unit conversion failed, keeping native unit",
					"resourceType", key.resourceType, "metric", string(key.metric))
				emitUnit = conv.OriginUnit
				conv.OriginUnit = ""
			}
		}

		points := make([]storage.Point, 0, len(s))
		for ts, v := range s {
			if conv.OriginUnit != "" {
				v, _ = conv.Apply(v)
			}
			points = append(points, storage.Point{Timestamp: ts, Value: v})
		}
		sort.Slice(points, func(i, j int) bool { return points[i].Timestamp < points[j].Timestamp })

		records = append(records, storage.MetricRecord{
			Name:         key.metric,
			DeviceID:     h.deviceID,
			ResourceType: key.resourceType,
			ResourceID:   key.resourceID,
			Unit:         emitUnit,
			Labels: map[string]string{
				storage.LabelDeviceID:     h.deviceID,
				storage.LabelResourceType: key.resourceType,
				storage.LabelResourceID:   key.resourceID,
				storage.LabelUnit:         emitUnit,
			},
			Points: points,
		})
	}

	return records
}
