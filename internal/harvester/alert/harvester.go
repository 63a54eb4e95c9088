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

package alert

import (
	"context"
	"fmt"
	"time"

	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/driver"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/driver/lookup"
	selfmetrics "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/metrics"
	errtypes "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/err"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/storage"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/util/hash"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/util/logger"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/util/timeutil"
)

const maxPages = 100000

// Lister is the paged event listing an alert harvest reads from
type Lister interface {
	ListAlerts(ctx context.Context, timeRange storage.TimeRange, page int) ([]driver.RawAlert, error)
}

type Config struct {
	DeviceID string
	Source   Lister
	Family   *lookup.FamilyTable
	Location *time.Location
}

type Harvester struct {
	deviceID string
	source   Lister
	family   *lookup.FamilyTable
	location *time.Location
	logger   logger.Logger
}

func New(cfg Config, log logger.Logger) (*Harvester, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("alert source is nil for device %s", cfg.DeviceID)
	}
	if cfg.Family == nil {
		return nil, fmt.Errorf("%w: no lookup table for device %s", errtypes.UnknownFamily, cfg.DeviceID)
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	return &Harvester{
		deviceID: cfg.DeviceID,
		source:   cfg.Source,
		family:   cfg.Family,
		location: loc,
		logger:   log.WithValues("device", cfg.DeviceID),
	}, nil
}

// Harvest pages through the device events and returns the unresolved ones
// that occurred within the window. Malformed entries are skipped. When a
// page fetch fails the records gathered so far are returned with the error.
func (h *Harvester) Harvest(ctx context.Context, timeRange storage.TimeRange) ([]storage.AlertRecord, error) {
	if !timeRange.Valid() {
		return nil, fmt.Errorf("%w: start %d after end %d", errtypes.InvalidTimeRange, timeRange.Start, timeRange.End)
	}

	var records []storage.AlertRecord
	seen := make(map[string]struct{})

	for page := 1; page <= maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return records, err
		}

		raws, err := h.source.ListAlerts(ctx, timeRange, page)
		if err != nil {
			return records, fmt.Errorf("list alerts page %d: %w", page, err)
		}
		if len(raws) == 0 {
			break
		}

		for _, raw := range raws {
			if raw.Solved {
				continue
			}

			record, err := Normalize(h.deviceID, raw, h.family, h.location)
			if err != nil {
				h.logger.Info("skipping malformed alert", "page", page, "alertId", raw.ID, "error", err.Error())
				selfmetrics.MalformedRecordsTotal.WithLabelValues(string(storage.WatermarkAlert)).Inc()
				continue
			}
			if !timeRange.Contains(record.OccurTime) {
				continue
			}

			key := record.AlertID + "\x00" + record.SequenceNumber
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			records = append(records, record)
		}
	}

	selfmetrics.HarvestedRecordsTotal.WithLabelValues(string(storage.WatermarkAlert)).Add(float64(len(records)))

	return records, nil
}

// Normalize converts one raw event of the given family into an alert record
func Normalize(deviceID string, raw driver.RawAlert, family *lookup.FamilyTable, loc *time.Location) (storage.AlertRecord, error) {
	if raw.ID == "" && raw.Name == "" && raw.Code == "" {
		return storage.AlertRecord{}, fmt.Errorf("%w: no id, name or code", errtypes.MalformedAlert)
	}

	occurTime, err := timeutil.ParseDeviceTime(raw.Time, family.TimeLayout, loc)
	if err != nil {
		return storage.AlertRecord{}, fmt.Errorf("%w: %v", errtypes.MalformedAlert, err)
	}

	name := raw.Name
	if name == "" {
		name = family.Description(raw.Code, raw.Code)
	}
	id := raw.ID
	if id == "" {
		id = raw.Code
	}
	if id == "" {
		id = name
	}

	return storage.AlertRecord{
		AlertID:        id,
		AlertName:      name,
		Severity:       family.Severity(raw.SeverityCode),
		Category:       raw.Category,
		Type:           raw.Type,
		OccurTime:      occurTime,
		SequenceNumber: raw.Sequence,
		Description:    family.Description(raw.Code, raw.Message),
		ResourceType:   raw.ResourceType,
		Location:       raw.Location,
		MatchKey:       hash.MatchKey(raw.Message, name),
		DeviceID:       deviceID,
	}, nil
}
