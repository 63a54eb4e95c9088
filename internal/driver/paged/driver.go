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

// Package paged implements the driver capability for vendors whose backend
// only exposes paged sample and event listings.
package paged

import (
	"context"
	"fmt"
	"strings"
	"time"

	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/driver"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/driver/lookup"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/harvester/alert"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/harvester/perf"
	cfgtypes "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/config"
	errtypes "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/err"
	loggertypes "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/logger"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/storage"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/util/logger"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/util/timeutil"
)

// OptionUnits holds comma separated unit overrides, e.g. "throughput=KB/s->MB/s"
const OptionUnits = "units"

// Driver adapts a paged backend to driver.Capability
type Driver struct {
	device   cfgtypes.DeviceConfig
	backend  driver.Backend
	family   *lookup.FamilyTable
	location *time.Location
	perf     *perf.Harvester
	logger   logger.Logger
}

var _ driver.Capability = (*Driver)(nil)

// New creates the driver of one device. The device family defaults to its vendor.
func New(device cfgtypes.DeviceConfig, backend driver.Backend, tables *lookup.Tables, log logger.Logger) (*Driver, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: no backend for device %s", errtypes.InvalidDeviceConfig, device.ID)
	}
	if tables == nil {
		var err error
		if tables, err = lookup.Default(); err != nil {
			return nil, err
		}
	}

	familyName := device.Family
	if familyName == "" {
		familyName = device.Vendor
	}
	family, err := tables.Family(familyName)
	if err != nil {
		return nil, err
	}

	loc, err := timeutil.LoadLocation(device.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("%w: device %s: %v", errtypes.InvalidDeviceConfig, device.ID, err)
	}

	log = log.WithName(string(loggertypes.LogComponentDriver)).WithValues("device", device.ID, "vendor", device.Vendor)

	harvester, err := perf.New(perf.Config{
		DeviceID:      device.ID,
		Source:        backend,
		Family:        family,
		Location:      loc,
		UnitOverrides: splitOption(device.Options[OptionUnits]),
	}, log)
	if err != nil {
		return nil, err
	}

	return &Driver{
		device:   device,
		backend:  backend,
		family:   family,
		location: loc,
		perf:     harvester,
		logger:   log,
	}, nil
}

func (d *Driver) ListAlerts(ctx context.Context, timeRange storage.TimeRange, page int) ([]driver.RawAlert, error) {
	return d.backend.FetchEventPage(ctx, timeRange, page)
}

func (d *Driver) CollectPerfMetrics(ctx context.Context, req driver.PerfRequest) ([]storage.MetricRecord, error) {
	return d.perf.Harvest(ctx, req)
}

func (d *Driver) GetLatestPerfTimestamp(ctx context.Context) (int64, error) {
	value, err := d.backend.LatestSampleTime(ctx)
	if err != nil {
		return 0, err
	}
	return timeutil.ParseDeviceTime(value, d.family.TimeLayout, d.location)
}

func (d *Driver) ParseAlert(_ context.Context, trap driver.RawTrap) (*storage.AlertRecord, error) {
	raw, err := trap.ToRawAlert()
	if err != nil {
		return nil, err
	}

	record, err := alert.Normalize(d.device.ID, raw, d.family, d.location)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (d *Driver) ClearAlert(ctx context.Context, ref string) error {
	if strings.TrimSpace(ref) == "" {
		return fmt.Errorf("%w: empty reference", errtypes.AlertNotFound)
	}
	return d.backend.ClearEvent(ctx, ref)
}

func (d *Driver) Close() error {
	return d.backend.Close()
}

// Family returns the lookup table the driver normalizes with
func (d *Driver) Family() *lookup.FamilyTable {
	return d.family
}

// Location returns the device time zone
func (d *Driver) Location() *time.Location {
	return d.location
}

// PerfWatermark returns the newest emitted sample time of a target
func (d *Driver) PerfWatermark(target driver.Target) (int64, bool) {
	return d.perf.Watermark(target)
}

func splitOption(value string) []string {
	var parts []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}
