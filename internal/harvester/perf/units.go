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

package perf

import (
	"fmt"
	"strings"

	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/driver/lookup"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/storage"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/util/unit"
)

// canonicalUnits is the unit every metric is emitted in.
// "resource_type/metric" keys override the plain metric key.
var canonicalUnits = map[string]string{
	"iops":                  "IO/s",
	"read_iops":             "IO/s",
	"write_iops":            "IO/s",
	"throughput":            "MB/s",
	"read_throughput":       "MB/s",
	"write_throughput":      "MB/s",
	"response_time":         "ms",
	"io_size":               "KB",
	"read_io_size":          "KB",
	"write_io_size":         "KB",
	"port/throughput":       "Mbit/s",
	"port/read_throughput":  "Mbit/s",
	"port/write_throughput": "Mbit/s",
}

// unitResolver decides the native and emitted unit of a series
type unitResolver struct {
	family    *lookup.FamilyTable
	overrides map[string]*unit.Conversion
}

// newUnitResolver parses per device overrides in "metric=origin->new" or
// "resource_type/metric=origin->new" form.
func newUnitResolver(family *lookup.FamilyTable, overrides []string) (*unitResolver, error) {
	r := &unitResolver{family: family, overrides: make(map[string]*unit.Conversion, len(overrides))}
	for _, spec := range overrides {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}
		c, err := unit.ParseConversion(spec)
		if err != nil {
			return nil, err
		}
		metric := c.Field
		if _, m, ok := strings.Cut(c.Field, "/"); ok {
			metric = m
		}
		if _, err := storage.ParseMetricType(metric); err != nil {
			return nil, fmt.Errorf("unit override %q: %w", spec, err)
		}
		r.overrides[c.Field] = c
	}
	return r, nil
}

// conversion returns the conversion rule for a series. Both units are empty
// when the native unit is unknown: values pass through untouched and no unit
// is claimed for them.
func (r *unitResolver) conversion(resourceType string, metric storage.MetricType) unit.Conversion {
	if c, ok := r.overrides[resourceType+"/"+string(metric)]; ok {
		return *c
	}
	if c, ok := r.overrides[string(metric)]; ok {
		return *c
	}

	native := r.nativeUnit(resourceType, metric)
	if native == "" {
		return unit.Conversion{Field: string(metric)}
	}
	canonical, ok := canonicalUnits[resourceType+"/"+string(metric)]
	if !ok {
		canonical = canonicalUnits[string(metric)]
	}
	if canonical == "" {
		canonical = native
	}
	return unit.Conversion{Field: string(metric), OriginUnit: native, NewUnit: canonical}
}

func (r *unitResolver) nativeUnit(resourceType string, metric storage.MetricType) string {
	if r.family == nil {
		return ""
	}
	if u, ok := r.family.NativeUnit(resourceType, metric); ok {
		return u
	}
	// derived totals share the unit of their halves
	for _, d := range derivedTotals {
		if d.total == metric {
			if u, ok := r.family.NativeUnit(resourceType, d.read); ok {
				return u
			}
		}
	}
	return ""
}
