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

// Package lookup holds the per vendor family code tables: severity mapping,
// alert descriptions, native metric units and the device time layout.
// Tables are parsed once and are read only afterwards.
package lookup

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	errtypes "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/err"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/storage"
)

//go:embed tables.yaml
var embeddedTables []byte

var (
	defaultOnce   sync.Once
	defaultTables *Tables
	defaultErr    error
)

// FamilyTable is the lookup data of one vendor family
type FamilyTable struct {
	Name         string                      `yaml:"-"`
	TimeLayout   string                      `yaml:"time_layout"`
	NativeUnits  map[string]string           `yaml:"native_units"`
	Severities   map[string]storage.Severity `yaml:"severities"`
	Descriptions map[string]string           `yaml:"descriptions"`
}

// Tables indexes family tables by family name
type Tables struct {
	families map[string]*FamilyTable
}

type tablesFile struct {
	Families map[string]*FamilyTable `yaml:"families"`
}

// Default returns the tables compiled into the binary
func Default() (*Tables, error) {
	defaultOnce.Do(func() {
		defaultTables, defaultErr = Parse(embeddedTables)
	})
	return defaultTables, defaultErr
}

// Parse decodes and validates a tables document
func Parse(data []byte) (*Tables, error) {
	var file tablesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode lookup tables: %w", err)
	}
	if len(file.Families) == 0 {
		return nil, fmt.Errorf("lookup tables define no families")
	}

	for name, family := range file.Families {
		if family == nil {
			return nil, fmt.Errorf("family %q is empty", name)
		}
		family.Name = name
		if family.TimeLayout == "" {
			return nil, fmt.Errorf("family %q has no time_layout", name)
		}
		for code, sev := range family.Severities {
			if !sev.Valid() {
				return nil, fmt.Errorf("family %q maps code %q to unknown severity %q", name, code, sev)
			}
		}
		for key := range family.NativeUnits {
			metric := key
			if _, m, ok := strings.Cut(key, "/"); ok {
				metric = m
			}
			if _, err := storage.ParseMetricType(metric); err != nil {
				return nil, fmt.Errorf("family %q native unit %q: %w", name, key, err)
			}
		}
	}

	return &Tables{families: file.Families}, nil
}

// Family returns the table for a family name
func (t *Tables) Family(name string) (*FamilyTable, error) {
	family, ok := t.families[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errtypes.UnknownFamily, name)
	}
	return family, nil
}

// Families lists the known family names in order
func (t *Tables) Families() []string {
	names := make([]string, 0, len(t.families))
	for name := range t.families {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Severity maps a native severity code, unknown codes are informational
func (f *FamilyTable) Severity(code string) storage.Severity {
	if sev, ok := f.Severities[strings.TrimSpace(code)]; ok {
		return sev
	}
	return storage.SeverityInformational
}

// Description returns the description of a native alert code or fallback
func (f *FamilyTable) Description(code, fallback string) string {
	if desc, ok := f.Descriptions[code]; ok && desc != "" {
		return desc
	}
	return fallback
}

// NativeUnit returns the unit a metric is reported in for a resource type
func (f *FamilyTable) NativeUnit(resourceType string, metric storage.MetricType) (string, bool) {
	if u, ok := f.NativeUnits[resourceType+"/"+string(metric)]; ok {
		return u, true
	}
	u, ok := f.NativeUnits[string(metric)]
	return u, ok
}
