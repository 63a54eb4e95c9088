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

// Package simulator registers the "simulator" vendor, an in-process array
// that lets the harvester run end to end without real hardware.
package simulator

import (
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/driver"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/driver/lookup"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/driver/paged"
	cfgtypes "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/config"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/util/logger"
)

const Vendor = "simulator"

func init() {
	driver.Register(Vendor, New)
}

// New creates the capability of a simulated device
func New(device cfgtypes.DeviceConfig, tables *lookup.Tables, log logger.Logger) (driver.Capability, error) {
	_, d, err := NewDriver(device, tables, log)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// NewDriver returns the paged driver together with its array so callers can
// steer the simulation
func NewDriver(device cfgtypes.DeviceConfig, tables *lookup.Tables, log logger.Logger) (*Array, *paged.Driver, error) {
	if tables == nil {
		var err error
		if tables, err = lookup.Default(); err != nil {
			return nil, nil, err
		}
	}

	familyName := device.Family
	if familyName == "" {
		familyName = Vendor
	}
	family, err := tables.Family(familyName)
	if err != nil {
		return nil, nil, err
	}

	array, err := NewArray(device, family, log)
	if err != nil {
		return nil, nil, err
	}

	device.Family = familyName
	d, err := paged.New(device, array, tables, log)
	if err != nil {
		return nil, nil, err
	}
	return array, d, nil
}
