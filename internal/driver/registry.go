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
	"fmt"
	"sort"
	"sync"

	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/driver/lookup"
	cfgtypes "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/config"
	errtypes "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/err"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/util/logger"
)

// Factory creates the capability of one device
type Factory func(device cfgtypes.DeviceConfig, tables *lookup.Tables, logger logger.Logger) (Capability, error)

// registry manages all registered vendor factories
type registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

var globalRegistry = &registry{
	factories: make(map[string]Factory),
}

// Register registers a vendor factory.
// This is called during init() of each vendor package.
func Register(vendor string, factory Factory) {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()

	globalRegistry.factories[vendor] = factory
}

// New creates the capability for a device through its vendor factory
func New(device cfgtypes.DeviceConfig, tables *lookup.Tables, logger logger.Logger) (Capability, error) {
	globalRegistry.mu.RLock()
	factory, ok := globalRegistry.factories[device.Vendor]
	globalRegistry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q for device %s", errtypes.UnknownVendor, device.Vendor, device.ID)
	}
	return factory(device, tables, logger)
}

// SupportedVendors returns all registered vendors in order
func SupportedVendors() []string {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	vendors := make([]string, 0, len(globalRegistry.factories))
	for vendor := range globalRegistry.factories {
		vendors = append(vendors, vendor)
	}
	sort.Strings(vendors)
	return vendors
}
