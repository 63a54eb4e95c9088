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
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/driver"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/storage"
)

// derivedTotals lists the totals built from read and write halves
var derivedTotals = []struct {
	total storage.MetricType
	read  storage.MetricType
	write storage.MetricType
}{
	{total: storage.MetricIOPS, read: storage.MetricReadIOPS, write: storage.MetricWriteIOPS},
	{total: storage.MetricThroughput, read: storage.MetricReadThroughput, write: storage.MetricWriteThroughput},
	{total: storage.MetricIOSize, read: storage.MetricReadIOSize, write: storage.MetricWriteIOSize},
}

// deriveTotals adds total series for resources that report only read/write
// halves. A total point exists only where both halves have a point.
func deriveTotals(collected map[seriesKey]series) {
	for _, d := range derivedTotals {
		for key, read := range collected {
			if key.metric != d.read {
				continue
			}

			totalKey := seriesKey{resourceType: key.resourceType, resourceID: key.resourceID, metric: d.total}
			if _, reported := collected[totalKey]; reported {
				continue
			}
			write, ok := collected[seriesKey{resourceType: key.resourceType, resourceID: key.resourceID, metric: d.write}]
			if !ok {
				continue
			}

			total := make(series)
			for ts, r := range read {
				if w, ok := write[ts]; ok {
					total[ts] = r + w
				}
			}
			if len(total) > 0 {
				collected[totalKey] = total
			}
		}
	}
}

// totalPartner returns the other half of a read/write pair on the same
// resource type
func totalPartner(target driver.Target) (driver.Target, bool) {
	for _, d := range derivedTotals {
		switch target.Metric {
		case d.read:
			return driver.Target{ResourceType: target.ResourceType, Metric: d.write}, true
		case d.write:
			return driver.Target{ResourceType: target.ResourceType, Metric: d.read}, true
		}
	}
	return driver.Target{}, false
}
