/*
 * Licensed to the Apache Software Foundation (ASF) under one
 * or more contributor license agreements.  See the NOTICE file
 * distributed with this work for additional information
 * regarding copyright ownership.  The ASF licenses this file
 * to you under the Apache License, Version 2.0 (the
 * "License"); you may not use this file except in compliance
 * with the License.  You may obtain a copy of the License at
 *
 *   http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

package arrow

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/storage"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/util/logger"
)

func TestSerializeMetricsFlattensPoints(t *testing.T) {
	records := []storage.MetricRecord{
		{
			Name: storage.MetricReadIOPS, DeviceID: "array-01", ResourceType: "volume", ResourceID: "vol-1", Unit: "IO/s",
			Points: []storage.Point{{Timestamp: 1000, Value: 10.5}, {Timestamp: 2000, Value: 11}},
		},
		{
			Name: storage.MetricResponseTime, DeviceID: "array-01", ResourceType: "volume", ResourceID: "vol-2", Unit: "ms",
			Points: []storage.Point{{Timestamp: 2000, Value: 0.8}},
		},
	}

	data, err := NewArrowSerializer(logger.DefaultLogger(io.Discard, "info")).SerializeMetrics(records)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	rows, err := DeserializeMetrics(data)
	require.NoError(t, err)
	assert.Equal(t, []MetricRow{
		{DeviceID: "array-01", ResourceType: "volume", ResourceID: "vol-1", Metric: "read_iops", Unit: "IO/s", Timestamp: 1000, Value: 10.5},
		{DeviceID: "array-01", ResourceType: "volume", ResourceID: "vol-1", Metric: "read_iops", Unit: "IO/s", Timestamp: 2000, Value: 11},
		{DeviceID: "array-01", ResourceType: "volume", ResourceID: "vol-2", Metric: "response_time", Unit: "ms", Timestamp: 2000, Value: 0.8},
	}, rows)
}

func TestSerializeMetricsEmpty(t *testing.T) {
	_, err := NewArrowSerializer(logger.DefaultLogger(io.Discard, "info")).SerializeMetrics(nil)
	assert.Error(t, err)
}

func TestDeserializeGarbage(t *testing.T) {
	_, err := DeserializeMetrics([]byte("not an arrow stream"))
	assert.Error(t, err)
}
