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
	"bytes"
	"fmt"

	"github.com/apache/arrow/go/v13/arrow"
	"github.com/apache/arrow/go/v13/arrow/array"
	"github.com/apache/arrow/go/v13/arrow/ipc"
	"github.com/apache/arrow/go/v13/arrow/memory"

	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/storage"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/util/logger"
)

// Column names of the metric point schema
const (
	ColumnDeviceID     = "device_id"
	ColumnResourceType = "resource_type"
	ColumnResourceID   = "resource_id"
	ColumnMetric       = "metric"
	ColumnUnit         = "unit"
	ColumnTimestamp    = "timestamp"
	ColumnValue        = "value"
)

// MetricSchema is one row per metric point
var MetricSchema = arrow.NewSchema([]arrow.Field{
	{Name: ColumnDeviceID, Type: arrow.BinaryTypes.String},
	{Name: ColumnResourceType, Type: arrow.BinaryTypes.String},
	{Name: ColumnResourceID, Type: arrow.BinaryTypes.String},
	{Name: ColumnMetric, Type: arrow.BinaryTypes.String},
	{Name: ColumnUnit, Type: arrow.BinaryTypes.String},
	{Name: ColumnTimestamp, Type: arrow.PrimitiveTypes.Int64},
	{Name: ColumnValue, Type: arrow.PrimitiveTypes.Float64},
}, &schemaMetadata)

var schemaMetadata = arrow.MetadataFrom(map[string]string{
	"format":  "storage-metric-points",
	"version": "1",
})

// ArrowSerializer encodes metric records as an Arrow IPC stream
type ArrowSerializer struct {
	logger logger.Logger
	mem    memory.Allocator
}

// NewArrowSerializer creates a new Arrow serializer
func NewArrowSerializer(logger logger.Logger) *ArrowSerializer {
	return &ArrowSerializer{
		logger: logger.WithName("arrow-serializer"),
		mem:    memory.NewGoAllocator(),
	}
}

// SerializeMetrics flattens the records into one record batch and writes it
// as a single IPC stream
func (as *ArrowSerializer) SerializeMetrics(records []storage.MetricRecord) ([]byte, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("empty record list")
	}

	batch := as.buildRecord(records)
	defer batch.Release()

	var buf bytes.Buffer
	writer := ipc.NewWriter(&buf, ipc.WithSchema(batch.Schema()), ipc.WithAllocator(as.mem))
	if err := writer.Write(batch); err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to write record batch: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close arrow writer: %w", err)
	}

	as.logger.V(1).Info("serialized metric records",
		"records", len(records),
		"rows", batch.NumRows(),
		"bytes", buf.Len())

	return buf.Bytes(), nil
}

func (as *ArrowSerializer) buildRecord(records []storage.MetricRecord) arrow.Record {
	b := array.NewRecordBuilder(as.mem, MetricSchema)
	defer b.Release()

	deviceIDs := b.Field(0).(*array.StringBuilder)
	resourceTypes := b.Field(1).(*array.StringBuilder)
	resourceIDs := b.Field(2).(*array.StringBuilder)
	metrics := b.Field(3).(*array.StringBuilder)
	units := b.Field(4).(*array.StringBuilder)
	timestamps := b.Field(5).(*array.Int64Builder)
	values := b.Field(6).(*array.Float64Builder)

	for _, r := range records {
		for _, p := range r.Points {
			deviceIDs.Append(r.DeviceID)
			resourceTypes.Append(r.ResourceType)
			resourceIDs.Append(r.ResourceID)
			metrics.Append(string(r.Name))
			units.Append(r.Unit)
			timestamps.Append(p.Timestamp)
			values.Append(p.Value)
		}
	}

	return b.NewRecord()
}

// MetricRow is one decoded row of the metric point schema
type MetricRow struct {
	DeviceID     string
	ResourceType string
	ResourceID   string
	Metric       string
	Unit         string
	Timestamp    int64
	Value        float64
}

// DeserializeMetrics reads every batch of an IPC stream written by SerializeMetrics
func DeserializeMetrics(data []byte) ([]MetricRow, error) {
	reader, err := ipc.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open arrow stream: %w", err)
	}
	defer reader.Release()

	if n := len(reader.Schema().Fields()); n != len(MetricSchema.Fields()) {
		return nil, fmt.Errorf("unexpected arrow schema with %d fields", n)
	}

	var rows []MetricRow
	for reader.Next() {
		rec := reader.Record()
		deviceIDs := rec.Column(0).(*array.String)
		resourceTypes := rec.Column(1).(*array.String)
		resourceIDs := rec.Column(2).(*array.String)
		metrics := rec.Column(3).(*array.String)
		units := rec.Column(4).(*array.String)
		timestamps := rec.Column(5).(*array.Int64)
		values := rec.Column(6).(*array.Float64)

		for i := 0; i < int(rec.NumRows()); i++ {
			rows = append(rows, MetricRow{
				DeviceID:     deviceIDs.Value(i),
				ResourceType: resourceTypes.Value(i),
				ResourceID:   resourceIDs.Value(i),
				Metric:       metrics.Value(i),
				Unit:         units.Value(i),
				Timestamp:    timestamps.Value(i),
				Value:        values.Value(i),
			})
		}
	}
	if err := reader.Err(); err != nil {
		return nil, fmt.Errorf("failed to read arrow stream: %w", err)
	}
	return rows, nil
}
