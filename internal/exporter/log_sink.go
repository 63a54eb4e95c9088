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

package exporter

import (
	"context"

	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/storage"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/util/logger"
)

// LogSink writes a line per record, useful when no downstream exists yet
type LogSink struct {
	logger logger.Logger
}

func NewLogSink(log logger.Logger) *LogSink {
	return &LogSink{logger: log.WithValues("sink", "log")}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) ExportMetrics(_ context.Context, records []storage.MetricRecord) error {
	for _, r := range records {
		if len(r.Points) == 0 {
			continue
		}
		last := r.Points[len(r.Points)-1]
		s.logger.Info("metric",
			"device", r.DeviceID,
			"resourceType", r.ResourceType,
			"resourceId", r.ResourceID,
			"metric", string(r.Name),
			"unit", r.Unit,
			"points", len(r.Points),
			"latestTime", last.Timestamp,
			"latestValue", last.Value)
	}
	return nil
}

func (s *LogSink) ExportAlerts(_ context.Context, records []storage.AlertRecord) error {
	for _, r := range records {
		s.logger.Info("alert",
			"device", r.DeviceID,
			"alertId", r.AlertID,
			"name", r.AlertName,
			"severity", string(r.Severity),
			"occurTime", r.OccurTime,
			"matchKey", r.MatchKey,
			"description", r.Description)
	}
	return nil
}
