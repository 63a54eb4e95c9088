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

package err

import "errors"

// Harvester Server Error Types
var (
	HarvesterConfigIsNil = errors.New("harvester config is nil")
	HarvesterIPIsNil     = errors.New("harvester ip is empty")
	HarvesterPortIsNil   = errors.New("harvester port is empty")
	HarvesterServerStop  = errors.New("harvester server stop")
	ConfigPathIsEmpty    = errors.New("config path is required")
	InvalidDeviceConfig  = errors.New("invalid device config")
)

// Banner Error Types
var (
	BannerPrintReaderError  = errors.New("print banner error")
	BannerPrintExecuteError = errors.New("print banner execute error")
)

// Scheduler Error Types
var (
	JobExists       = errors.New("job already exists")
	JobInvalid      = errors.New("job is invalid")
	SchedulerClosed = errors.New("scheduler is shut down")
)

// Driver Error Types
var (
	UnknownVendor    = errors.New("unknown storage vendor")
	UnknownFamily    = errors.New("unknown device family")
	DeviceNotFound   = errors.New("device not found")
	AlertNotFound    = errors.New("alert not found")
	UnsupportedPath  = errors.New("unsupported sample path")
	MalformedSample  = errors.New("malformed sample")
	MalformedAlert   = errors.New("malformed alert")
	SessionExpired   = errors.New("device session expired")
	InvalidTimeRange = errors.New("invalid time range")
)

// Exporter Error Types
var (
	UnknownEncoding = errors.New("unknown export encoding")
	ExportRejected  = errors.New("export rejected by sink")
)
