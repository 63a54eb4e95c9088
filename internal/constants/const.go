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

// Package constants defines harvester wide defaults
package constants

import "time"

const (
	DefaultHarvesterName = "hertzbeat-storage-harvester"
	DefaultHarvesterIP   = "127.0.0.1"
	DefaultHarvesterPort = "8080"
	DefaultMetricsPort   = 9090
)

// Scheduler defaults
const (
	DefaultTickDuration  = time.Second
	DefaultWheelSize     = 512
	DefaultMaxConcurrent = 64
)

// Engine defaults
const (
	DefaultPerfInterval     = 5 * time.Minute
	DefaultAlertInterval    = 2 * time.Minute
	DefaultAlertLookback    = time.Hour
	DefaultMaxFailedRetries = 3
)

const DefaultKafkaEncoding = "json"
