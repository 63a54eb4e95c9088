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

package job

import (
	"fmt"
	"time"
)

// harvest job related types

// Kind distinguishes the two recurring jobs owned by every device
type Kind string

const (
	KindPerf  Kind = "perf"
	KindAlert Kind = "alert"
)

// State is the lifecycle state of a scheduled job.
// Scheduled -> Running -> Scheduled -> ... -> Cancelled
type State string

const (
	StateScheduled State = "scheduled"
	StateRunning   State = "running"
	StateCancelled State = "cancelled"
)

// Job is one recurring harvest registered with the scheduler
type Job struct {
	ID           string        `json:"id"`
	DeviceID     string        `json:"deviceId"`
	Kind         Kind          `json:"kind"`
	Interval     time.Duration `json:"interval"`
	InitialDelay time.Duration `json:"initialDelay"`

	State     State     `json:"state"`
	Runs      int64     `json:"runs"`
	Failures  int64     `json:"failures"`
	LastRun   time.Time `json:"lastRun"`
	LastError string    `json:"lastError,omitempty"`
}

// ID builds the job id for a device and kind, e.g. "perf/array-01"
func ID(kind Kind, deviceID string) string {
	return fmt.Sprintf("%s/%s", kind, deviceID)
}

// Validate checks the fields required for scheduling
func (j *Job) Validate() error {
	if j.ID == "" {
		return fmt.Errorf("job id is empty")
	}
	if j.Interval <= 0 {
		return fmt.Errorf("job %s interval must be positive, got %s", j.ID, j.Interval)
	}
	if j.InitialDelay < 0 {
		return fmt.Errorf("job %s initial delay must not be negative", j.ID)
	}
	return nil
}
