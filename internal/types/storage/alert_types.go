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

package storage

// Severity is the normalized alert severity
type Severity string

const (
	SeverityFatal         Severity = "FATAL"
	SeverityCritical      Severity = "CRITICAL"
	SeverityMajor         Severity = "MAJOR"
	SeverityWarning       Severity = "WARNING"
	SeverityInformational Severity = "INFORMATIONAL"
	SeverityNotSpecified  Severity = "NOT_SPECIFIED"
)

// Valid reports whether s is one of the known severities
func (s Severity) Valid() bool {
	switch s {
	case SeverityFatal, SeverityCritical, SeverityMajor, SeverityWarning,
		SeverityInformational, SeverityNotSpecified:
		return true
	}
	return false
}

// AlertRecord is a normalized fault event. It is never mutated after creation.
type AlertRecord struct {
	AlertID        string   `json:"alertId"`
	AlertName      string   `json:"alertName"`
	Severity       Severity `json:"severity"`
	Category       string   `json:"category"`
	Type           string   `json:"type"`
	OccurTime      int64    `json:"occurTime"`
	SequenceNumber string   `json:"sequenceNumber"`
	Description    string   `json:"description"`
	ResourceType   string   `json:"resourceType"`
	Location       string   `json:"location"`
	MatchKey       string   `json:"matchKey"`
	DeviceID       string   `json:"deviceId"`
}
