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

// Package timeutil converts device wall clock timestamps into UTC epoch milliseconds.
//
// Device clocks report local wall time. The device zone is applied exactly once,
// while parsing, so no further offset correction happens downstream.
package timeutil

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Layouts understood besides Go reference layouts
const (
	LayoutEpochMillis  = "epoch_ms"
	LayoutEpochSeconds = "epoch_s"
)

var offsetPattern = regexp.MustCompile(`^(?:UTC|GMT)?([+-])(\d{1,2})(?::?(\d{2}))?$`)

// GetCurrentTimeMillis returns current time in milliseconds
func GetCurrentTimeMillis() int64 {
	return time.Now().UnixMilli()
}

// LoadLocation resolves a device time zone. It accepts IANA names ("Asia/Shanghai"),
// fixed offsets ("+08:00", "UTC-5") and the empty string, which means UTC.
func LoadLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" || strings.EqualFold(tz, "UTC") || strings.EqualFold(tz, "GMT") {
		return time.UTC, nil
	}

	if m := offsetPattern.FindStringSubmatch(tz); m != nil {
		hours, _ := strconv.Atoi(m[2])
		minutes := 0
		if m[3] != "" {
			minutes, _ = strconv.Atoi(m[3])
		}
		if hours > 14 || minutes > 59 {
			return nil, fmt.Errorf("time zone offset %q out of range", tz)
		}
		offset := hours*3600 + minutes*60
		if m[1] == "-" {
			offset = -offset
		}
		return time.FixedZone(tz, offset), nil
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("unknown time zone %q: %w", tz, err)
	}
	return loc, nil
}

// ParseDeviceTime parses a device timestamp into UTC epoch milliseconds
func ParseDeviceTime(value, layout string, loc *time.Location) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	if loc == nil {
		loc = time.UTC
	}

	switch layout {
	case LayoutEpochMillis, LayoutEpochSeconds:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse epoch timestamp %q: %w", value, err)
		}
		if layout == LayoutEpochSeconds {
			return n * 1000, nil
		}
		return n, nil
	}

	t, err := time.ParseInLocation(layout, value, loc)
	if err != nil {
		return 0, fmt.Errorf("parse timestamp %q with layout %q: %w", value, layout, err)
	}
	return t.UnixMilli(), nil
}

// FormatDeviceTime renders epoch milliseconds the way a device in loc would report them
func FormatDeviceTime(ms int64, layout string, loc *time.Location) string {
	switch layout {
	case LayoutEpochMillis:
		return strconv.FormatInt(ms, 10)
	case LayoutEpochSeconds:
		return strconv.FormatInt(ms/1000, 10)
	}
	if loc == nil {
		loc = time.UTC
	}
	return time.UnixMilli(ms).In(loc).Format(layout)
}
