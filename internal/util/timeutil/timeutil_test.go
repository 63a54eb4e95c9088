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

package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const deviceLayout = "2006-01-02 15:04:05"

func TestLoadLocation(t *testing.T) {
	tests := []struct {
		name       string
		tz         string
		wantOffset int
		wantErr    bool
	}{
		{name: "empty is utc", tz: "", wantOffset: 0},
		{name: "utc", tz: "UTC", wantOffset: 0},
		{name: "fixed offset", tz: "+08:00", wantOffset: 8 * 3600},
		{name: "utc prefixed negative", tz: "UTC-5", wantOffset: -5 * 3600},
		{name: "compact offset", tz: "+0530", wantOffset: 5*3600 + 30*60},
		{name: "out of range", tz: "+15:00", wantErr: true},
		{name: "unknown name", tz: "Mars/Olympus", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := LoadLocation(tt.tz)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			_, offset := time.Date(2024, 1, 1, 0, 0, 0, 0, loc).Zone()
			assert.Equal(t, tt.wantOffset, offset)
		})
	}
}

func TestParseDeviceTimeAppliesOffsetOnce(t *testing.T) {
	loc, err := LoadLocation("+08:00")
	require.NoError(t, err)

	got, err := ParseDeviceTime("2024-03-01 08:00:00", deviceLayout, loc)
	require.NoError(t, err)

	want := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	assert.Equal(t, want, got)
}

func TestParseDeviceTimeEpochLayouts(t *testing.T) {
	got, err := ParseDeviceTime("1700000000", LayoutEpochSeconds, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000000), got)

	got, err = ParseDeviceTime("1700000000123", LayoutEpochMillis, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000123), got)

	_, err = ParseDeviceTime("not-a-number", LayoutEpochMillis, nil)
	assert.Error(t, err)
}

func TestParseDeviceTimeMalformed(t *testing.T) {
	_, err := ParseDeviceTime("", deviceLayout, time.UTC)
	assert.Error(t, err)

	_, err = ParseDeviceTime("yesterday", deviceLayout, time.UTC)
	assert.Error(t, err)
}

func TestFormatDeviceTimeRoundTrip(t *testing.T) {
	loc, err := LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	ms := time.Date(2024, 6, 30, 23, 59, 0, 0, time.UTC).UnixMilli()
	formatted := FormatDeviceTime(ms, deviceLayout, loc)
	assert.Equal(t, "2024-07-01 08:59:00", formatted)

	parsed, err := ParseDeviceTime(formatted, deviceLayout, loc)
	require.NoError(t, err)
	assert.Equal(t, ms, parsed)

	assert.Equal(t, "1719791940", FormatDeviceTime(ms, LayoutEpochSeconds, nil))
}
