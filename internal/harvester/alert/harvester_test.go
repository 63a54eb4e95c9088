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

package alert

import (
	"context"
	"errors"
	"io"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/driver"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/driver/lookup"
	errtypes "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/err"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/storage"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/util/hash"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/util/logger"
)

const base = int64(1_700_000_000_000)

const testTables = `
families:
  test:
    time_layout: epoch_ms
    severities:
      "3": MAJOR
      "4": CRITICAL
    descriptions:
      "0x1": "Disk failed"
`

type pagedLister struct {
	pages  [][]driver.RawAlert
	failOn int
	calls  []int
}

func (p *pagedLister) ListAlerts(_ context.Context, _ storage.TimeRange, page int) ([]driver.RawAlert, error) {
	p.calls = append(p.calls, page)
	if page == p.failOn {
		return nil, errors.New("session expired")
	}
	if page > len(p.pages) {
		return nil, nil
	}
	return p.pages[page-1], nil
}

func raw(id, seq string, ts int64) driver.RawAlert {
	return driver.RawAlert{
		ID:           id,
		Name:         "DiskFailure",
		Code:         "0x1",
		SeverityCode: "4",
		Time:         strconv.FormatInt(ts, 10),
		Sequence:     seq,
		Message:      "disk " + id + " failed",
		ResourceType: "disk",
		Location:     "enclosure 1",
	}
}

func testFamily(t *testing.T) *lookup.FamilyTable {
	t.Helper()
	tables, err := lookup.Parse([]byte(testTables))
	require.NoError(t, err)
	family, err := tables.Family("test")
	require.NoError(t, err)
	return family
}

func newHarvester(t *testing.T, source Lister) *Harvester {
	t.Helper()
	h, err := New(Config{DeviceID: "array-01", Source: source, Family: testFamily(t)}, logger.DefaultLogger(io.Discard, "info"))
	require.NoError(t, err)
	return h
}

func window() storage.TimeRange {
	return storage.TimeRange{Start: base, End: base + time.Hour.Milliseconds()}
}

func TestHarvestSkipsSolvedAndOutOfWindow(t *testing.T) {
	solved := raw("a-2", "2", base+10)
	solved.Solved = true

	lister := &pagedLister{pages: [][]driver.RawAlert{
		{raw("a-1", "1", base+5), solved},
		{raw("a-3", "3", base-1), raw("a-4", "4", base+2*time.Hour.Milliseconds())},
	}}

	records, err := newHarvester(t, lister).Harvest(context.Background(), window())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "a-1", records[0].AlertID)
	assert.Equal(t, []int{1, 2, 3}, lister.calls)
}

func TestHarvestNormalizesRecord(t *testing.T) {
	lister := &pagedLister{pages: [][]driver.RawAlert{{raw("a-1", "7", base+5)}}}

	records, err := newHarvester(t, lister).Harvest(context.Background(), window())
	require.NoError(t, err)
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, storage.AlertRecord{
		AlertID:        "a-1",
		AlertName:      "DiskFailure",
		Severity:       storage.SeverityCritical,
		OccurTime:      base + 5,
		SequenceNumber: "7",
		Description:    "Disk failed",
		ResourceType:   "disk",
		Location:       "enclosure 1",
		MatchKey:       hash.MatchKey("disk a-1 failed", "DiskFailure"),
		DeviceID:       "array-01",
	}, r)
}

func TestHarvestUnknownSeverityIsInformational(t *testing.T) {
	a := raw("a-1", "1", base+5)
	a.SeverityCode = "42"
	lister := &pagedLister{pages: [][]driver.RawAlert{{a}}}

	records, err := newHarvester(t, lister).Harvest(context.Background(), window())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, storage.SeverityInformational, records[0].Severity)
}

func TestHarvestSkipsMalformedAndContinues(t *testing.T) {
	broken := raw("a-2", "2", base)
	broken.Time = "not a time"
	missing := raw("a-4", "4", base)
	missing.Time = ""

	lister := &pagedLister{pages: [][]driver.RawAlert{
		{raw("a-1", "1", base+1), broken, raw("a-3", "3", base+3), missing},
		{raw("a-5", "5", base+5)},
	}}

	records, err := newHarvester(t, lister).Harvest(context.Background(), window())
	require.NoError(t, err)

	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.AlertID)
	}
	assert.Equal(t, []string{"a-1", "a-3", "a-5"}, ids)
}

func TestHarvestDeduplicatesSequence(t *testing.T) {
	lister := &pagedLister{pages: [][]driver.RawAlert{
		{raw("a-1", "1", base+1)},
		{raw("a-1", "1", base+1), raw("a-1", "2", base+2)},
	}}

	records, err := newHarvester(t, lister).Harvest(context.Background(), window())
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestHarvestPageErrorReturnsPartial(t *testing.T) {
	lister := &pagedLister{
		pages:  [][]driver.RawAlert{{raw("a-1", "1", base+1)}, {raw("a-2", "2", base+2)}},
		failOn: 2,
	}

	records, err := newHarvester(t, lister).Harvest(context.Background(), window())
	require.Error(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "a-1", records[0].AlertID)
}

func TestHarvestCancelled(t *testing.T) {
	lister := &pagedLister{pages: [][]driver.RawAlert{{raw("a-1", "1", base+1)}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	records, err := newHarvester(t, lister).Harvest(ctx, window())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, records)
	assert.Empty(t, lister.calls)
}

func TestHarvestInvalidWindow(t *testing.T) {
	_, err := newHarvester(t, &pagedLister{}).Harvest(context.Background(), storage.TimeRange{Start: 2, End: 1})
	assert.ErrorIs(t, err, errtypes.InvalidTimeRange)
}

func TestNormalizeFallbacks(t *testing.T) {
	family := testFamily(t)

	record, err := Normalize("array-01", driver.RawAlert{Code: "0x1", Time: strconv.FormatInt(base, 10)}, family, nil)
	require.NoError(t, err)
	assert.Equal(t, "0x1", record.AlertID)
	assert.Equal(t, "Disk failed", record.AlertName)
	assert.Equal(t, hash.MatchKey("", "Disk failed"), record.MatchKey)

	_, err = Normalize("array-01", driver.RawAlert{Time: strconv.FormatInt(base, 10)}, family, nil)
	assert.ErrorIs(t, err, errtypes.MalformedAlert)
}
