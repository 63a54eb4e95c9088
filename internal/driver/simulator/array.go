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

package simulator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/driver"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/driver/lookup"
	cfgtypes "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/config"
	errtypes "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/err"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/storage"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/util/hash"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/util/logger"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/util/timeutil"
)

// Operations fault injection can target
const (
	OpSamples = "samples"
	OpEvents  = "events"
	OpLatest  = "latest"
	OpClear   = "clear"
)

const pathPrefix = "/perf/"

var errClosed = errors.New("simulated array is closed")

// Fault makes an operation fail Times times. Page 0 matches every page.
type Fault struct {
	Op    string
	Page  int
	Err   error
	Times int
}

// eventKind is one kind of fault the array raises
type eventKind struct {
	code         string
	name         string
	resourceType string
}

var eventKinds = []eventKind{
	{code: "0xF0001", name: "DiskFailure", resourceType: "disk"},
	{code: "0xF0002", name: "FanSpeedLow", resourceType: "controller"},
	{code: "0xF0003", name: "PoolCapacityHigh", resourceType: "pool"},
	{code: "0xF0004", name: "PortLinkDown", resourceType: "port"},
	{code: "0xF0005", name: "BatteryReplace", resourceType: "enclosure"},
}

// Array is a deterministic in-process storage array. Samples and events are
// derived from the clock so every instance of the same device reports the
// same history.
type Array struct {
	device   cfgtypes.DeviceConfig
	opts     options
	layout   string
	location *time.Location
	logger   logger.Logger

	// mu guards the session only
	mu        sync.Mutex
	session   string
	expiresAt time.Time
	logins    int
	closed    bool

	stateMu sync.Mutex
	now     func() time.Time
	cleared map[string]struct{}
	faults  []*Fault
}

var _ driver.Backend = (*Array)(nil)

func NewArray(device cfgtypes.DeviceConfig, family *lookup.FamilyTable, log logger.Logger) (*Array, error) {
	if family == nil {
		return nil, fmt.Errorf("%w: no lookup table for device %s", errtypes.UnknownFamily, device.ID)
	}
	opts, err := parseOptions(device.Options)
	if err != nil {
		return nil, fmt.Errorf("%w: device %s: %v", errtypes.InvalidDeviceConfig, device.ID, err)
	}
	loc, err := timeutil.LoadLocation(device.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("%w: device %s: %v", errtypes.InvalidDeviceConfig, device.ID, err)
	}

	return &Array{
		device:   device,
		opts:     opts,
		layout:   family.TimeLayout,
		location: loc,
		logger:   log.WithValues("array", device.ID),
		now:      time.Now,
		cleared:  make(map[string]struct{}),
	}, nil
}

// SetClock replaces the wall clock the array derives its history from
func (a *Array) SetClock(now func() time.Time) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()

	a.now = now
}

// InjectFault queues a failure for an operation
func (a *Array) InjectFault(f Fault) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()

	if f.Times <= 0 {
		f.Times = 1
	}
	a.faults = append(a.faults, &f)
}

// Logins returns how many sessions were opened
func (a *Array) Logins() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.logins
}

// ExpireSession drops the current session so the next call has to log in
func (a *Array) ExpireSession() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.session = ""
}

func (a *Array) SamplePath(target driver.Target) (string, error) {
	if _, ok := a.opts.resources[target.ResourceType]; !ok {
		return "", fmt.Errorf("%w: resource type %s on %s", errtypes.UnsupportedPath, target.ResourceType, a.device.ID)
	}
	if _, err := storage.ParseMetricType(string(target.Metric)); err != nil {
		return "", fmt.Errorf("%w: %v", errtypes.UnsupportedPath, err)
	}
	return pathPrefix + target.ResourceType + "/" + string(target.Metric), nil
}

// FetchSamplePage returns samples newest first, one entry per resource and
// shard. Totals are not reported, only their read and write halves.
func (a *Array) FetchSamplePage(ctx context.Context, path string, page int) ([]driver.Sample, error) {
	if err := a.call(ctx, OpSamples, page); err != nil {
		return nil, err
	}

	resourceType, metric, err := a.parsePath(path)
	if err != nil {
		return nil, err
	}
	if isReportedTotal(metric) || page < 1 {
		return nil, nil
	}

	ids := a.opts.resources[resourceType]
	perTimestamp := len(ids) * a.opts.shards
	newest := a.newestSample()
	count := int(a.opts.retention / a.opts.sampleStep)
	total := count * perTimestamp

	first := (page - 1) * a.opts.pageSize
	if first >= total {
		return nil, nil
	}
	last := first + a.opts.pageSize
	if last > total {
		last = total
	}

	stepMs := a.opts.sampleStep.Milliseconds()
	samples := make([]driver.Sample, 0, last-first)
	for idx := first; idx < last; idx++ {
		ts := newest - int64(idx/perTimestamp)*stepMs
		rem := idx % perTimestamp
		id := ids[rem/a.opts.shards]
		shard := rem % a.opts.shards

		samples = append(samples, driver.Sample{
			ResourceID: id,
			Shard:      strconv.Itoa(shard),
			Time:       timeutil.FormatDeviceTime(ts, a.layout, a.location),
			Value:      strconv.FormatFloat(sampleValue(resourceType, id, metric, shard, ts), 'f', 2, 64),
		})
	}

	return samples, nil
}

// FetchEventPage returns the events raised within the range, newest first
func (a *Array) FetchEventPage(ctx context.Context, timeRange storage.TimeRange, page int) ([]driver.RawAlert, error) {
	if err := a.call(ctx, OpEvents, page); err != nil {
		return nil, err
	}
	if page < 1 {
		return nil, nil
	}

	events := a.events(timeRange)
	first := (page - 1) * a.opts.pageSize
	if first >= len(events) {
		return nil, nil
	}
	last := first + a.opts.pageSize
	if last > len(events) {
		last = len(events)
	}
	return events[first:last], nil
}

func (a *Array) LatestSampleTime(ctx context.Context) (string, error) {
	if err := a.call(ctx, OpLatest, 0); err != nil {
		return "", err
	}
	return timeutil.FormatDeviceTime(a.newestSample(), a.layout, a.location), nil
}

func (a *Array) ClearEvent(ctx context.Context, ref string) error {
	if err := a.call(ctx, OpClear, 0); err != nil {
		return err
	}

	k, err := strconv.ParseInt(strings.TrimPrefix(ref, "evt-"), 10, 64)
	if err != nil || !strings.HasPrefix(ref, "evt-") {
		return fmt.Errorf("%w: %s", errtypes.AlertNotFound, ref)
	}
	oldest, newest := a.eventRange()
	if k < oldest || k > newest {
		return fmt.Errorf("%w: %s", errtypes.AlertNotFound, ref)
	}

	a.stateMu.Lock()
	a.cleared[ref] = struct{}{}
	a.stateMu.Unlock()

	a.logger.Info("event cleared", "ref", ref)
	return nil
}

func (a *Array) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.closed = true
	a.session = ""
	return nil
}

// call runs the request preamble: cancellation, session and injected faults.
// An expired session is renewed once.
func (a *Array) call(ctx context.Context, op string, page int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	for attempt := 0; ; attempt++ {
		if err := a.ensureSession(); err != nil {
			return err
		}
		err := a.fault(op, page)
		if errors.Is(err, errtypes.SessionExpired) && attempt == 0 {
			a.logger.V(1).Info("session expired, logging in again", "op", op)
			a.ExpireSession()
			continue
		}
		return err
	}
}

func (a *Array) ensureSession() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return errClosed
	}
	now := a.clock()
	if a.session != "" && now.Before(a.expiresAt) {
		return nil
	}

	a.logins++
	a.session = fmt.Sprintf("%s-session-%d", a.device.ID, a.logins)
	a.expiresAt = now.Add(a.opts.sessionTTL)
	a.logger.V(1).Info("logged in", "logins", a.logins)
	return nil
}

func (a *Array) fault(op string, page int) error {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()

	for i, f := range a.faults {
		if f.Op != op || (f.Page != 0 && f.Page != page) {
			continue
		}
		f.Times--
		if f.Times <= 0 {
			a.faults = append(a.faults[:i], a.faults[i+1:]...)
		}
		return f.Err
	}
	return nil
}

func (a *Array) clock() time.Time {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()

	return a.now()
}

func (a *Array) parsePath(path string) (string, storage.MetricType, error) {
	rest, ok := strings.CutPrefix(path, pathPrefix)
	if !ok {
		return "", "", fmt.Errorf("%w: %s", errtypes.UnsupportedPath, path)
	}
	resourceType, name, ok := strings.Cut(rest, "/")
	if !ok {
		return "", "", fmt.Errorf("%w: %s", errtypes.UnsupportedPath, path)
	}
	if _, ok := a.opts.resources[resourceType]; !ok {
		return "", "", fmt.Errorf("%w: %s", errtypes.UnsupportedPath, path)
	}
	metric, err := storage.ParseMetricType(name)
	if err != nil {
		return "", "", fmt.Errorf("%w: %s", errtypes.UnsupportedPath, path)
	}
	return resourceType, metric, nil
}

// newestSample is the latest sample time aligned to the sample step
func (a *Array) newestSample() int64 {
	stepMs := a.opts.sampleStep.Milliseconds()
	return a.clock().UnixMilli() / stepMs * stepMs
}

// eventRange returns the first and last event sequence still retained
func (a *Array) eventRange() (int64, int64) {
	everyMs := a.opts.eventEvery.Milliseconds()
	now := a.clock().UnixMilli()
	return (now-a.opts.retention.Milliseconds())/everyMs + 1, now / everyMs
}

func (a *Array) events(timeRange storage.TimeRange) []driver.RawAlert {
	oldest, newest := a.eventRange()
	everyMs := a.opts.eventEvery.Milliseconds()

	a.stateMu.Lock()
	defer a.stateMu.Unlock()

	var events []driver.RawAlert
	for k := newest; k >= oldest; k-- {
		ts := k * everyMs
		if !timeRange.Contains(ts) {
			continue
		}
		kind := eventKinds[int(k%int64(len(eventKinds)))]
		id := fmt.Sprintf("evt-%d", k)
		_, cleared := a.cleared[id]

		events = append(events, driver.RawAlert{
			ID:           id,
			Name:         kind.name,
			Code:         kind.code,
			SeverityCode: strconv.Itoa(int(k%5) + 1),
			Category:     "fault",
			Type:         "event",
			Time:         timeutil.FormatDeviceTime(ts, a.layout, a.location),
			Sequence:     strconv.FormatInt(k, 10),
			Message:      fmt.Sprintf("%s reported by %s %s-%d", kind.name, kind.resourceType, kind.resourceType, k%3),
			ResourceType: kind.resourceType,
			Location:     fmt.Sprintf("%s/%s-%d", a.device.ID, kind.resourceType, k%3),
			Solved:       cleared || k%4 == 3,
		})
	}
	return events
}

func isReportedTotal(metric storage.MetricType) bool {
	switch metric {
	case storage.MetricIOPS, storage.MetricThroughput, storage.MetricIOSize:
		return true
	}
	return false
}

// sampleValue derives a stable value in the native unit of the metric
func sampleValue(resourceType, id string, metric storage.MetricType, shard int, ts int64) float64 {
	h := hash.Key64(resourceType, id, string(metric), strconv.Itoa(shard), strconv.FormatInt(ts, 10))
	frac := float64(h%10000) / 10000

	switch metric {
	case storage.MetricReadIOPS, storage.MetricWriteIOPS:
		return 100 + frac*1000
	case storage.MetricReadThroughput, storage.MetricWriteThroughput:
		if resourceType == "port" {
			return 1_000_000 + frac*9_000_000
		}
		return 1024 + frac*10240
	case storage.MetricResponseTime:
		return 200 + frac*5000
	case storage.MetricReadIOSize, storage.MetricWriteIOSize:
		return 4096 + frac*61440
	}
	return frac
}
