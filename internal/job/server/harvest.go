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

package server

import (
	"context"
	"fmt"
	"time"

	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/driver"
	selfmetrics "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/metrics"
	jobtypes "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/job"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/storage"
)

// perfTick runs one performance cycle of a device
func (r *Runner) perfTick(ctx context.Context, job jobtypes.Job) error {
	d, err := r.device(job.DeviceID)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	start := time.Now()
	status, err := r.harvestPerf(ctx, d, job.Interval)
	observeCycle(jobtypes.KindPerf, status, start)
	return err
}

// harvestPerf collects the samples between the watermark and the newest
// sample on the device. The first cycle looks back one interval. A failed
// window keeps the watermark so the next cycle asks for it again, until
// MaxFailedRetries cycles in a row failed and the window is given up.
func (r *Runner) harvestPerf(ctx context.Context, d *device, interval time.Duration) (string, error) {
	latest, err := d.capability.GetLatestPerfTimestamp(ctx)
	if err != nil {
		return selfmetrics.StatusFailure, fmt.Errorf("latest perf timestamp of %s: %w", d.cfg.ID, err)
	}

	d.mu.Lock()
	mark := d.perfMark
	d.mu.Unlock()

	if mark != 0 && latest <= mark {
		d.logger.V(1).Info("no new samples", "latest", latest)
		return selfmetrics.StatusSuccess, nil
	}

	from := mark
	if from == 0 {
		from = latest - interval.Milliseconds()
	}

	if len(d.targets) == 0 {
		r.advancePerf(d, latest)
		return selfmetrics.StatusSuccess, nil
	}

	records, harvestErr := d.capability.CollectPerfMetrics(ctx, driver.PerfRequest{
		Targets: d.targets,
		Start:   from,
		End:     latest,
	})
	r.exportMetrics(ctx, d, records)

	if harvestErr == nil {
		r.advancePerf(d, latest)
		d.logger.V(1).Info("perf cycle done", "start", from, "end", latest, "records", len(records))
		return selfmetrics.StatusSuccess, nil
	}

	if ctx.Err() == nil {
		d.mu.Lock()
		d.perfRetries++
		retries := d.perfRetries
		if retries >= r.engine.MaxFailedRetries {
			d.perfMark = latest
			d.perfRetries = 0
		}
		d.mu.Unlock()

		if retries >= r.engine.MaxFailedRetries {
			d.logger.Info("giving up perf window after repeated failures", "start", from, "end", latest, "attempts", retries)
		}
	}

	return partialOrFailure(len(records)), harvestErr
}

func (r *Runner) advancePerf(d *device, latest int64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.perfMark = latest
	d.perfRetries = 0
}

// alertTick runs one alert cycle of a device
func (r *Runner) alertTick(ctx context.Context, job jobtypes.Job) error {
	d, err := r.device(job.DeviceID)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	start := time.Now()
	status, err := r.harvestAlerts(ctx, d)
	observeCycle(jobtypes.KindAlert, status, start)
	return err
}

// harvestAlerts lists the events raised since the previous window. The first
// cycle looks back AlertLookback. Failed windows are retried like perf ones,
// and a retry only exports the alerts the failed attempts did not.
func (r *Runner) harvestAlerts(ctx context.Context, d *device) (string, error) {
	now := r.Now().UnixMilli()

	d.mu.Lock()
	mark := d.alertMark
	d.mu.Unlock()

	from := mark + 1
	if mark == 0 {
		from = now - r.engine.AlertLookback.Milliseconds()
	}
	if from > now {
		return selfmetrics.StatusSuccess, nil
	}

	records, harvestErr := d.alerts.Harvest(ctx, storage.TimeRange{Start: from, End: now})
	records = d.unsentAlerts(records)
	if len(records) > 0 {
		if err := r.Exporter.ExportAlerts(ctx, records); err != nil {
			d.logger.V(1).Info("alert export incomplete", "error", err.Error())
		}
	}

	if harvestErr == nil {
		d.mu.Lock()
		d.alertMark = now
		d.alertRetries = 0
		d.alertSent = nil
		d.mu.Unlock()
		d.logger.V(1).Info("alert cycle done", "start", from, "end", now, "records", len(records))
		return selfmetrics.StatusSuccess, nil
	}

	if ctx.Err() == nil {
		d.mu.Lock()
		d.alertRetries++
		retries := d.alertRetries
		if retries >= r.engine.MaxFailedRetries {
			d.alertMark = now
			d.alertRetries = 0
			d.alertSent = nil
		} else {
			d.markAlertsSent(records)
		}
		d.mu.Unlock()

		if retries >= r.engine.MaxFailedRetries {
			d.logger.Info("giving up alert window after repeated failures", "start", from, "end", now, "attempts", retries)
		}
	}

	return partialOrFailure(len(records)), harvestErr
}

// unsentAlerts drops the alerts a failed attempt of the same window already exported
func (d *device) unsentAlerts(records []storage.AlertRecord) []storage.AlertRecord {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.alertSent) == 0 {
		return records
	}
	kept := records[:0]
	for _, rec := range records {
		if _, ok := d.alertSent[alertKey(rec)]; !ok {
			kept = append(kept, rec)
		}
	}
	return kept
}

// markAlertsSent must be called with d.mu held
func (d *device) markAlertsSent(records []storage.AlertRecord) {
	if len(records) == 0 {
		return
	}
	if d.alertSent == nil {
		d.alertSent = make(map[string]struct{}, len(records))
	}
	for _, rec := range records {
		d.alertSent[alertKey(rec)] = struct{}{}
	}
}

func alertKey(rec storage.AlertRecord) string {
	return rec.AlertID + "\x00" + rec.SequenceNumber
}

func (r *Runner) exportMetrics(ctx context.Context, d *device, records []storage.MetricRecord) {
	if len(records) == 0 {
		return
	}
	if err := r.Exporter.ExportMetrics(ctx, records); err != nil {
		d.logger.V(1).Info("metric export incomplete", "error", err.Error())
	}
}

func partialOrFailure(records int) string {
	if records > 0 {
		return selfmetrics.StatusPartial
	}
	return selfmetrics.StatusFailure
}

func observeCycle(kind jobtypes.Kind, status string, start time.Time) {
	selfmetrics.HarvestCycleTotal.WithLabelValues(string(kind), status).Inc()
	selfmetrics.HarvestCycleDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
}
