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
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/constants"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/driver"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/driver/lookup"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/exporter"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/harvester/alert"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/job/scheduler"
	selfmetrics "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/metrics"
	clrserver "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/server"
	cfgtypes "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/config"
	errtypes "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/err"
	jobtypes "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/job"
	loggertypes "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/logger"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/runner"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/storage"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/util/logger"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/util/timeutil"
)

const jobServiceName = "job-service"

// Config represents job service configuration
type Config struct {
	clrserver.Server
	Exporter exporter.Exporter
	// Tables defaults to the embedded lookup tables
	Tables *lookup.Tables
	// NewCapability defaults to the vendor registry
	NewCapability driver.Factory
	// Now defaults to the wall clock
	Now func() time.Time
}

// Runner turns managed devices into one performance and one alert job each
// and carries the harvested records to the exporter.
type Runner struct {
	Config
	scheduler *scheduler.Scheduler
	engine    cfgtypes.EngineConfig

	mu      sync.RWMutex
	devices map[string]*device

	started   bool
	closed    bool
	closeOnce sync.Once
}

// device is the runtime state of one managed device. The watermarks are
// advanced only by the tick sequence of the owning job, mu lets them be read.
type device struct {
	// requested is the configuration as given, cfg has the defaults applied
	requested  cfgtypes.DeviceConfig
	cfg        cfgtypes.DeviceConfig
	capability driver.Capability
	alerts     *alert.Harvester
	targets    []driver.Target
	logger     logger.Logger

	mu           sync.Mutex
	perfMark     int64
	perfRetries  int
	alertMark    int64
	alertRetries int
	// alertSent holds the alerts exported by failed attempts of the current window
	alertSent map[string]struct{}
}

// New creates a new job service runner with all components initialized
func New(srv *Config) (*Runner, error) {
	if srv.Exporter == nil {
		return nil, errors.New("job runner needs an exporter")
	}
	if srv.Tables == nil {
		tables, err := lookup.Default()
		if err != nil {
			return nil, err
		}
		srv.Tables = tables
	}
	if srv.NewCapability == nil {
		srv.NewCapability = driver.New
	}
	if srv.Now == nil {
		srv.Now = time.Now
	}

	srv.Logger = srv.Logger.WithName(jobServiceName).WithValues("runner", jobServiceName)

	var section cfgtypes.HarvesterSection
	if srv.Server.Config != nil {
		section = srv.Server.Config.Harvester
	}
	engine := section.Engine
	if engine.AlertLookback <= 0 {
		engine.AlertLookback = constants.DefaultAlertLookback
	}
	if engine.MaxFailedRetries <= 0 {
		engine.MaxFailedRetries = constants.DefaultMaxFailedRetries
	}

	sched := scheduler.New(scheduler.Config{
		TickDuration:  section.Scheduler.TickDuration,
		WheelSize:     section.Scheduler.WheelSize,
		MaxConcurrent: section.Scheduler.MaxConcurrent,
	}, srv.Logger)

	return &Runner{
		Config:    *srv,
		scheduler: sched,
		engine:    engine,
		devices:   make(map[string]*device),
	}, nil
}

// Start starts the scheduler, registers the configured devices and blocks
// until ctx is done
func (r *Runner) Start(ctx context.Context) error {
	r.Logger.Info("Starting job service runner")

	if err := r.scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	r.mu.Lock()
	r.started = true
	r.mu.Unlock()

	if r.Server.Config != nil {
		if err := r.Reconcile(r.Server.Config.Harvester.Devices); err != nil {
			// devices that failed stay out of rotation, the rest harvest
			r.Logger.Error(err, "some devices could not be registered")
		}
	}

	r.Logger.Info("job service runner started successfully", "devices", len(r.DeviceIDs()))

	<-ctx.Done()
	r.Logger.Info("job service runner stopped by context")
	return nil
}

// Info returns runner information
func (r *Runner) Info() runner.Info {
	return runner.Info{
		Name: jobServiceName,
	}
}

// Close stops every job and releases the device sessions
func (r *Runner) Close() error {
	var result *multierror.Error

	r.closeOnce.Do(func() {
		r.Logger.Info("closing job service runner")
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()

		r.scheduler.Shutdown()

		r.mu.Lock()
		defer r.mu.Unlock()
		for id, d := range r.devices {
			if err := d.capability.Close(); err != nil {
				result = multierror.Append(result, fmt.Errorf("close device %s: %w", id, err))
			}
		}
		r.devices = make(map[string]*device)
		r.Logger.Info("job service runner closed")
	})

	return result.ErrorOrNil()
}

// AddDevice creates the device capability and schedules its two jobs
func (r *Runner) AddDevice(cfg cfgtypes.DeviceConfig) error {
	if cfg.ID == "" || cfg.Vendor == "" {
		return fmt.Errorf("%w: id and vendor are required", errtypes.InvalidDeviceConfig)
	}
	requested := cfg
	if cfg.Family == "" {
		cfg.Family = cfg.Vendor
	}
	if cfg.PerfInterval <= 0 {
		cfg.PerfInterval = r.intervalOr(r.engine.PerfInterval, constants.DefaultPerfInterval)
	}
	if cfg.AlertInterval <= 0 {
		cfg.AlertInterval = r.intervalOr(r.engine.AlertInterval, constants.DefaultAlertInterval)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("%w: device %s", errtypes.SchedulerClosed, cfg.ID)
	}
	if _, exists := r.devices[cfg.ID]; exists {
		return fmt.Errorf("%w: device %s", errtypes.JobExists, cfg.ID)
	}

	d, err := r.newDevice(cfg)
	if err != nil {
		return err
	}
	d.requested = requested

	perfJob := &jobtypes.Job{
		ID:           jobtypes.ID(jobtypes.KindPerf, cfg.ID),
		DeviceID:     cfg.ID,
		Kind:         jobtypes.KindPerf,
		Interval:     cfg.PerfInterval,
		InitialDelay: cfg.InitialDelay,
	}
	alertJob := &jobtypes.Job{
		ID:           jobtypes.ID(jobtypes.KindAlert, cfg.ID),
		DeviceID:     cfg.ID,
		Kind:         jobtypes.KindAlert,
		Interval:     cfg.AlertInterval,
		InitialDelay: cfg.InitialDelay,
	}

	if err := r.scheduler.AddJob(perfJob, r.perfTick); err != nil {
		_ = d.capability.Close()
		return err
	}
	if err := r.scheduler.AddJob(alertJob, r.alertTick); err != nil {
		r.scheduler.RemoveJob(perfJob.ID)
		_ = d.capability.Close()
		return err
	}

	r.devices[cfg.ID] = d
	d.logger.Info("device registered", "vendor", cfg.Vendor, "family", cfg.Family,
		"perfInterval", cfg.PerfInterval.String(), "alertInterval", cfg.AlertInterval.String(), "targets", len(d.targets))
	return nil
}

func (r *Runner) newDevice(cfg cfgtypes.DeviceConfig) (*device, error) {
	log := r.Logger.WithName(string(loggertypes.LogComponentHarvester)).WithValues("device", cfg.ID)

	targets := make([]driver.Target, 0, len(cfg.Targets))
	for _, t := range cfg.Targets {
		metric, err := storage.ParseMetricType(t.Metric)
		if err != nil {
			return nil, fmt.Errorf("%w: device %s: %v", errtypes.InvalidDeviceConfig, cfg.ID, err)
		}
		targets = append(targets, driver.Target{ResourceType: t.ResourceType, Metric: metric})
	}

	family, err := r.Tables.Family(cfg.Family)
	if err != nil {
		return nil, fmt.Errorf("device %s: %w", cfg.ID, err)
	}
	loc, err := timeutil.LoadLocation(cfg.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("%w: device %s: %v", errtypes.InvalidDeviceConfig, cfg.ID, err)
	}

	capability, err := r.NewCapability(cfg, r.Tables, r.Logger.WithName(string(loggertypes.LogComponentDriver)))
	if err != nil {
		return nil, err
	}

	alerts, err := alert.New(alert.Config{
		DeviceID: cfg.ID,
		Source:   capability,
		Family:   family,
		Location: loc,
	}, log)
	if err != nil {
		_ = capability.Close()
		return nil, err
	}

	return &device{
		cfg:        cfg,
		capability: capability,
		alerts:     alerts,
		targets:    targets,
		logger:     log,
	}, nil
}

// RemoveDevice cancels the device jobs, running ticks included, and closes its session
func (r *Runner) RemoveDevice(deviceID string) error {
	r.mu.Lock()
	d, ok := r.devices[deviceID]
	if ok {
		delete(r.devices, deviceID)
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", errtypes.DeviceNotFound, deviceID)
	}

	r.scheduler.RemoveJob(jobtypes.ID(jobtypes.KindPerf, deviceID))
	r.scheduler.RemoveJob(jobtypes.ID(jobtypes.KindAlert, deviceID))

	if f, ok := r.Exporter.(interface{ ForgetDevice(string) }); ok {
		f.ForgetDevice(deviceID)
	}

	d.logger.Info("device removed")
	return d.capability.Close()
}

// Reconcile makes the registered devices match the given list. Devices whose
// configuration changed are re-registered and start over with fresh watermarks.
func (r *Runner) Reconcile(devices []cfgtypes.DeviceConfig) error {
	wanted := make(map[string]cfgtypes.DeviceConfig, len(devices))
	for _, d := range devices {
		wanted[d.ID] = d
	}

	r.mu.RLock()
	var stale []string
	for id, d := range r.devices {
		cfg, keep := wanted[id]
		if !keep || !reflect.DeepEqual(cfg, d.requested) {
			stale = append(stale, id)
		}
	}
	r.mu.RUnlock()

	var result *multierror.Error
	for _, id := range stale {
		if err := r.RemoveDevice(id); err != nil && !errors.Is(err, errtypes.DeviceNotFound) {
			result = multierror.Append(result, err)
		}
	}

	for _, cfg := range devices {
		if r.hasDevice(cfg.ID) {
			continue
		}
		if err := r.AddDevice(cfg); err != nil {
			result = multierror.Append(result, err)
		}
	}

	r.Logger.Info("devices reconciled", "devices", len(r.DeviceIDs()), "replaced", len(stale))
	return result.ErrorOrNil()
}

// OnConfigReload reconciles the devices of a reloaded configuration
func (r *Runner) OnConfigReload(cfg *cfgtypes.HarvesterConfig) {
	r.mu.RLock()
	started := r.started
	r.mu.RUnlock()
	if cfg == nil || !started {
		return
	}
	if err := r.Reconcile(cfg.Harvester.Devices); err != nil {
		r.Logger.Error(err, "reconcile after reload failed")
	}
}

// HandleTrap normalizes a push delivered alert of a device and exports it
func (r *Runner) HandleTrap(ctx context.Context, deviceID string, trap driver.RawTrap) (*storage.AlertRecord, error) {
	d, err := r.device(deviceID)
	if err != nil {
		return nil, err
	}

	record, err := d.capability.ParseAlert(ctx, trap)
	if err != nil {
		selfmetrics.MalformedRecordsTotal.WithLabelValues(string(jobtypes.KindAlert)).Inc()
		return nil, err
	}

	if err := r.Exporter.ExportAlerts(ctx, []storage.AlertRecord{*record}); err != nil {
		d.logger.Error(err, "trap export failed", "alertId", record.AlertID)
	}
	return record, nil
}

// ClearAlert acknowledges an alert on a device
func (r *Runner) ClearAlert(ctx context.Context, deviceID, ref string) error {
	d, err := r.device(deviceID)
	if err != nil {
		return err
	}
	return d.capability.ClearAlert(ctx, ref)
}

// Watermark returns the newest timestamp harvested by a device job
func (r *Runner) Watermark(deviceID string, kind storage.WatermarkKind) (storage.Watermark, error) {
	d, err := r.device(deviceID)
	if err != nil {
		return storage.Watermark{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	wm := storage.Watermark{DeviceID: deviceID, Kind: kind}
	switch kind {
	case storage.WatermarkPerf:
		wm.LatestSeenTime = d.perfMark
	case storage.WatermarkAlert:
		wm.LatestSeenTime = d.alertMark
	default:
		return storage.Watermark{}, fmt.Errorf("unknown watermark kind %q", kind)
	}
	return wm, nil
}

// DeviceIDs returns the registered devices in order
func (r *Runner) DeviceIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.devices))
	for id := range r.devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Jobs returns snapshots of the scheduled jobs
func (r *Runner) Jobs() []jobtypes.Job {
	return r.scheduler.Jobs()
}

func (r *Runner) hasDevice(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.devices[id]
	return ok
}

func (r *Runner) device(id string) (*device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errtypes.DeviceNotFound, id)
	}
	return d, nil
}

func (r *Runner) intervalOr(value, fallback time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return fallback
}
