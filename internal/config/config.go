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

package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/constants"
	cfgtypes "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/config"
	harvestertypes "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/err"
	loggertypes "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/logger"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/runner"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/storage"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/util/logger"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/util/timeutil"
)

const reloadDebounce = 300 * time.Millisecond

var (
	globalConfig atomic.Pointer[cfgtypes.HarvesterConfig]
	configMu     sync.RWMutex
)

// ReloadFunc receives every configuration that passed validation after a file change
type ReloadFunc func(cfg *cfgtypes.HarvesterConfig)

// Loader handles file-based configuration loading with hot-reload support
type Loader struct {
	cfgPath  string
	logger   logger.Logger
	onReload []ReloadFunc
}

// New creates a new configuration loader
func New(cfgPath string) *Loader {

	return &Loader{
		cfgPath: cfgPath,
		logger:  logger.DefaultLogger(os.Stdout, loggertypes.LogLevelInfo).WithName("config-loader"),
	}
}

// OnReload registers a callback run after a successful reload
func (l *Loader) OnReload(fn ReloadFunc) {
	l.onReload = append(l.onReload, fn)
}

// LoadConfig loads configuration from file
func (l *Loader) LoadConfig() (*cfgtypes.HarvesterConfig, error) {
	if l.cfgPath == "" {
		l.logger.Error(harvestertypes.ConfigPathIsEmpty, "config path is empty")
		return nil, harvestertypes.ConfigPathIsEmpty
	}

	cfg, err := l.parseConfigFile(l.cfgPath)
	if err != nil {
		return nil, err
	}

	l.logger.Info("configuration loaded successfully", "path", l.cfgPath, "devices", len(cfg.Harvester.Devices))
	return cfg, nil
}

// parseConfigFile parses the YAML config file
func (l *Loader) parseConfigFile(path string) (*cfgtypes.HarvesterConfig, error) {
	// Resolve symlinks to handle Kubernetes ConfigMap mounts
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		resolved = path
	}

	if _, err := os.Stat(resolved); os.IsNotExist(err) {
		l.logger.Error(err, "config file not exist", "path", resolved)
		return nil, err
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		l.logger.Error(err, "failed to read config file", "path", resolved)
		return nil, err
	}

	var cfg cfgtypes.HarvesterConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		l.logger.Error(err, "failed to parse config file", "path", resolved)
		return nil, err
	}

	// Apply default values
	// when some fields are missing in config file
	ApplyDefaults(&cfg)

	return &cfg, nil
}

// ApplyDefaults fills in missing configuration with defaults. Device level
// intervals fall back to the engine wide ones.
func ApplyDefaults(cfg *cfgtypes.HarvesterConfig) {
	h := &cfg.Harvester

	if h.Info.Name == "" {
		h.Info.Name = constants.DefaultHarvesterName
	}
	if h.Log.Level == "" {
		h.Log.Level = string(loggertypes.LogLevelInfo)
	}
	if h.Metrics.Port == 0 {
		h.Metrics.Port = constants.DefaultMetricsPort
	}

	if h.Scheduler.TickDuration <= 0 {
		h.Scheduler.TickDuration = constants.DefaultTickDuration
	}
	if h.Scheduler.WheelSize <= 0 {
		h.Scheduler.WheelSize = constants.DefaultWheelSize
	}
	if h.Scheduler.MaxConcurrent <= 0 {
		h.Scheduler.MaxConcurrent = constants.DefaultMaxConcurrent
	}

	if h.Engine.PerfInterval <= 0 {
		h.Engine.PerfInterval = constants.DefaultPerfInterval
	}
	if h.Engine.AlertInterval <= 0 {
		h.Engine.AlertInterval = constants.DefaultAlertInterval
	}
	if h.Engine.AlertLookback <= 0 {
		h.Engine.AlertLookback = constants.DefaultAlertLookback
	}
	if h.Engine.MaxFailedRetries <= 0 {
		h.Engine.MaxFailedRetries = constants.DefaultMaxFailedRetries
	}

	if h.Exporters.Kafka.Encoding == "" {
		h.Exporters.Kafka.Encoding = constants.DefaultKafkaEncoding
	}

	for i := range h.Devices {
		d := &h.Devices[i]
		if d.Family == "" {
			d.Family = d.Vendor
		}
		if d.PerfInterval <= 0 {
			d.PerfInterval = h.Engine.PerfInterval
		}
		if d.AlertInterval <= 0 {
			d.AlertInterval = h.Engine.AlertInterval
		}
	}
}

// ValidateConfig validates the configuration. Every problem found is reported,
// not just the first one.
func (l *Loader) ValidateConfig(cfg *cfgtypes.HarvesterConfig) error {
	if cfg == nil {
		l.logger.Error(harvestertypes.HarvesterConfigIsNil, "config validation failed")
		return harvestertypes.HarvesterConfigIsNil
	}

	if cfg.Harvester.Info.IP == "" {
		l.logger.Error(harvestertypes.HarvesterIPIsNil, "config validation failed")
		return harvestertypes.HarvesterIPIsNil
	}

	if cfg.Harvester.Info.Port == "" {
		l.logger.Error(harvestertypes.HarvesterPortIsNil, "config validation failed")
		return harvestertypes.HarvesterPortIsNil
	}

	if cfg.Harvester.Info.Name == "" {
		cfg.Harvester.Info.Name = constants.DefaultHarvesterName
		l.logger.Sugar().Debug("harvester name is empty, using default")
	}

	var result *multierror.Error
	if _, err := strconv.Atoi(cfg.Harvester.Info.Port); err != nil {
		result = multierror.Append(result, fmt.Errorf("invalid harvester port %q", cfg.Harvester.Info.Port))
	}

	seen := make(map[string]struct{}, len(cfg.Harvester.Devices))
	for _, d := range cfg.Harvester.Devices {
		if err := validateDevice(d); err != nil {
			result = multierror.Append(result, err)
			continue
		}
		if _, dup := seen[d.ID]; dup {
			result = multierror.Append(result, fmt.Errorf("%w: duplicate device id %q", harvestertypes.InvalidDeviceConfig, d.ID))
		}
		seen[d.ID] = struct{}{}
	}

	if err := result.ErrorOrNil(); err != nil {
		l.logger.Error(err, "config validation failed")
		return err
	}
	return nil
}

func validateDevice(d cfgtypes.DeviceConfig) error {
	if d.ID == "" {
		return fmt.Errorf("%w: device without id", harvestertypes.InvalidDeviceConfig)
	}
	if d.Vendor == "" {
		return fmt.Errorf("%w: device %s has no vendor", harvestertypes.InvalidDeviceConfig, d.ID)
	}
	if d.TimeZone != "" {
		if _, err := timeutil.LoadLocation(d.TimeZone); err != nil {
			return fmt.Errorf("%w: device %s: %v", harvestertypes.InvalidDeviceConfig, d.ID, err)
		}
	}
	for _, t := range d.Targets {
		if t.ResourceType == "" {
			return fmt.Errorf("%w: device %s target without resource type", harvestertypes.InvalidDeviceConfig, d.ID)
		}
		if _, err := storage.ParseMetricType(t.Metric); err != nil {
			return fmt.Errorf("%w: device %s: %v", harvestertypes.InvalidDeviceConfig, d.ID, err)
		}
	}
	return nil
}

// PrintConfig prints the configuration
func (l *Loader) PrintConfig(cfg *cfgtypes.HarvesterConfig) {
	if cfg == nil {
		l.logger.Info("config is nil")
		return
	}
	l.logger.Info("current configuration",
		"name", cfg.Harvester.Info.Name,
		"ip", cfg.Harvester.Info.IP,
		"port", cfg.Harvester.Info.Port,
		"log_level", cfg.Harvester.Log.Level,
		"devices", len(cfg.Harvester.Devices),
		"perf_interval", cfg.Harvester.Engine.PerfInterval.String(),
		"alert_interval", cfg.Harvester.Engine.AlertInterval.String(),
	)
}

// GetGlobalConfig returns the current global configuration
func GetGlobalConfig() *cfgtypes.HarvesterConfig {
	return globalConfig.Load()
}

// SetGlobalConfig sets the global configuration
func SetGlobalConfig(cfg *cfgtypes.HarvesterConfig) {
	configMu.Lock()
	defer configMu.Unlock()
	globalConfig.Store(cfg)
}

// WatchConfigAndReload watches the config file and reloads on changes
// This function implements hot-reload for both configuration and logging
func (l *Loader) WatchConfigAndReload(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		l.logger.Error(err, "failed to create config watcher")
		return err
	}
	defer watcher.Close()

	// Watch both the file and its directory to handle symlink swaps (Kubernetes ConfigMap)
	cfgFile := l.cfgPath
	cfgDir := filepath.Dir(cfgFile)

	if err := watcher.Add(cfgDir); err != nil {
		l.logger.Error(err, "failed to watch config directory", "dir", cfgDir)
		return err
	}

	// Try to watch the file directly (best-effort)
	_ = watcher.Add(cfgFile)

	l.logger.Info("config file watcher started", "path", cfgFile)

	var pending atomic.Bool

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("config watcher stopped")
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename|fsnotify.Chmod) == 0 {
				continue
			}
			if filepath.Base(event.Name) != filepath.Base(cfgFile) && filepath.Dir(event.Name) != cfgDir {
				continue
			}
			// Debounce: one reload per burst of events
			if pending.CompareAndSwap(false, true) {
				time.AfterFunc(reloadDebounce, func() {
					pending.Store(false)
					if ctx.Err() == nil {
						l.reload()
					}
				})
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.logger.Error(err, "config watcher error")
		}
	}
}

func (l *Loader) reload() {
	l.logger.Info("config file changed, reloading...")

	newCfg, err := l.parseConfigFile(l.cfgPath)
	if err != nil {
		l.logger.Error(err, "failed to reload config")
		return
	}
	newCfg = MergeWithEnv(newCfg)
	if err := revealFromEnv(newCfg); err != nil {
		l.logger.Error(err, "failed to reveal device secrets after reload")
		return
	}

	if err := l.ValidateConfig(newCfg); err != nil {
		l.logger.Error(err, "invalid config after reload")
		return
	}

	SetGlobalConfig(newCfg)

	if err := l.reloadLogging(newCfg); err != nil {
		l.logger.Error(err, "failed to reload logging")
	}

	for _, fn := range l.onReload {
		fn(newCfg)
	}

	l.logger.Info("configuration reloaded successfully")
}

// reloadLogging reloads the logging configuration
// when config file changes, it helps dynamically
// adjust the log level for dynamic debugging
func (l *Loader) reloadLogging(cfg *cfgtypes.HarvesterConfig) error {

	if cfg == nil {
		return errors.New("config is nil")
	}

	level := loggertypes.LogLevel(cfg.Harvester.Log.Level)
	if level == "" {
		level = loggertypes.LogLevelInfo
	}

	l.logger = logger.DefaultLogger(os.Stdout, level).WithName("config-loader")

	l.logger.Info("logging configuration reloaded", "level", level)
	return nil
}

// Watcher runs the loader's file watch as a server runner
type Watcher struct {
	loader *Loader
}

func NewWatcher(loader *Loader) *Watcher {
	return &Watcher{loader: loader}
}

func (w *Watcher) Start(ctx context.Context) error {
	if w.loader.cfgPath == "" {
		<-ctx.Done()
		return nil
	}
	err := w.loader.WatchConfigAndReload(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *Watcher) Info() runner.Info {
	return runner.Info{Name: "config-watcher"}
}

func (w *Watcher) Close() error {
	return nil
}
