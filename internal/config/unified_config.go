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
	cfgtypes "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/config"
)

// UnifiedConfigLoader loads from file first, then overrides with environment variables
type UnifiedConfigLoader struct {
	*Loader
}

// NewUnifiedConfigLoader creates a new unified configuration loader
func NewUnifiedConfigLoader(cfgPath string) *UnifiedConfigLoader {
	return &UnifiedConfigLoader{Loader: New(cfgPath)}
}

// Load loads configuration from file and environment variables.
// Environment variables take precedence over file configuration; without a
// file path the defaults are used. A file that fails to load is an error.
func (l *UnifiedConfigLoader) Load() (*cfgtypes.HarvesterConfig, error) {
	var cfg *cfgtypes.HarvesterConfig

	if l.cfgPath != "" {
		fileCfg, err := l.LoadConfig()
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	} else {
		cfg = DefaultConfig()
		l.logger.Info("no config file given, using default configuration")
	}

	finalCfg := MergeWithEnv(cfg)
	if err := revealFromEnv(finalCfg); err != nil {
		return nil, err
	}

	if err := l.ValidateConfig(finalCfg); err != nil {
		return nil, err
	}

	SetGlobalConfig(finalCfg)
	l.PrintConfig(finalCfg)
	return finalCfg, nil
}
