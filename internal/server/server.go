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

package server

import (
	"io"

	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/config"
	loggertypes "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/logger"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/util/logger"
)

const (
	HarvesterGoName = "StorageHarvesterGoImpl"
)

// Server carries what every runner shares: the logger and the loaded config
type Server struct {
	Name   string
	Logger logger.Logger
	Config *config.HarvesterConfig
}

func New(cfg *config.HarvesterConfig, logOut io.Writer) *Server {

	return &Server{
		Config: cfg,
		Name:   HarvesterGoName,
		Logger: logger.NewLogger(logOut, Logging(cfg)),
	}
}

// Logging builds the per component log levels from the config
func Logging(cfg *config.HarvesterConfig) *loggertypes.HarvesterLogging {

	logging := loggertypes.DefaultHarvesterLogging()
	if cfg == nil {
		return logging
	}

	if cfg.Harvester.Log.Level != "" {
		logging.Level[loggertypes.LogComponentDefault] = loggertypes.LogLevel(cfg.Harvester.Log.Level)
	}
	for component, level := range cfg.Harvester.Log.Components {
		logging.Level[component] = level
	}

	return logging
}
