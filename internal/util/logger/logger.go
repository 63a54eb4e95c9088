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

package logger

import (
	"io"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/logger"
)

type Logger struct {
	logr.Logger
	out           io.Writer
	logging       *logger.HarvesterLogging
	sugaredLogger *zap.SugaredLogger
}

func NewLogger(w io.Writer, logging *logger.HarvesterLogging) Logger {

	if logging == nil {
		logging = logger.DefaultHarvesterLogging()
	}
	logging.SetDefaults()

	zl := initZapLogger(w, logging, logging.Level[logger.LogComponentDefault])

	return Logger{
		Logger:        zapr.NewLogger(zl),
		out:           w,
		logging:       logging,
		sugaredLogger: zl.Sugar(),
	}
}

// FileLogger appends to the given file, creating it when missing.
func FileLogger(file, name string, level logger.LogLevel) (Logger, error) {

	writer, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return Logger{}, err
	}

	logging := logger.DefaultHarvesterLogging()
	zl := initZapLogger(writer, logging, level)

	return Logger{
		Logger:        zapr.NewLogger(zl).WithName(name),
		logging:       logging,
		out:           writer,
		sugaredLogger: zl.Sugar().Named(name),
	}, nil
}

func DefaultLogger(out io.Writer, level logger.LogLevel) Logger {

	logging := logger.DefaultHarvesterLogging()
	if level != "" {
		logging.Level[logger.LogComponentDefault] = level
	}
	zl := initZapLogger(out, logging, level)

	return Logger{
		Logger:        zapr.NewLogger(zl),
		out:           out,
		logging:       logging,
		sugaredLogger: zl.Sugar(),
	}
}

// WithName returns a new Logger instance with the specified name element added
// to the Logger's name. The level configured for the component of that name
// applies to the returned Logger, falling back to the default level.
func (l Logger) WithName(name string) Logger {

	logLevel := l.logging.Level[logger.HarvesterLogComponent(name)]
	zl := initZapLogger(l.out, l.logging, logLevel)

	return Logger{
		Logger:        zapr.NewLogger(zl).WithName(name),
		logging:       l.logging,
		out:           l.out,
		sugaredLogger: zl.Sugar().Named(name),
	}
}

// WithValues returns a new Logger instance with additional key/value pairs.
// See Info for documentation on how key/value pairs work.
func (l Logger) WithValues(keysAndValues ...interface{}) Logger {

	l.Logger = l.Logger.WithValues(keysAndValues...)
	l.sugaredLogger = l.sugaredLogger.With(keysAndValues...)
	return l
}

// A Sugar wraps the base Logger functionality in a slower, but less
// verbose, API. Methods ending in "w" take loosely typed key/value pairs,
// methods ending in "f" are printf style.
func (l Logger) Sugar() *zap.SugaredLogger {

	return l.sugaredLogger
}

func initZapLogger(w io.Writer, logging *logger.HarvesterLogging, level logger.LogLevel) *zap.Logger {

	lvl := logging.LevelOrDefault(level)
	// zap has no trace level, trace maps onto debug
	if lvl == logger.LogLevelTrace {
		lvl = logger.LogLevelDebug
	}
	parseLevel, err := zapcore.ParseLevel(string(lvl))
	if err != nil {
		parseLevel = zapcore.InfoLevel
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()), zapcore.AddSync(w), zap.NewAtomicLevelAt(parseLevel))

	return zap.New(core, zap.AddCaller())
}
