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

package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	bannerouter "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/banner"
	cfgloader "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/config"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/exporter"
	jobserver "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/job/server"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/metrics"
	clrserver "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/server"
	harvestererr "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/err"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/types/runner"

	// vendor drivers register themselves
	_ "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/driver/simulator"
)

var (
	cfgPath string
)

type Runner interface {
	Start(ctx context.Context) error
	Info() runner.Info
	Close() error
}

func ServerCommand() *cobra.Command {

	cmd := &cobra.Command{
		Use:     "server",
		Aliases: []string{"srv", "s"},
		Short:   "Run the storage harvester",
		RunE: func(cmd *cobra.Command, args []string) error {
			return server(cmd.Context(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file path")
	return cmd
}

func server(ctx context.Context, logOut io.Writer) error {

	loader := cfgloader.NewUnifiedConfigLoader(cfgPath)
	cfg, err := loader.Load()
	if err != nil {
		return err
	}

	harvesterServer := clrserver.New(cfg, logOut)

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	banner := bannerouter.New(&bannerouter.Config{
		Server: *harvesterServer,
	})
	if err := banner.PrintBanner(cfg.Harvester.Info.Name, cfg.Harvester.Info.Port); err != nil {
		return err
	}

	return startRunners(ctx, harvesterServer, loader.Loader)
}

func startRunners(ctx context.Context, cfg *clrserver.Server, loader *cfgloader.Loader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	exporters, err := exporter.NewFromConfig(cfg.Config.Harvester.Exporters, cfg.Logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := exporters.Close(); err != nil {
			cfg.Logger.Error(err, "error closing exporters")
		}
	}()

	jobRunner, err := jobserver.New(&jobserver.Config{
		Server:   *cfg,
		Exporter: exporters,
	})
	if err != nil {
		return err
	}

	// device list changes are applied without a restart
	loader.OnReload(jobRunner.OnConfigReload)

	runners := []Runner{
		jobRunner,
		metrics.New(cfg, exporters.Gatherers()...),
		cfgloader.NewWatcher(loader),
	}

	errCh := make(chan error, len(runners))

	var wg sync.WaitGroup

	for _, r := range runners {
		wg.Add(1)
		go func(runner Runner) {
			defer wg.Done()
			cfg.Logger.Info("Starting runner", "runner component", runner.Info().Name)
			if err := runner.Start(ctx); err != nil {
				select {
				case errCh <- err:
				default:
				}
			}
		}(r)
	}

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)

	cleanup := func() {
		signal.Stop(signalCh)
		cancel()
		for _, r := range runners {
			if err := r.Close(); err != nil {
				cfg.Logger.Error(err, "error closing runner", "runner", r.Info().Name)
			}
		}
		wg.Wait()
	}

	select {
	case <-ctx.Done():
		cfg.Logger.Info("Context cancelled")
		cleanup()
		return ctx.Err()
	case sig := <-signalCh:
		cfg.Logger.Info("Received signal", "signal", sig.String())
		cleanup()
		return nil
	case err := <-errCh:
		cleanup()
		cfg.Logger.Error(harvestererr.HarvesterServerStop, "runner error", "error", err)
		return err
	}
}
