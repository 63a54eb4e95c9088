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
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/banner"
	"hertzbeat.apache.org/hertzbeat-storage-harvester/internal/driver"
	clrserver "hertzbeat.apache.org/hertzbeat-storage-harvester/internal/server"
)

func VersionCommand() *cobra.Command {

	return &cobra.Command{
		Use:     "version",
		Aliases: []string{"v"},
		Short:   "Print the harvester version",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", clrserver.HarvesterGoName, banner.Version)
			fmt.Fprintf(out, "go: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
			fmt.Fprintf(out, "vendors: %v\n", driver.SupportedVendors())
			return nil
		},
	}
}
