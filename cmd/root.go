// Copyright 2025 The packetd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cmd wires flowd's subcommands: running a configured pipeline
// of connectors, and printing the graph a config file would assemble
// without opening anything.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flowd/flow/common"
)

var rootCmd = &cobra.Command{
	Use:   "flowd",
	Short: "flowd assembles and runs Flow connector pipelines",
}

var configPath string

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "flowd.yaml", "Configuration file path")
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build version information",
	Run: func(cmd *cobra.Command, args []string) {
		bi := common.GetBuildInfo()
		fmt.Printf("version: %s\ngit hash: %s\nbuild time: %s\n", bi.Version, bi.GitHash, bi.Time)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
