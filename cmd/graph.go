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

package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/flowd/flow/confengine"
	"github.com/flowd/flow/internal/labels"
)

var graphCmd = &cobra.Command{
	Use:     "graph",
	Short:   "Print the connector chain --config would assemble, without connecting anything",
	Example: "# flowd graph --config flowd.yaml",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := confengine.LoadConfigPath(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}

		host, err := NewHost(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to build pipeline: %v\n", err)
			os.Exit(1)
		}
		defer host.Stop()

		writeGraph(os.Stdout, host)
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}

// writeGraph prints each node's position in the chain and a short
// stable id derived by hashing its (index, name) label pair, the same
// labels.Labels.Hash a host would use to cross-reference a node across
// restarts.
func writeGraph(w io.Writer, host *Host) {
	nodes := host.Nodes()
	for i, c := range nodes {
		ls := labels.Labels{
			{Name: "index", Value: fmt.Sprintf("%d", i)},
			{Name: "name", Value: c.Name()},
		}
		fmt.Fprintf(w, "[%04x] %s state=%s\n", ls.Hash()&0xffff, c.Name(), c.State())
		if i+1 < len(nodes) {
			fmt.Fprintln(w, "   |")
			fmt.Fprintln(w, "   v")
		}
	}
}
