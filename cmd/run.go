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
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/flowd/flow/common"
	"github.com/flowd/flow/confengine"
	"github.com/flowd/flow/internal/sigs"
	"github.com/flowd/flow/logger"
	"github.com/flowd/flow/metrics"
	"github.com/flowd/flow/server"
)

var runCmd = &cobra.Command{
	Use:     "run",
	Short:   "Run the pipeline configured by --config",
	Example: "# flowd run --config flowd.yaml",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := confengine.LoadConfigPath(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}

		if err := setupLogger(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "failed to set up logger: %v\n", err)
			os.Exit(1)
		}

		bi := common.GetBuildInfo()
		metrics.SetBuildInfo(bi.Version, bi.GitHash, bi.Time)

		host, err := NewHost(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to build pipeline: %v\n", err)
			os.Exit(1)
		}

		svr, err := server.New(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create server: %v\n", err)
			os.Exit(1)
		}
		if svr != nil {
			svr.RegisterGetRoute("/metrics", func(w http.ResponseWriter, r *http.Request) {
				metrics.SetUptime(started)
				promhttp.Handler().ServeHTTP(w, r)
			})
			svr.RegisterGetRoute("/graph", func(w http.ResponseWriter, r *http.Request) {
				writeGraph(w, host)
			})
			svr.RegisterPostRoute("/-/logger", func(w http.ResponseWriter, r *http.Request) {
				logger.SetLoggerLevel(r.FormValue("level"))
				w.Write([]byte(`{"status": "success"}`))
			})
			svr.RegisterPostRoute("/-/reload", func(w http.ResponseWriter, r *http.Request) {
				if err := sigs.SelfReload(); err != nil {
					w.WriteHeader(http.StatusInternalServerError)
					w.Write([]byte(err.Error()))
				}
			})
			go func() {
				if err := svr.ListenAndServe(); err != nil {
					logger.Errorf("failed to start server: %v", err)
				}
			}()
		}

		if err := host.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to start pipeline: %v\n", err)
			os.Exit(1)
		}

		var reloadTotal int
		for {
			select {
			case <-sigs.Terminate():
				host.Stop()
				return

			case <-sigs.Reload():
				reloadTotal++

				cfg, err := confengine.LoadConfigPath(configPath)
				if err != nil {
					fmt.Fprintf(os.Stderr, "failed to load config (count=%d): %v\n", reloadTotal, err)
					continue
				}

				start := time.Now()
				if err := host.Reload(cfg); err != nil {
					logger.Errorf("failed to reload pipeline: %v", err)
				}
				logger.Infof("reload (count=%d) took %s", reloadTotal, time.Since(start))
			}
		}
	},
}

var started = time.Now()

func setupLogger(conf *confengine.Config) error {
	var opts logger.Options
	if err := conf.UnpackChild("logger", &opts); err != nil {
		return err
	}

	if opts.Filename == "" {
		opts.Filename = "flowd.log"
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = 10
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = 7
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = 100
	}

	logger.SetOptions(opts)
	return nil
}

func init() {
	rootCmd.AddCommand(runCmd)
}
