// Copyright 2026 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pingcap/feasibility/pkg/cohort"
	"github.com/pingcap/feasibility/pkg/config"
	"github.com/pingcap/feasibility/pkg/runner"
)

var cfgPath string

const (
	ExitCodeRunFailed     = 1
	ExitCodeInvalidConfig = 2
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "feasibility",
		Short: "Run a feasibility study against a clinical-data warehouse",
		Long: "Runs cohort construction and cohort diagnostics for one study " +
			"profile, writing the run log and export artifacts into the " +
			"configured output folder",
		Run: run,
	}

	rootCmd.Flags().StringVarP(&cfgPath, "config", "c", "", "study profile (.toml, required)")
	rootCmd.MarkFlagRequired("config")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitCodeRunFailed)
	}
}

func run(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load study profile: %v\n", err)
		os.Exit(ExitCodeInvalidConfig)
	}

	var builder cohort.Builder
	if cfg.CreateCohorts {
		if cfg.CohortDefinitionsDir == "" {
			fmt.Fprintln(os.Stderr, "create_cohorts is enabled but cohort_definitions_dir is not set")
			os.Exit(ExitCodeInvalidConfig)
		}
		definitions, err := cohort.LoadDefinitions(cfg.CohortDefinitionsDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load cohort definitions: %v\n", err)
			os.Exit(ExitCodeInvalidConfig)
		}
		builder = cohort.NewSQLBuilder(definitions)
	}

	r := runner.New(runner.Options{Builder: builder})
	if err := r.Run(context.Background(), cfg); err != nil {
		fmt.Fprintf(os.Stderr, "study run failed: %v\n", err)
		os.Exit(ExitCodeRunFailed)
	}
}
