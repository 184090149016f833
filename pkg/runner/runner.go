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

// Package runner sequences one feasibility study execution: environment
// preparation, optional cohort construction, optional diagnostics, and
// unconditional log-sink teardown.
//
// Phases run sequentially in one process. There is no retry and no
// checkpointing; the first failure propagates to the caller after the
// resources of the failing phase are released. The two phases communicate
// only through the cohort table persisted in the warehouse, so either phase
// can run alone against state left by a prior invocation.
package runner

import (
	"context"
	"os"

	"github.com/google/uuid"
	plog "github.com/pingcap/log"
	"go.uber.org/zap"

	"github.com/pingcap/feasibility/pkg/cohort"
	"github.com/pingcap/feasibility/pkg/config"
	"github.com/pingcap/feasibility/pkg/connector"
	"github.com/pingcap/feasibility/pkg/diagnostics"
	cerror "github.com/pingcap/feasibility/pkg/errors"
	"github.com/pingcap/feasibility/pkg/logsink"
)

// SinkID is the well-known identifier of the run log sink. At most one study
// run per process may hold it at a time.
const SinkID = "feasibility"

// DefaultStudyLabel identifies the study package in exported artifacts when
// no label is configured.
const DefaultStudyLabel = "FeasibilityStudy"

// Options wires the collaborators of a StudyRunner. Zero-value fields fall
// back to the production implementations.
type Options struct {
	// Provider opens the warehouse connection for cohort construction.
	Provider connector.Provider
	// Builder materializes cohorts. Required when a run enables the
	// cohort construction phase.
	Builder cohort.Builder
	// Diagnostics executes the diagnostics suite. Defaults to the SQL
	// runner over Provider.
	Diagnostics diagnostics.Runner
	// Sinks is the log sink registry. Defaults to the process-wide one.
	Sinks *logsink.Registry
	// StudyLabel labels exported artifacts.
	StudyLabel string
}

// StudyRunner executes feasibility study runs.
type StudyRunner struct {
	provider    connector.Provider
	builder     cohort.Builder
	diagnostics diagnostics.Runner
	sinks       *logsink.Registry
	studyLabel  string
}

// New creates a StudyRunner with the given collaborators.
func New(opts Options) *StudyRunner {
	if opts.Provider == nil {
		opts.Provider = connector.SQLProvider{}
	}
	if opts.Diagnostics == nil {
		opts.Diagnostics = diagnostics.NewSQLRunner(opts.Provider)
	}
	if opts.Sinks == nil {
		opts.Sinks = logsink.Default()
	}
	if opts.StudyLabel == "" {
		opts.StudyLabel = DefaultStudyLabel
	}
	return &StudyRunner{
		provider:    opts.Provider,
		builder:     opts.Builder,
		diagnostics: opts.Diagnostics,
		sinks:       opts.Sinks,
		studyLabel:  opts.StudyLabel,
	}
}

// Run executes one study invocation. The configuration is resolved once up
// front; the resolved copy is read-only for the rest of the run.
//
// Order is fixed: environment preparation, log sink registration, cohort
// construction (if enabled), diagnostics (if enabled). Sink release happens
// on every exit path, including failures inside either phase.
func (r *StudyRunner) Run(ctx context.Context, cfg *config.StudyConfig) (err error) {
	resolved, err := cfg.Resolve()
	if err != nil {
		return err
	}
	if resolved.CreateCohorts && r.builder == nil {
		return cerror.ErrInvalidConfig.GenWithStackByArgs(
			"create_cohorts is enabled but no cohort builder is configured")
	}

	if err := prepareEnvironment(resolved); err != nil {
		return err
	}

	sink, err := r.sinks.Register(SinkID, resolved.LogFile())
	if err != nil {
		return err
	}
	defer sink.Close()

	runID := uuid.NewString()
	lg := sink.Logger()
	lg.Info("study run started",
		zap.String("runId", runID),
		zap.String("study", r.studyLabel),
		zap.String("databaseId", resolved.DatabaseID),
		zap.Bool("createCohorts", resolved.CreateCohorts),
		zap.Bool("runDiagnostics", resolved.RunDiagnostics))
	defer func() {
		if err != nil {
			lg.Error("study run failed", zap.String("runId", runID), zap.Error(err))
			return
		}
		lg.Info("study run finished", zap.String("runId", runID))
	}()

	if resolved.CreateCohorts {
		if err = r.constructCohorts(ctx, resolved, lg); err != nil {
			return err
		}
	}

	if resolved.RunDiagnostics {
		if err = r.runDiagnostics(ctx, resolved, lg); err != nil {
			return err
		}
	}
	return nil
}

// constructCohorts owns the phase connection: it is opened here and released
// before the phase returns, whatever the builder does.
func (r *StudyRunner) constructCohorts(ctx context.Context, cfg *config.StudyConfig, lg *zap.Logger) error {
	lg.Info("cohort construction started",
		zap.String("workSchema", cfg.WorkSchema),
		zap.String("workTable", cfg.WorkTable))

	handle, err := r.provider.Open(ctx, cfg.Connection)
	if err != nil {
		return cerror.WrapError(cerror.ErrConnectWarehouse, err)
	}
	defer r.provider.Close(handle)

	err = r.builder.Build(ctx, handle, cohort.BuildSpec{
		ClinicalSchema: cfg.ClinicalSchema,
		WorkSchema:     cfg.WorkSchema,
		WorkTable:      cfg.WorkTable,
		TempSchema:     cfg.TempSchema,
		OutputFolder:   cfg.OutputFolder,
	})
	if err != nil {
		return cerror.WrapError(cerror.ErrCohortConstruction, err)
	}

	lg.Info("cohort construction finished")
	return nil
}

// runDiagnostics hands the connection descriptor to the diagnostics
// collaborator, which manages its own connection lifecycle.
func (r *StudyRunner) runDiagnostics(ctx context.Context, cfg *config.StudyConfig, lg *zap.Logger) error {
	lg.Info("diagnostics started",
		zap.String("exportFolder", cfg.ExportFolder()),
		zap.Int("minCellCount", cfg.MinCellCount))

	err := r.diagnostics.Run(ctx, diagnostics.Request{
		StudyLabel:          r.studyLabel,
		Connection:          cfg.Connection,
		ClinicalSchema:      cfg.ClinicalSchema,
		TempSchema:          cfg.TempSchema,
		WorkSchema:          cfg.WorkSchema,
		WorkTable:           cfg.WorkTable,
		StatsFolder:         cfg.OutputFolder,
		ExportFolder:        cfg.ExportFolder(),
		DatabaseID:          cfg.DatabaseID,
		DatabaseName:        cfg.DatabaseName,
		DatabaseDescription: cfg.DatabaseDescription,
		MinCellCount:        cfg.MinCellCount,
	})
	if err != nil {
		return cerror.WrapError(cerror.ErrDiagnostics, err)
	}

	lg.Info("diagnostics finished")
	return nil
}

// prepareEnvironment makes sure the output folder exists and the optional
// temp storage folder is usable. A missing temp folder is recoverable by
// creating it, so it warns instead of failing the run.
func prepareEnvironment(cfg *config.StudyConfig) error {
	if err := os.MkdirAll(cfg.OutputFolder, 0o755); err != nil {
		return cerror.WrapError(cerror.ErrPrepareEnvironment, err)
	}

	if cfg.TempDir != "" {
		if _, err := os.Stat(cfg.TempDir); os.IsNotExist(err) {
			plog.Warn("temp storage folder does not exist, creating it",
				zap.String("tempDir", cfg.TempDir))
			if err := os.MkdirAll(cfg.TempDir, 0o755); err != nil {
				return cerror.WrapError(cerror.ErrPrepareEnvironment, err)
			}
		} else if err != nil {
			return cerror.WrapError(cerror.ErrPrepareEnvironment, err)
		}
	}
	return nil
}
