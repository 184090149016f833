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

// Package diagnostics validates cohort quality and exports summary
// statistics for cross-database aggregation.
//
// The Runner interface is the collaborator boundary of the study runner.
// SQLRunner is the reference implementation: it manages its own warehouse
// connection from the descriptor and honors the minimum cell count when
// writing any aggregate to the export folder.
package diagnostics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pingcap/errors"
	plog "github.com/pingcap/log"
	"go.uber.org/zap"

	"github.com/pingcap/feasibility/pkg/connector"
)

// Request carries everything one diagnostics execution needs. The
// connection field is a descriptor, never an open handle; the runner opens
// and closes its own connection.
type Request struct {
	StudyLabel string
	Connection connector.ConnectionDetails

	ClinicalSchema string
	TempSchema     string
	WorkSchema     string
	WorkTable      string

	// StatsFolder receives inclusion statistics; ExportFolder receives
	// the artifacts aggregated across databases.
	StatsFolder  string
	ExportFolder string

	DatabaseID          string
	DatabaseName        string
	DatabaseDescription string

	// MinCellCount is the privacy floor for exported aggregates. The
	// orchestrator threads it through unchanged.
	MinCellCount int
}

// Runner executes the diagnostics suite.
type Runner interface {
	Run(ctx context.Context, req Request) error
}

// SQLRunner computes cohort-level counts directly in the warehouse and
// exports them as CSV artifacts.
type SQLRunner struct {
	provider connector.Provider
}

// NewSQLRunner creates a runner that opens connections through provider.
func NewSQLRunner(provider connector.Provider) *SQLRunner {
	return &SQLRunner{provider: provider}
}

// CohortCount is one row of the exported cohort_count.csv, already
// suppressed.
type CohortCount struct {
	CohortID       int64
	CohortEntries  int64
	CohortSubjects int64
}

// Run connects to the warehouse, computes per-cohort counts, and writes the
// export and inclusion-statistics artifacts.
func (r *SQLRunner) Run(ctx context.Context, req Request) error {
	start := time.Now()
	plog.Info("run cohort diagnostics",
		zap.String("study", req.StudyLabel),
		zap.String("databaseId", req.DatabaseID),
		zap.Int("minCellCount", req.MinCellCount))

	handle, err := r.provider.Open(ctx, req.Connection)
	if err != nil {
		return errors.Annotate(err, "open diagnostics connection failed")
	}
	defer r.provider.Close(handle)

	counts, err := fetchCohortCounts(ctx, handle, req)
	if err != nil {
		return err
	}
	for i := range counts {
		counts[i].CohortEntries = Suppress(counts[i].CohortEntries, req.MinCellCount)
		counts[i].CohortSubjects = Suppress(counts[i].CohortSubjects, req.MinCellCount)
	}

	runID := uuid.NewString()
	if err := writeExport(req, runID, counts); err != nil {
		return err
	}
	if err := writeInclusionStats(req, counts); err != nil {
		return err
	}

	plog.Info("cohort diagnostics finished",
		zap.String("study", req.StudyLabel),
		zap.String("runId", runID),
		zap.Int("cohorts", len(counts)),
		zap.Duration("cost", time.Since(start)))
	return nil
}

func fetchCohortCounts(ctx context.Context, handle *connector.Handle, req Request) ([]CohortCount, error) {
	table := quoteQualified(handle.Platform, req.WorkSchema, req.WorkTable)
	query := fmt.Sprintf(`
SELECT cohort_definition_id,
       COUNT(*),
       COUNT(DISTINCT subject_id)
FROM %s
GROUP BY cohort_definition_id
ORDER BY cohort_definition_id`, table)

	rows, err := handle.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Annotate(err, "query cohort counts failed")
	}
	defer rows.Close()

	var counts []CohortCount
	for rows.Next() {
		var c CohortCount
		if err := rows.Scan(&c.CohortID, &c.CohortEntries, &c.CohortSubjects); err != nil {
			return nil, errors.Annotate(err, "scan cohort count failed")
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Annotate(err, "iterate cohort counts failed")
	}
	return counts, nil
}

// Suppress applies the minimum cell count: a count strictly between zero and
// the floor is reported as the negated floor, meaning "fewer than". Zero and
// values at or above the floor pass through.
func Suppress(count int64, minCellCount int) int64 {
	if minCellCount <= 0 {
		return count
	}
	if count > 0 && count < int64(minCellCount) {
		return -int64(minCellCount)
	}
	return count
}

func quoteQualified(platform, schema, name string) string {
	quote := func(s string) string {
		if platform == connector.PlatformMySQL {
			return "`" + strings.ReplaceAll(s, "`", "``") + "`"
		}
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return quote(schema) + "." + quote(name)
}
