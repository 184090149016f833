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

// Package cohort materializes exposure and outcome cohorts in the work
// schema of the warehouse.
//
// The Builder interface is the collaborator boundary of the study runner;
// SQLBuilder is the reference implementation that renders parameterized
// cohort definitions and executes them over an open warehouse connection.
package cohort

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pingcap/errors"
	plog "github.com/pingcap/log"
	"go.uber.org/zap"

	"github.com/pingcap/feasibility/pkg/connector"
)

// Builder constructs the cohort table. The connection is owned by the
// caller; implementations must not close it.
type Builder interface {
	Build(ctx context.Context, handle *connector.Handle, spec BuildSpec) error
}

// BuildSpec carries the resolved schema identifiers for one construction
// run.
type BuildSpec struct {
	ClinicalSchema string
	WorkSchema     string
	WorkTable      string
	TempSchema     string
	OutputFolder   string
}

// Definition is one parameterized cohort definition. SQL may reference the
// substitution tokens @cdm_database_schema, @target_database_schema,
// @target_cohort_table, @temp_database_schema and @target_cohort_id.
type Definition struct {
	ID   int
	Name string
	SQL  string
}

// The cohort table uses the standard four-column layout shared by all
// diagnostics downstream.
const createCohortTableSQL = `
CREATE TABLE %s (
  cohort_definition_id BIGINT NOT NULL,
  subject_id BIGINT NOT NULL,
  cohort_start_date DATE NOT NULL,
  cohort_end_date DATE NOT NULL
)`

// SQLBuilder executes cohort definitions sequentially against the work
// schema, recreating the cohort table first.
type SQLBuilder struct {
	definitions []Definition
}

// NewSQLBuilder creates a builder over a fixed set of definitions.
func NewSQLBuilder(definitions []Definition) *SQLBuilder {
	return &SQLBuilder{definitions: definitions}
}

// Definitions returns the configured definitions in execution order.
func (b *SQLBuilder) Definitions() []Definition {
	return b.definitions
}

// Build recreates the cohort table and materializes every definition. The
// first failure aborts construction; the caller closes the connection.
func (b *SQLBuilder) Build(ctx context.Context, handle *connector.Handle, spec BuildSpec) error {
	if handle == nil || handle.DB == nil {
		return errors.New("cohort builder requires an open connection")
	}

	table := quoteQualified(handle.Platform, spec.WorkSchema, spec.WorkTable)

	plog.Info("recreate cohort table", zap.String("table", table))
	dropSQL := "DROP TABLE IF EXISTS " + table
	if _, err := handle.DB.ExecContext(ctx, dropSQL); err != nil {
		return errors.Annotate(err, "drop cohort table failed")
	}
	if _, err := handle.DB.ExecContext(ctx, fmt.Sprintf(createCohortTableSQL, table)); err != nil {
		return errors.Annotate(err, "create cohort table failed")
	}

	results := make([]buildResult, 0, len(b.definitions))
	for _, def := range b.definitions {
		start := time.Now()
		if err := b.buildOne(ctx, handle, spec, def); err != nil {
			return errors.Annotatef(err, "build cohort %d (%s)", def.ID, def.Name)
		}

		entries, err := countEntries(ctx, handle, table, def.ID)
		if err != nil {
			return errors.Annotatef(err, "count cohort %d entries", def.ID)
		}
		plog.Info("cohort materialized",
			zap.Int("cohortId", def.ID),
			zap.String("name", def.Name),
			zap.Int64("entries", entries),
			zap.Duration("cost", time.Since(start)))
		results = append(results, buildResult{definition: def, entries: entries})
	}

	if spec.OutputFolder != "" {
		if err := writeConstructionSummary(spec.OutputFolder, results); err != nil {
			return errors.Annotate(err, "write cohort construction summary")
		}
	}
	return nil
}

func (b *SQLBuilder) buildOne(ctx context.Context, handle *connector.Handle, spec BuildSpec, def Definition) error {
	rendered := RenderSQL(def.SQL, spec, def.ID)
	for _, stmt := range SplitStatements(rendered) {
		if _, err := handle.DB.ExecContext(ctx, stmt); err != nil {
			return errors.Annotatef(err, "execute cohort statement: %s", sqlPreview(stmt))
		}
	}
	return nil
}

func countEntries(ctx context.Context, handle *connector.Handle, table string, cohortID int) (int64, error) {
	var entries int64
	query := fmt.Sprintf(
		"SELECT COUNT(*) FROM %s WHERE cohort_definition_id = %d", table, cohortID)
	if err := handle.DB.QueryRowContext(ctx, query).Scan(&entries); err != nil {
		return 0, errors.Trace(err)
	}
	return entries, nil
}

type buildResult struct {
	definition Definition
	entries    int64
}

// RenderSQL substitutes the schema tokens of one definition.
func RenderSQL(sqlText string, spec BuildSpec, cohortID int) string {
	r := strings.NewReplacer(
		"@cdm_database_schema", spec.ClinicalSchema,
		"@target_database_schema", spec.WorkSchema,
		"@target_cohort_table", spec.WorkTable,
		"@temp_database_schema", spec.TempSchema,
		"@target_cohort_id", fmt.Sprintf("%d", cohortID),
	)
	return r.Replace(sqlText)
}

// SplitStatements splits a rendered definition into executable statements.
// Definitions must not embed literal semicolons in string constants.
func SplitStatements(sqlText string) []string {
	parts := strings.Split(sqlText, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func quoteIdent(platform, name string) string {
	if platform == connector.PlatformMySQL {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteQualified(platform, schema, name string) string {
	return quoteIdent(platform, schema) + "." + quoteIdent(platform, name)
}

func sqlPreview(s string) string {
	const max = 256
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
