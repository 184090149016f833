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

package cohort

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRenderSQL(t *testing.T) {
	t.Parallel()

	spec := BuildSpec{
		ClinicalSchema: "cdm",
		WorkSchema:     "scratch",
		WorkTable:      "cohort",
		TempSchema:     "tempdb",
	}
	rendered := RenderSQL(
		`INSERT INTO @target_database_schema.@target_cohort_table
SELECT @target_cohort_id, person_id, start_date, end_date
FROM @cdm_database_schema.condition_occurrence`,
		spec, 42)

	require.Contains(t, rendered, "INSERT INTO scratch.cohort")
	require.Contains(t, rendered, "SELECT 42, person_id")
	require.Contains(t, rendered, "FROM cdm.condition_occurrence")
	require.NotContains(t, rendered, "@")
}

func TestSplitStatements(t *testing.T) {
	t.Parallel()

	stmts := SplitStatements("DELETE FROM a;\n\nINSERT INTO a VALUES (1);\n;")
	require.Equal(t, []string{"DELETE FROM a", "INSERT INTO a VALUES (1)"}, stmts)

	require.Empty(t, SplitStatements("  \n  "))
}

func TestQuoteQualified(t *testing.T) {
	t.Parallel()

	require.Equal(t, "`scratch`.`cohort`", quoteQualified("mysql", "scratch", "cohort"))
	require.Equal(t, `"scratch"."cohort"`, quoteQualified("postgresql", "scratch", "cohort"))
	require.Equal(t, "`a``b`.`c`", quoteQualified("mysql", "a`b", "c"))
}

func TestLoadDefinitions(t *testing.T) {
	t.Parallel()

	t.Run("ordered by id", func(t *testing.T) {
		dir := t.TempDir()
		writeDef(t, dir, "2_outcome.sql", "SELECT 2")
		writeDef(t, dir, "1_exposure.sql", "SELECT 1")
		writeDef(t, dir, "notes.txt", "ignored")

		defs, err := LoadDefinitions(dir)
		require.NoError(t, err)
		require.Len(t, defs, 2)
		require.Equal(t, 1, defs[0].ID)
		require.Equal(t, "exposure", defs[0].Name)
		require.Equal(t, "SELECT 1", defs[0].SQL)
		require.Equal(t, 2, defs[1].ID)
	})

	t.Run("bad file name", func(t *testing.T) {
		dir := t.TempDir()
		writeDef(t, dir, "exposure.sql", "SELECT 1")
		_, err := LoadDefinitions(dir)
		require.ErrorContains(t, err, "<id>_<name>.sql")
	})

	t.Run("duplicate id", func(t *testing.T) {
		dir := t.TempDir()
		writeDef(t, dir, "1_a.sql", "SELECT 1")
		writeDef(t, dir, "1_b.sql", "SELECT 1")
		_, err := LoadDefinitions(dir)
		require.ErrorContains(t, err, "duplicate cohort definition id")
	})

	t.Run("empty directory", func(t *testing.T) {
		_, err := LoadDefinitions(t.TempDir())
		require.ErrorContains(t, err, "no cohort definitions found")
	})
}

func TestWriteConstructionSummary(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	results := []buildResult{
		{definition: Definition{ID: 1, Name: "exposure"}, entries: 120},
		{definition: Definition{ID: 2, Name: "outcome"}, entries: 3},
	}
	require.NoError(t, writeConstructionSummary(dir, results))

	content, err := os.ReadFile(filepath.Join(dir, "cohortConstruction.csv"))
	require.NoError(t, err)
	require.Equal(t,
		"cohort_definition_id,cohort_name,entries\n1,exposure,120\n2,outcome,3\n",
		string(content))
}

func writeDef(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}
