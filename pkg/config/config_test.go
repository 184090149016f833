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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pingcap/feasibility/pkg/connector"
)

func validConfig() *StudyConfig {
	cfg := Default()
	cfg.Connection = connector.ConnectionDetails{
		Platform: "postgresql", Host: "db.local", Database: "cdm",
	}
	cfg.ClinicalSchema = "cdm"
	cfg.OutputFolder = "/tmp/study-output"
	return cfg
}

func TestResolveDefaultChaining(t *testing.T) {
	t.Parallel()

	t.Run("work schema from clinical schema", func(t *testing.T) {
		cfg := validConfig()
		resolved, err := cfg.Resolve()
		require.NoError(t, err)
		require.Equal(t, "cdm", resolved.WorkSchema)
		require.Equal(t, "cdm", resolved.TempSchema)
		require.Equal(t, "cohort", resolved.WorkTable)
		require.Equal(t, 5, resolved.MinCellCount)
	})

	t.Run("temp schema from work schema", func(t *testing.T) {
		cfg := validConfig()
		cfg.WorkSchema = "scratch"
		resolved, err := cfg.Resolve()
		require.NoError(t, err)
		require.Equal(t, "scratch", resolved.WorkSchema)
		require.Equal(t, "scratch", resolved.TempSchema)
	})

	t.Run("explicit values win", func(t *testing.T) {
		cfg := validConfig()
		cfg.WorkSchema = "scratch"
		cfg.TempSchema = "tempdb"
		cfg.WorkTable = "my_cohort"
		cfg.MinCellCount = 10
		resolved, err := cfg.Resolve()
		require.NoError(t, err)
		require.Equal(t, "tempdb", resolved.TempSchema)
		require.Equal(t, "my_cohort", resolved.WorkTable)
		require.Equal(t, 10, resolved.MinCellCount)
	})

	t.Run("receiver not mutated", func(t *testing.T) {
		cfg := validConfig()
		cfg.WorkSchema = ""
		_, err := cfg.Resolve()
		require.NoError(t, err)
		require.Empty(t, cfg.WorkSchema)
	})

	t.Run("database labels default to Unknown", func(t *testing.T) {
		cfg := validConfig()
		cfg.DatabaseID = ""
		cfg.DatabaseName = ""
		cfg.DatabaseDescription = ""
		resolved, err := cfg.Resolve()
		require.NoError(t, err)
		require.Equal(t, "Unknown", resolved.DatabaseID)
		require.Equal(t, "Unknown", resolved.DatabaseName)
		require.Equal(t, "Unknown", resolved.DatabaseDescription)
	})
}

func TestResolveValidation(t *testing.T) {
	t.Parallel()

	t.Run("clinical schema required", func(t *testing.T) {
		cfg := validConfig()
		cfg.ClinicalSchema = ""
		_, err := cfg.Resolve()
		require.ErrorContains(t, err, "clinical_schema is required")
	})

	t.Run("output folder required", func(t *testing.T) {
		cfg := validConfig()
		cfg.OutputFolder = ""
		_, err := cfg.Resolve()
		require.ErrorContains(t, err, "output_folder is required")
	})

	t.Run("negative min cell count", func(t *testing.T) {
		cfg := validConfig()
		cfg.MinCellCount = -1
		_, err := cfg.Resolve()
		require.ErrorContains(t, err, "min_cell_count must be positive")
	})

	t.Run("work table identifier check", func(t *testing.T) {
		cfg := validConfig()
		cfg.WorkTable = "cohort; DROP TABLE person"
		_, err := cfg.Resolve()
		require.ErrorContains(t, err, "work_table is not a valid identifier")
	})

	t.Run("connection validated", func(t *testing.T) {
		cfg := validConfig()
		cfg.Connection.Host = ""
		_, err := cfg.Resolve()
		require.ErrorContains(t, err, "host is required")
	})
}

func TestLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	t.Run("full profile", func(t *testing.T) {
		path := filepath.Join(dir, "study.toml")
		content := `
clinical_schema = "cdm"
work_schema = "scratch"
output_folder = "/data/study"
database_id = "SITE01"
create_cohorts = false
min_cell_count = 10

[connection]
platform = "mysql"
host = "db.local"
port = 4000
user = "study"
password = "secret"
database = "cdm"
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		cfg, err := Load(path)
		require.NoError(t, err)
		require.Equal(t, "cdm", cfg.ClinicalSchema)
		require.Equal(t, "scratch", cfg.WorkSchema)
		require.Equal(t, "SITE01", cfg.DatabaseID)
		require.False(t, cfg.CreateCohorts)
		// Keys absent from the file keep the documented defaults.
		require.True(t, cfg.RunDiagnostics)
		require.Equal(t, "cohort", cfg.WorkTable)
		require.Equal(t, 10, cfg.MinCellCount)
		require.Equal(t, "mysql", cfg.Connection.Platform)
		require.Equal(t, 4000, cfg.Connection.Port)
	})

	t.Run("unknown keys rejected", func(t *testing.T) {
		path := filepath.Join(dir, "typo.toml")
		content := `
clinical_schema = "cdm"
output_folder = "/data/study"
min_cel_count = 10
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		_, err := Load(path)
		require.ErrorContains(t, err, "unknown keys")
	})

	t.Run("extension check", func(t *testing.T) {
		path := filepath.Join(dir, "study.yaml")
		require.NoError(t, os.WriteFile(path, []byte("clinical_schema = \"cdm\""), 0o644))
		_, err := Load(path)
		require.ErrorContains(t, err, "must be a .toml file")
	})

	t.Run("empty path", func(t *testing.T) {
		_, err := Load("")
		require.ErrorContains(t, err, "path is empty")
	})
}

func TestDerivedPaths(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.OutputFolder = "/data/study"
	require.Equal(t, filepath.Join("/data/study", "feasibilityExport"), cfg.ExportFolder())
	require.Equal(t, filepath.Join("/data/study", "feasibilityLog.txt"), cfg.LogFile())
}
