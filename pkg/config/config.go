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

// Package config defines the study configuration surface of the feasibility
// runner. A StudyConfig is resolved exactly once before any phase executes;
// default chaining (work schema from clinical schema, temp schema from work
// schema) happens in Resolve, never per call site.
package config

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pingcap/errors"

	cerror "github.com/pingcap/feasibility/pkg/errors"
	"github.com/pingcap/feasibility/pkg/connector"
)

const (
	// DefaultWorkTable is the cohort table name used when none is configured.
	DefaultWorkTable = "cohort"
	// DefaultMinCellCount is the privacy floor applied to exported counts.
	DefaultMinCellCount = 5
	// DefaultDatabaseLabel labels exported artifacts when the site gave no
	// identity strings.
	DefaultDatabaseLabel = "Unknown"

	// ExportFolderName is the fixed subfolder of the output folder that
	// receives diagnostics artifacts.
	ExportFolderName = "feasibilityExport"
	// LogFileName is the run log written into the output folder.
	LogFileName = "feasibilityLog.txt"
)

var identRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// StudyConfig is the input bundle for one study run. It is read-only for the
// lifetime of the run once Resolve has been applied.
type StudyConfig struct {
	// Connection identifies the target warehouse.
	Connection connector.ConnectionDetails `toml:"connection"`

	// ClinicalSchema is the read-only source schema holding patient-level
	// data in the common data model.
	ClinicalSchema string `toml:"clinical_schema"`
	// WorkSchema is a schema with write privileges for the intermediate
	// cohort table. Defaults to ClinicalSchema.
	WorkSchema string `toml:"work_schema"`
	// WorkTable is the cohort table created or overwritten by the cohort
	// construction phase. Defaults to "cohort".
	WorkTable string `toml:"work_table"`
	// TempSchema is a scratch schema for drivers that need one. Defaults
	// to WorkSchema.
	TempSchema string `toml:"temp_schema"`

	// OutputFolder receives the run log and the diagnostics export
	// subfolder. Created if absent.
	OutputFolder string `toml:"output_folder"`
	// TempDir, when set, is a process-wide spill directory for the
	// database layer. Created with a warning if declared but missing.
	TempDir string `toml:"temp_dir"`

	// DatabaseID, DatabaseName and DatabaseDescription label exported
	// artifacts only; they never influence execution.
	DatabaseID          string `toml:"database_id"`
	DatabaseName        string `toml:"database_name"`
	DatabaseDescription string `toml:"database_description"`

	// CreateCohorts gates the cohort construction phase.
	CreateCohorts bool `toml:"create_cohorts"`
	// RunDiagnostics gates the diagnostics phase.
	RunDiagnostics bool `toml:"run_diagnostics"`

	// MinCellCount is the privacy floor threaded to the diagnostics
	// export; aggregate counts below it must be suppressed there.
	MinCellCount int `toml:"min_cell_count"`

	// CohortDefinitionsDir points at the study package's cohort SQL
	// files. Only consulted by the command-line wrapper; library callers
	// inject their own cohort builder.
	CohortDefinitionsDir string `toml:"cohort_definitions_dir"`
}

// Default returns a StudyConfig with both phases enabled and the documented
// defaults filled in. Callers still must set connection, clinical schema and
// output folder.
func Default() *StudyConfig {
	return &StudyConfig{
		WorkTable:           DefaultWorkTable,
		MinCellCount:        DefaultMinCellCount,
		DatabaseID:          DefaultDatabaseLabel,
		DatabaseName:        DefaultDatabaseLabel,
		DatabaseDescription: DefaultDatabaseLabel,
		CreateCohorts:       true,
		RunDiagnostics:      true,
	}
}

// Load reads a study profile from a TOML file. Unknown keys are rejected so a
// typo in a site profile fails loudly instead of silently running with
// defaults.
func Load(path string) (*StudyConfig, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("study config path is empty")
	}
	if filepath.Ext(path) != ".toml" {
		return nil, errors.Errorf("study config must be a .toml file: %s", path)
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, errors.Annotate(err, "decode study config failed")
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, errors.Errorf("unknown keys in study config: %v", undecoded)
	}
	return cfg, nil
}

// Resolve normalizes the configuration, applies default chaining and
// validates the result. It returns a new value; the receiver is not mutated.
func (c *StudyConfig) Resolve() (*StudyConfig, error) {
	r := *c
	r.normalize()
	if err := r.validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *StudyConfig) normalize() {
	c.ClinicalSchema = strings.TrimSpace(c.ClinicalSchema)
	c.WorkSchema = strings.TrimSpace(c.WorkSchema)
	c.WorkTable = strings.TrimSpace(c.WorkTable)
	c.TempSchema = strings.TrimSpace(c.TempSchema)
	c.OutputFolder = strings.TrimSpace(c.OutputFolder)
	c.TempDir = strings.TrimSpace(c.TempDir)

	// Default chaining: work schema from clinical schema, temp schema
	// from work schema.
	if c.WorkSchema == "" {
		c.WorkSchema = c.ClinicalSchema
	}
	if c.TempSchema == "" {
		c.TempSchema = c.WorkSchema
	}
	if c.WorkTable == "" {
		c.WorkTable = DefaultWorkTable
	}
	if c.MinCellCount == 0 {
		c.MinCellCount = DefaultMinCellCount
	}
	if c.DatabaseID == "" {
		c.DatabaseID = DefaultDatabaseLabel
	}
	if c.DatabaseName == "" {
		c.DatabaseName = DefaultDatabaseLabel
	}
	if c.DatabaseDescription == "" {
		c.DatabaseDescription = DefaultDatabaseLabel
	}
}

func (c *StudyConfig) validate() error {
	if c.ClinicalSchema == "" {
		return cerror.ErrInvalidConfig.GenWithStackByArgs("clinical_schema is required")
	}
	if c.OutputFolder == "" {
		return cerror.ErrInvalidConfig.GenWithStackByArgs("output_folder is required")
	}
	if c.MinCellCount < 0 {
		return cerror.ErrInvalidConfig.GenWithStackByArgs("min_cell_count must be positive")
	}
	for _, ident := range []struct{ name, value string }{
		{"clinical_schema", c.ClinicalSchema},
		{"work_schema", c.WorkSchema},
		{"work_table", c.WorkTable},
		{"temp_schema", c.TempSchema},
	} {
		if !identRE.MatchString(ident.value) {
			return cerror.ErrInvalidConfig.GenWithStackByArgs(
				ident.name + " is not a valid identifier: " + ident.value)
		}
	}
	if err := c.Connection.Validate(); err != nil {
		return cerror.ErrInvalidConfig.GenWithStackByArgs(err.Error())
	}
	return nil
}

// ExportFolder returns the diagnostics export location under the output
// folder.
func (c *StudyConfig) ExportFolder() string {
	return filepath.Join(c.OutputFolder, ExportFolderName)
}

// LogFile returns the run log path under the output folder.
func (c *StudyConfig) LogFile() string {
	return filepath.Join(c.OutputFolder, LogFileName)
}
