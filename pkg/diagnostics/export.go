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

package diagnostics

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pingcap/errors"
)

// Exported artifact names. The aggregation pipeline downstream matches on
// these exact file names.
const (
	cohortCountFile    = "cohort_count.csv"
	metadataFile       = "metadata.csv"
	inclusionStatsFile = "inclusionStatistics.csv"
)

func writeExport(req Request, runID string, counts []CohortCount) error {
	if err := os.MkdirAll(req.ExportFolder, 0o755); err != nil {
		return errors.Annotate(err, "create export folder")
	}

	countRows := [][]string{{"cohort_id", "cohort_entries", "cohort_subjects", "database_id"}}
	for _, c := range counts {
		countRows = append(countRows, []string{
			strconv.FormatInt(c.CohortID, 10),
			strconv.FormatInt(c.CohortEntries, 10),
			strconv.FormatInt(c.CohortSubjects, 10),
			req.DatabaseID,
		})
	}
	if err := writeCSV(filepath.Join(req.ExportFolder, cohortCountFile), countRows); err != nil {
		return err
	}

	metaRows := [][]string{
		{"variable", "value"},
		{"run_id", runID},
		{"study", req.StudyLabel},
		{"database_id", req.DatabaseID},
		{"database_name", req.DatabaseName},
		{"database_description", req.DatabaseDescription},
		{"min_cell_count", strconv.Itoa(req.MinCellCount)},
		{"run_time", time.Now().UTC().Format(time.RFC3339)},
	}
	return writeCSV(filepath.Join(req.ExportFolder, metadataFile), metaRows)
}

// Inclusion statistics stay in the stats folder; they are site-local and are
// not shipped to the aggregator, so they carry unsuppressed-looking names but
// already suppressed values for consistency.
func writeInclusionStats(req Request, counts []CohortCount) error {
	rows := [][]string{{"cohort_id", "persons_included"}}
	for _, c := range counts {
		rows = append(rows, []string{
			strconv.FormatInt(c.CohortID, 10),
			strconv.FormatInt(c.CohortSubjects, 10),
		})
	}
	return writeCSV(filepath.Join(req.StatsFolder, inclusionStatsFile), rows)
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Annotatef(err, "create %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return errors.Annotatef(err, "write %s", path)
	}
	return errors.Trace(w.Error())
}
