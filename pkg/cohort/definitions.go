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
	"encoding/csv"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pingcap/errors"
)

// LoadDefinitions reads cohort definitions from a study package directory.
// Each definition is a file named "<id>_<name>.sql"; the id orders execution
// and becomes the cohort_definition_id.
func LoadDefinitions(dir string) ([]Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Annotate(err, "read cohort definition directory")
	}

	defs := make([]Definition, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".sql" {
			continue
		}
		def, err := parseDefinitionName(entry.Name())
		if err != nil {
			return nil, err
		}
		content, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, errors.Annotatef(err, "read cohort definition %s", entry.Name())
		}
		def.SQL = string(content)
		defs = append(defs, def)
	}
	if len(defs) == 0 {
		return nil, errors.Errorf("no cohort definitions found in %s", dir)
	}

	sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
	for i := 1; i < len(defs); i++ {
		if defs[i].ID == defs[i-1].ID {
			return nil, errors.Errorf("duplicate cohort definition id: %d", defs[i].ID)
		}
	}
	return defs, nil
}

func parseDefinitionName(filename string) (Definition, error) {
	base := strings.TrimSuffix(filename, ".sql")
	idText, name, ok := strings.Cut(base, "_")
	if !ok {
		return Definition{}, errors.Errorf(
			"cohort definition file must be named <id>_<name>.sql: %s", filename)
	}
	id, err := strconv.Atoi(idText)
	if err != nil || id <= 0 {
		return Definition{}, errors.Errorf(
			"cohort definition id must be a positive integer: %s", filename)
	}
	return Definition{ID: id, Name: name}, nil
}

// writeConstructionSummary records one row per materialized cohort into the
// output folder so sites can eyeball construction results before
// diagnostics run.
func writeConstructionSummary(outputFolder string, results []buildResult) error {
	path := filepath.Join(outputFolder, "cohortConstruction.csv")
	f, err := os.Create(path)
	if err != nil {
		return errors.Trace(err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"cohort_definition_id", "cohort_name", "entries"}); err != nil {
		return errors.Trace(err)
	}
	for _, res := range results {
		record := []string{
			strconv.Itoa(res.definition.ID),
			res.definition.Name,
			strconv.FormatInt(res.entries, 10),
		}
		if err := w.Write(record); err != nil {
			return errors.Trace(err)
		}
	}
	w.Flush()
	return errors.Trace(w.Error())
}
