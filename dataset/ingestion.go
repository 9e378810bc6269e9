// Package dataset loads labelled patient tables for offline training.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"chdrisk/ml"
)

const labelColumn = "chd"

// Record is one parsed CSV row.
type Record struct {
	Line        int
	Observation ml.Observation
	Label       int
}

func requiredColumns() []string {
	return append(append(ml.NumericFeatures(), ml.CategoricalFeatures()...), labelColumn)
}

// LoadCSV parses a header-driven CSV. Unknown columns (row.names, tobacco,
// typea, alcohol in the SAheart file) are ignored. Rows that fail to parse
// are reported as issues, not errors.
func LoadCSV(r io.Reader) ([]*Record, []QualityIssue, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, errors.New("csv is empty")
		}
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.Trim(strings.TrimSpace(name), `"`))] = i
	}
	missing := lo.Filter(requiredColumns(), func(name string, _ int) bool {
		_, ok := index[name]
		return !ok
	})
	if len(missing) > 0 {
		return nil, nil, fmt.Errorf("csv is missing columns: %s", strings.Join(missing, ", "))
	}

	var records []*Record
	var issues []QualityIssue
	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			issues = append(issues, QualityIssue{Type: "parse", Severity: "high", Message: err.Error(), Line: line})
			continue
		}
		record, err := parseRow(row, index, line)
		if err != nil {
			issues = append(issues, QualityIssue{Type: "parse", Severity: "high", Message: err.Error(), Line: line})
			continue
		}
		records = append(records, record)
	}
	return records, issues, nil
}

func parseRow(row []string, index map[string]int, line int) (*Record, error) {
	field := func(name string) string {
		return strings.TrimSpace(row[index[name]])
	}
	number := func(name string) (float64, error) {
		v, err := strconv.ParseFloat(field(name), 64)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", name, err)
		}
		return v, nil
	}
	integer := func(name string) (int, error) {
		v, err := number(name)
		if err != nil {
			return 0, err
		}
		if math.IsInf(v, 0) || v != math.Trunc(v) {
			return 0, fmt.Errorf("%s: %q is not an integer", name, field(name))
		}
		return int(v), nil
	}

	record := &Record{Line: line}
	var err error
	if record.Observation.SBP, err = number("sbp"); err != nil {
		return nil, err
	}
	if record.Observation.LDL, err = number("ldl"); err != nil {
		return nil, err
	}
	if record.Observation.Adiposity, err = number("adiposity"); err != nil {
		return nil, err
	}
	if record.Observation.Obesity, err = number("obesity"); err != nil {
		return nil, err
	}
	if record.Observation.Age, err = integer("age"); err != nil {
		return nil, err
	}
	record.Observation.FamHist = field("famhist")
	if record.Label, err = integer(labelColumn); err != nil {
		return nil, err
	}
	return record, nil
}

// Result bundles the cleaned dataset with what was dropped on the way.
type Result struct {
	Dataset ml.Dataset
	Issues  []QualityIssue
	Stats   CleaningStats
}

// Load reads and cleans a CSV into a training dataset.
func Load(path string, cleaner *DataCleaner) (*Result, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	records, parseIssues, err := LoadCSV(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if cleaner == nil {
		cleaner = NewDataCleaner()
	}
	cleaned, cleanIssues := cleaner.Clean(records)
	if len(cleaned) == 0 {
		return nil, fmt.Errorf("%s: no usable rows", path)
	}

	result := &Result{
		Dataset: ml.Dataset{
			Observations: make([]ml.Observation, len(cleaned)),
			Labels:       make([]int, len(cleaned)),
		},
		Issues: append(parseIssues, cleanIssues...),
		Stats:  cleaner.GetStats(),
	}
	for i, record := range cleaned {
		result.Dataset.Observations[i] = record.Observation
		result.Dataset.Labels[i] = record.Label
	}
	return result, nil
}
