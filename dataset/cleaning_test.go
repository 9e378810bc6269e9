package dataset

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"chdrisk/ml"
)

const saheart = `row.names,sbp,tobacco,ldl,adiposity,famhist,typea,obesity,alcohol,age,chd
1,160,12,5.73,23.11,Present,49,25.3,97.2,52,1
2,144,0.01,4.41,28.61,Absent,55,28.87,2.06,63,1
3,118,0.08,3.48,32.28,Present,52,29.14,3.81,46,0
4,170,7.5,6.41,38.03,Present,51,31.99,24.26,58,1
5,134,13.6,3.5,27.78,Present,60,25.99,57.34,49,1
`

func TestNewDataCleaner(t *testing.T) {
	cleaner := NewDataCleaner()
	if len(cleaner.Rules()) != 4 {
		t.Fatalf("expected 4 default rules, got %v", cleaner.Rules())
	}
}

func TestLoadCSV(t *testing.T) {
	records, issues, err := LoadCSV(strings.NewReader(saheart))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(issues) != 0 {
		t.Fatalf("unexpected issues: %+v", issues)
	}
	if len(records) != 5 {
		t.Fatalf("expected 5 records, got %d", len(records))
	}
	first := records[0]
	if first.Line != 2 || first.Observation.SBP != 160 || first.Observation.Age != 52 || first.Label != 1 {
		t.Fatalf("unexpected first record: %+v", first)
	}
}

func TestLoadCSVMissingColumns(t *testing.T) {
	_, _, err := LoadCSV(strings.NewReader("sbp,ldl,age\n120,3,40\n"))
	if err == nil || !strings.Contains(err.Error(), "adiposity") {
		t.Fatalf("expected missing columns error, got %v", err)
	}
	if _, _, err := LoadCSV(strings.NewReader("")); err == nil {
		t.Fatal("expected error for empty csv")
	}
}

func TestLoadCSVReportsBadRows(t *testing.T) {
	input := "sbp,ldl,adiposity,obesity,age,famhist,chd\n120,abc,20,25,40,Absent,0\n130,3,20,25,40,Absent,0\n"
	records, issues, err := LoadCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 || len(issues) != 1 || issues[0].Line != 2 {
		t.Fatalf("unexpected result: records=%d issues=%+v", len(records), issues)
	}
}

func TestCleaningRules(t *testing.T) {
	valid := func() *Record {
		return &Record{Line: 2, Observation: ml.Observation{SBP: 130, LDL: 4, Adiposity: 25, Obesity: 26, Age: 50, FamHist: "Present"}, Label: 1}
	}

	tests := []struct {
		name    string
		rule    CleaningRule
		mutate  func(*Record)
		wantErr bool
	}{
		{"valid famhist", NewFamHistNormalizationRule(), func(*Record) {}, false},
		{"numeric famhist", NewFamHistNormalizationRule(), func(r *Record) { r.Observation.FamHist = "1" }, false},
		{"garbage famhist", NewFamHistNormalizationRule(), func(r *Record) { r.Observation.FamHist = "maybe" }, true},
		{"valid range", NewRangeValidationRule(), func(*Record) {}, false},
		{"sbp implausible", NewRangeValidationRule(), func(r *Record) { r.Observation.SBP = 400 }, true},
		{"age negative", NewRangeValidationRule(), func(r *Record) { r.Observation.Age = -1 }, true},
		{"sbp not a number", NewRangeValidationRule(), func(r *Record) { r.Observation.SBP = math.NaN() }, true},
		{"obesity not a number", NewRangeValidationRule(), func(r *Record) { r.Observation.Obesity = math.NaN() }, true},
		{"label binary", NewLabelValidationRule(), func(*Record) {}, false},
		{"label out of range", NewLabelValidationRule(), func(r *Record) { r.Label = 2 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := valid()
			tt.mutate(record)
			_, err := tt.rule.Apply(record)
			if (err != nil) != tt.wantErr {
				t.Errorf("%s.Apply() error = %v, wantErr %v", tt.rule.Name(), err, tt.wantErr)
			}
		})
	}
}

func TestFamHistNormalizationCorrects(t *testing.T) {
	record := &Record{Observation: ml.Observation{FamHist: " present "}}
	out, err := NewFamHistNormalizationRule().Apply(record)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Observation.FamHist != ml.FamHistPresent {
		t.Fatalf("expected Present, got %q", out.Observation.FamHist)
	}
	if record.Observation.FamHist != " present " {
		t.Fatal("rule must not mutate its input")
	}
}

func TestCleanCountsOutcomes(t *testing.T) {
	records := []*Record{
		{Line: 2, Observation: ml.Observation{SBP: 130, LDL: 4, Adiposity: 25, Obesity: 26, Age: 50, FamHist: "Present"}, Label: 1},
		{Line: 3, Observation: ml.Observation{SBP: 130, LDL: 4, Adiposity: 25, Obesity: 26, Age: 50, FamHist: "Present"}, Label: 1},
		{Line: 4, Observation: ml.Observation{SBP: 120, LDL: 3, Adiposity: 20, Obesity: 22, Age: 35, FamHist: "0"}, Label: 0},
		{Line: 5, Observation: ml.Observation{SBP: 999, LDL: 3, Adiposity: 20, Obesity: 22, Age: 35, FamHist: "Absent"}, Label: 0},
	}
	cleaner := NewDataCleaner()
	cleaned, issues := cleaner.Clean(records)
	if len(cleaned) != 2 {
		t.Fatalf("expected 2 clean records, got %d", len(cleaned))
	}
	if len(issues) != 2 {
		t.Fatalf("expected 2 issues, got %+v", issues)
	}
	stats := cleaner.GetStats()
	if stats.TotalProcessed != 4 || stats.Passed != 2 || stats.Rejected != 2 || stats.Corrected != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.Issues["duplicate_detection"] != 1 || stats.Issues["range_validation"] != 1 {
		t.Fatalf("unexpected issue counts: %v", stats.Issues)
	}
}

func TestLoadCSVRejectsNonIntegers(t *testing.T) {
	input := "sbp,ldl,adiposity,obesity,age,famhist,chd\n" +
		"120,3,20,25,45.7,Absent,0\n" +
		"120,3,20,25,45,Absent,0.6\n" +
		"120,3,20,25,Inf,Absent,0\n" +
		"130,3,20,25,40,Absent,1\n"
	records, issues, err := LoadCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 || records[0].Line != 5 {
		t.Fatalf("expected only line 5 to parse, got %d records", len(records))
	}
	if len(issues) != 3 {
		t.Fatalf("expected 3 parse issues, got %+v", issues)
	}
	for i, want := range []string{"age", "chd", "age"} {
		if issues[i].Type != "parse" || !strings.HasPrefix(issues[i].Message, want) {
			t.Errorf("issue %d = %+v, want parse issue on %s", i, issues[i], want)
		}
	}
}

func TestLoadRejectsNaNRows(t *testing.T) {
	input := "sbp,ldl,adiposity,obesity,age,famhist,chd\n" +
		"NaN,5,25,26,50,Present,1\n" +
		"130,3,20,25,40,Absent,0\n" +
		"150,6,30,31,62,Present,1\n"
	path := filepath.Join(t.TempDir(), "nan.csv")
	if err := os.WriteFile(path, []byte(input), 0o600); err != nil {
		t.Fatal(err)
	}
	result, err := Load(path, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Dataset.Len() != 2 {
		t.Fatalf("expected the NaN row to be dropped, kept %d rows", result.Dataset.Len())
	}
	if len(result.Issues) != 1 || result.Issues[0].Line != 2 || result.Issues[0].Type != "range_validation" {
		t.Fatalf("unexpected issues: %+v", result.Issues)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "SAheart.csv")
	if err := os.WriteFile(path, []byte(saheart), 0o600); err != nil {
		t.Fatal(err)
	}
	result, err := Load(path, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Dataset.Len() != 5 {
		t.Fatalf("expected 5 rows, got %d", result.Dataset.Len())
	}
	if err := result.Dataset.Validate(); err != nil {
		t.Fatalf("dataset invalid: %v", err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.csv"), nil); !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}
