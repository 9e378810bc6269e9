package dataset

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"chdrisk/ml"
)

// CleaningRule validates or corrects one record. Returning an error rejects
// the record.
type CleaningRule interface {
	Apply(*Record) (*Record, error)
	Name() string
}

// QualityIssue 质量问题
type QualityIssue struct {
	Type     string `json:"type"`
	Severity string `json:"severity"` // low, high
	Message  string `json:"message"`
	Line     int    `json:"line"`
}

// CleaningStats 清洗统计
type CleaningStats struct {
	TotalProcessed int64            `json:"total_processed"`
	Passed         int64            `json:"passed"`
	Rejected       int64            `json:"rejected"`
	Corrected      int64            `json:"corrected"`
	Issues         map[string]int64 `json:"issues"`
	LastClean      time.Time        `json:"last_clean"`
}

// DataCleaner 数据清洗器
type DataCleaner struct {
	rules []CleaningRule

	stats     CleaningStats
	statsLock sync.RWMutex
}

func NewDataCleaner() *DataCleaner {
	cleaner := &DataCleaner{
		rules: make([]CleaningRule, 0),
		stats: CleaningStats{
			Issues: make(map[string]int64),
		},
	}

	cleaner.AddRule(NewFamHistNormalizationRule())
	cleaner.AddRule(NewRangeValidationRule())
	cleaner.AddRule(NewLabelValidationRule())
	cleaner.AddRule(NewDuplicateDetectionRule())

	return cleaner
}

func (dc *DataCleaner) AddRule(rule CleaningRule) {
	dc.rules = append(dc.rules, rule)
}

func (dc *DataCleaner) Rules() []string {
	names := make([]string, len(dc.rules))
	for i, r := range dc.rules {
		names[i] = r.Name()
	}
	return names
}

// Clean runs every rule on every record and keeps the ones no rule rejected.
func (dc *DataCleaner) Clean(records []*Record) ([]*Record, []QualityIssue) {
	var cleaned []*Record
	var issues []QualityIssue

	dc.statsLock.Lock()
	defer dc.statsLock.Unlock()

	for _, record := range records {
		dc.stats.TotalProcessed++

		original := *record
		var recordIssues []QualityIssue

		for _, rule := range dc.rules {
			result, err := rule.Apply(record)
			if err != nil {
				recordIssues = append(recordIssues, QualityIssue{
					Type:     rule.Name(),
					Severity: "high",
					Message:  err.Error(),
					Line:     record.Line,
				})
				dc.stats.Issues[rule.Name()]++
				break
			}
			if result != nil {
				record = result
			}
		}

		if len(recordIssues) > 0 {
			dc.stats.Rejected++
			issues = append(issues, recordIssues...)
			continue
		}
		if original != *record {
			dc.stats.Corrected++
		}
		dc.stats.Passed++
		cleaned = append(cleaned, record)
	}

	dc.stats.LastClean = time.Now()
	return cleaned, issues
}

func (dc *DataCleaner) GetStats() CleaningStats {
	dc.statsLock.RLock()
	defer dc.statsLock.RUnlock()

	stats := dc.stats
	stats.Issues = make(map[string]int64, len(dc.stats.Issues))
	for k, v := range dc.stats.Issues {
		stats.Issues[k] = v
	}
	return stats
}

// FamHistNormalizationRule maps the spellings found in public copies of the
// dataset onto Absent/Present.
type FamHistNormalizationRule struct{}

func NewFamHistNormalizationRule() *FamHistNormalizationRule {
	return &FamHistNormalizationRule{}
}

func (r *FamHistNormalizationRule) Name() string {
	return "famhist_normalization"
}

func (r *FamHistNormalizationRule) Apply(record *Record) (*Record, error) {
	var normalized string
	switch strings.ToLower(strings.TrimSpace(record.Observation.FamHist)) {
	case "present", "1", "true", "yes":
		normalized = ml.FamHistPresent
	case "absent", "0", "false", "no":
		normalized = ml.FamHistAbsent
	default:
		return nil, fmt.Errorf("unrecognised famhist value %q", record.Observation.FamHist)
	}
	if normalized == record.Observation.FamHist {
		return record, nil
	}
	corrected := *record
	corrected.Observation.FamHist = normalized
	return &corrected, nil
}

type bounds struct {
	min, max float64
}

// RangeValidationRule rejects physically implausible values. The bounds are
// wider than the form's so that real cohorts are not truncated.
type RangeValidationRule struct {
	Bounds map[string]bounds
}

func NewRangeValidationRule() *RangeValidationRule {
	return &RangeValidationRule{
		Bounds: map[string]bounds{
			"sbp":       {50, 300},
			"ldl":       {0, 20},
			"adiposity": {0, 70},
			"obesity":   {10, 70},
			"age":       {0, 120},
		},
	}
}

func (r *RangeValidationRule) Name() string {
	return "range_validation"
}

func (r *RangeValidationRule) Apply(record *Record) (*Record, error) {
	values := record.Observation.NumericVector()
	for i, name := range ml.NumericFeatures() {
		b, ok := r.Bounds[name]
		if !ok {
			continue
		}
		if v := values[i]; !(v >= b.min && v <= b.max) {
			return nil, fmt.Errorf("%s=%g outside [%g, %g]", name, values[i], b.min, b.max)
		}
	}
	return record, nil
}

type LabelValidationRule struct{}

func NewLabelValidationRule() *LabelValidationRule {
	return &LabelValidationRule{}
}

func (r *LabelValidationRule) Name() string {
	return "label_validation"
}

func (r *LabelValidationRule) Apply(record *Record) (*Record, error) {
	if record.Label != 0 && record.Label != 1 {
		return nil, fmt.Errorf("chd must be 0 or 1, got %d", record.Label)
	}
	return record, nil
}

// DuplicateDetectionRule 重复检测规则
type DuplicateDetectionRule struct {
	seenMap map[Record]int
	mu      sync.Mutex
}

func NewDuplicateDetectionRule() *DuplicateDetectionRule {
	return &DuplicateDetectionRule{
		seenMap: make(map[Record]int),
	}
}

func (r *DuplicateDetectionRule) Name() string {
	return "duplicate_detection"
}

func (r *DuplicateDetectionRule) Apply(record *Record) (*Record, error) {
	key := *record
	key.Line = 0

	r.mu.Lock()
	defer r.mu.Unlock()

	if line, exists := r.seenMap[key]; exists {
		return nil, fmt.Errorf("duplicate of line %d", line)
	}
	r.seenMap[key] = record.Line
	return record, nil
}
