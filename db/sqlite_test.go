package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"chdrisk/assessment"
	"chdrisk/dataset"
	"chdrisk/ml"
	"chdrisk/risk"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "data", "chdrisk.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestAssessmentsNewestFirst(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		a := &assessment.Assessment{
			ID:           id,
			Observation:  ml.Observation{SBP: 150, LDL: 5, Adiposity: 25, Obesity: 32, Age: 65, FamHist: ml.FamHistPresent},
			Probability:  0.4 + float64(i)*0.1,
			Label:        0,
			RiskFactors:  []risk.Factor{risk.Age, risk.SBP},
			ModelVersion: "abc123def456",
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.SaveAssessment(ctx, a); err != nil {
			t.Fatalf("save assessment: %v", err)
		}
	}

	got, err := store.RecentAssessments(ctx, 2)
	if err != nil {
		t.Fatalf("recent assessments: %v", err)
	}
	if len(got) != 2 || got[0].ID != "c" || got[1].ID != "b" {
		t.Fatalf("unexpected order: %+v", got)
	}
	first := got[0]
	if first.Observation.Age != 65 || first.Observation.FamHist != ml.FamHistPresent {
		t.Fatalf("observation not round-tripped: %+v", first.Observation)
	}
	if len(first.RiskFactors) != 2 || first.RiskFactors[0] != risk.Age || first.RiskFactors[1] != risk.SBP {
		t.Fatalf("risk factors not round-tripped: %v", first.RiskFactors)
	}
	if !first.CreatedAt.Equal(base.Add(2 * time.Minute)) {
		t.Fatalf("created_at not round-tripped: %v", first.CreatedAt)
	}
}

func TestAssessmentWithoutFactors(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	a := &assessment.Assessment{
		ID:          "none",
		Observation: ml.DefaultObservation(),
		CreatedAt:   time.Now(),
	}
	if err := store.SaveAssessment(ctx, a); err != nil {
		t.Fatalf("save assessment: %v", err)
	}
	got, err := store.RecentAssessments(ctx, 10)
	if err != nil {
		t.Fatalf("recent assessments: %v", err)
	}
	if len(got) != 1 || len(got[0].RiskFactors) != 0 {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestTrainingLog(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	logs, err := store.LoadTrainingLog(ctx)
	if err != nil {
		t.Fatalf("load training log: %v", err)
	}
	if len(logs) != 0 {
		t.Fatalf("expected empty log, got %d rows", len(logs))
	}

	older := TrainingLog{ModelName: ml.ModelTypePCALogistic, Source: "synthetic", Seed: 42, Accuracy: 0.6, TrainedAt: time.Now().Add(-time.Hour), DataPoints: 100}
	newer := TrainingLog{ModelName: ml.ModelTypePCALogistic, Source: "SAheart.csv", Seed: 7, Accuracy: 0.7, Precision: 0.6, Recall: 0.5, LogLoss: 0.55, TrainedAt: time.Now(), DataPoints: 462}
	for _, l := range []TrainingLog{older, newer} {
		if err := store.SaveTrainingLog(ctx, l); err != nil {
			t.Fatalf("save training log: %v", err)
		}
	}

	logs, err = store.LoadTrainingLog(ctx)
	if err != nil {
		t.Fatalf("load training log: %v", err)
	}
	if len(logs) != 2 || logs[0].Source != "SAheart.csv" || logs[0].DataPoints != 462 || logs[0].LogLoss != 0.55 {
		t.Fatalf("unexpected training log: %+v", logs)
	}
}

func TestQualityIssues(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	if err := store.SaveQualityIssues(ctx, "SAheart.csv", nil); err != nil {
		t.Fatalf("save empty issues: %v", err)
	}
	issues := []dataset.QualityIssue{
		{Type: "range_validation", Severity: "high", Message: "sbp=999 outside [50, 300]", Line: 5},
		{Type: "duplicate_detection", Severity: "high", Message: "duplicate of line 2", Line: 3},
	}
	if err := store.SaveQualityIssues(ctx, "SAheart.csv", issues); err != nil {
		t.Fatalf("save issues: %v", err)
	}
	n, err := store.CountQualityIssues(ctx, "SAheart.csv")
	if err != nil {
		t.Fatalf("count issues: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 issues, got %d", n)
	}
}
