package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chdrisk/assessment"
	"chdrisk/db"
	"chdrisk/ml"
	"chdrisk/monitoring"
	"chdrisk/predictor"
	"chdrisk/risk"
)

type fakeAssessor struct {
	result  *assessment.Assessment
	err     error
	recent  []*assessment.Assessment
	lastObs ml.Observation
	calls   int
	recentN int
}

func (f *fakeAssessor) Assess(ctx context.Context, obs ml.Observation) (*assessment.Assessment, error) {
	f.calls++
	f.lastObs = obs
	if f.err != nil {
		return nil, f.err
	}
	a := *f.result
	a.Observation = obs
	a.RiskFactors = risk.Factors(obs)
	return &a, nil
}

func (f *fakeAssessor) Recent(ctx context.Context, limit int) ([]*assessment.Assessment, error) {
	f.recentN = limit
	return f.recent, f.err
}

type fakeModelInfo struct {
	info predictor.Info
	ok   bool
}

func (f fakeModelInfo) Info() (predictor.Info, bool) {
	return f.info, f.ok
}

type fakeTrainingLog struct {
	logs []db.TrainingLog
}

func (f fakeTrainingLog) LoadTrainingLog(ctx context.Context) ([]db.TrainingLog, error) {
	return f.logs, nil
}

func newTestHandler(a *fakeAssessor) http.Handler {
	return NewHandler(DefaultServerConfig(), Dependencies{
		Assessor: a,
		Model:    fakeModelInfo{info: predictor.Info{ModelType: ml.ModelTypePCALogistic, Version: "0123456789ab", Components: 3}, ok: true},
		TrainingLog: fakeTrainingLog{logs: []db.TrainingLog{
			{ModelName: ml.ModelTypePCALogistic, Source: "synthetic", Seed: 42, DataPoints: 100, TrainedAt: time.Now()},
		}},
		Metrics: monitoring.NewMetrics(),
	})
}

func highRiskResult() *assessment.Assessment {
	return &assessment.Assessment{ID: "id-1", Probability: 0.8, Label: 1, ModelVersion: "0123456789ab", CreatedAt: time.Now()}
}

func TestHealthHandler(t *testing.T) {
	req, err := http.NewRequest("GET", "/api/health", nil)
	if err != nil {
		t.Fatal(err)
	}

	rr := httptest.NewRecorder()
	handler := http.HandlerFunc(handleHealth)

	handler.ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusOK {
		t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusOK)
	}

	expected := `{"status":"ok"}`
	if rr.Body.String() != expected+"\n" && rr.Body.String() != expected {
		t.Errorf("handler returned unexpected body: got %v want %v", rr.Body.String(), expected)
	}
}

func TestHandlePredict(t *testing.T) {
	a := &fakeAssessor{result: highRiskResult()}
	h := newTestHandler(a)

	body := `{"sbp":150,"ldl":5.0,"adiposity":25,"obesity":32,"age":65,"famhist":"Present"}`
	req := httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if payload["label"].(float64) != 1 || payload["high_risk"] != true {
		t.Fatalf("unexpected payload: %v", payload)
	}
	if factors := payload["risk_factors"].([]interface{}); len(factors) != 5 {
		t.Fatalf("expected 5 risk factors, got %v", factors)
	}
	if rules := payload["risk_rules"].([]interface{}); rules[1] != "sbp > 140" {
		t.Fatalf("unexpected rules: %v", rules)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected a request id header")
	}
}

func TestHandlePredictRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"malformed json", `{"sbp":`, "invalid request body"},
		{"unknown field", `{"sbp":150,"ldl":5,"adiposity":25,"obesity":32,"age":65,"famhist":"Present","tobacco":1}`, "invalid request body"},
		{"missing fields", `{"sbp":150,"age":65}`, "missing fields: ldl, adiposity, obesity, famhist"},
		{"fractional age", `{"sbp":150,"ldl":5,"adiposity":25,"obesity":32,"age":65.5,"famhist":"Present"}`, "invalid request body"},
		{"out of range", `{"sbp":300,"ldl":5,"adiposity":25,"obesity":32,"age":65,"famhist":"Present"}`, "sbp must be between 80 and 250"},
		{"unknown famhist", `{"sbp":150,"ldl":5,"adiposity":25,"obesity":32,"age":65,"famhist":"Maybe"}`, "famhist must be"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &fakeAssessor{result: highRiskResult()}
			req := httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			newTestHandler(a).ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
			if !strings.Contains(w.Body.String(), tt.want) {
				t.Fatalf("expected %q in %s", tt.want, w.Body.String())
			}
			if a.calls != 0 {
				t.Fatal("assessor must not be called for invalid input")
			}
		})
	}
}

func TestHandlePredictErrors(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{predictor.ErrModelNotLoaded, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		a := &fakeAssessor{err: tt.err}
		body := `{"sbp":120,"ldl":3,"adiposity":20,"obesity":25,"age":40,"famhist":"Absent"}`
		req := httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(body))
		w := httptest.NewRecorder()
		newTestHandler(a).ServeHTTP(w, req)
		if w.Code != tt.code {
			t.Errorf("error %v: expected %d, got %d", tt.err, tt.code, w.Code)
		}
	}
}

func TestHandleModel(t *testing.T) {
	w := httptest.NewRecorder()
	newTestHandler(&fakeAssessor{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/model", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"version":"0123456789ab"`) {
		t.Fatalf("unexpected response %d: %s", w.Code, w.Body.String())
	}

	h := NewHandler(DefaultServerConfig(), Dependencies{Assessor: &fakeAssessor{}, Model: fakeModelInfo{}})
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/model", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before load, got %d", w.Code)
	}
}

func TestHandleAssessments(t *testing.T) {
	a := &fakeAssessor{recent: []*assessment.Assessment{highRiskResult()}}
	h := newTestHandler(a)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/assessments?limit=5", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if a.recentN != 5 {
		t.Fatalf("expected limit 5 to be passed through, got %d", a.recentN)
	}
	var payload []map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(payload) != 1 || payload[0]["id"] != "id-1" {
		t.Fatalf("unexpected payload: %v", payload)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/assessments?limit=abc", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", w.Code)
	}
}

func TestHandleTrainingLogAndMetrics(t *testing.T) {
	h := newTestHandler(&fakeAssessor{})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/training-log", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"source":"synthetic"`) {
		t.Fatalf("unexpected training log response %d: %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"assessments":0`) {
		t.Fatalf("unexpected metrics response %d: %s", w.Code, w.Body.String())
	}
}

func TestUnknownRoute(t *testing.T) {
	w := httptest.NewRecorder()
	newTestHandler(&fakeAssessor{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}
