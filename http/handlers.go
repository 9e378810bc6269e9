package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"chdrisk/assessment"
	"chdrisk/db"
	"chdrisk/ml"
	"chdrisk/predictor"
	"chdrisk/risk"
)

type handlers struct {
	deps        Dependencies
	defaultLang language.Tag
}

func (h *handlers) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.handleForm)
	mux.HandleFunc("POST /{$}", h.handleFormSubmit)

	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("GET /api/model", h.handleModel)
	mux.HandleFunc("POST /api/predict", h.handlePredict)
	mux.HandleFunc("GET /api/assessments", h.handleAssessments)
	mux.HandleFunc("GET /api/training-log", h.handleTrainingLog)
	mux.HandleFunc("GET /api/metrics", h.handleMetrics)
	if h.deps.Feed != nil {
		mux.Handle("GET /api/ws/assessments", h.deps.Feed)
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) handleModel(w http.ResponseWriter, r *http.Request) {
	info, ok := h.deps.Model.Info()
	if !ok {
		respondError(w, http.StatusServiceUnavailable, predictor.ErrModelNotLoaded.Error())
		return
	}
	respondJSON(w, http.StatusOK, info)
}

// predictRequest uses pointers so that a missing field is an error rather
// than a silent zero.
type predictRequest struct {
	SBP       *float64 `json:"sbp"`
	LDL       *float64 `json:"ldl"`
	Adiposity *float64 `json:"adiposity"`
	Obesity   *float64 `json:"obesity"`
	Age       *int     `json:"age"`
	FamHist   *string  `json:"famhist"`
}

func (req predictRequest) observation() (ml.Observation, error) {
	present := map[string]bool{
		"sbp":       req.SBP != nil,
		"ldl":       req.LDL != nil,
		"adiposity": req.Adiposity != nil,
		"obesity":   req.Obesity != nil,
		"age":       req.Age != nil,
		"famhist":   req.FamHist != nil,
	}
	names := append(ml.NumericFeatures(), ml.CategoricalFeatures()...)
	missing := lo.Filter(names, func(name string, _ int) bool { return !present[name] })
	if len(missing) > 0 {
		return ml.Observation{}, fmt.Errorf("missing fields: %s", strings.Join(missing, ", "))
	}
	return ml.Observation{
		SBP:       *req.SBP,
		LDL:       *req.LDL,
		Adiposity: *req.Adiposity,
		Obesity:   *req.Obesity,
		Age:       *req.Age,
		FamHist:   *req.FamHist,
	}, nil
}

type assessmentResponse struct {
	*assessment.Assessment
	HighRisk  bool     `json:"high_risk"`
	RiskRules []string `json:"risk_rules"`
}

func newAssessmentResponse(a *assessment.Assessment) assessmentResponse {
	return assessmentResponse{
		Assessment: a,
		HighRisk:   a.HighRisk(),
		RiskRules:  lo.Map(a.RiskFactors, func(f risk.Factor, _ int) string { return f.Threshold() }),
	}
}

func (h *handlers) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	obs, err := req.observation()
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := obs.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	a, err := h.deps.Assessor.Assess(r.Context(), obs)
	if err != nil {
		status := assessStatus(err)
		message := err.Error()
		if status == http.StatusInternalServerError {
			h.deps.Logger.Error("prediction failed", zap.String("request_id", GetRequestID(r.Context())), zap.Error(err))
			message = "prediction failed"
		}
		respondError(w, status, message)
		return
	}
	respondJSON(w, http.StatusOK, newAssessmentResponse(a))
}

// assessStatus maps inference errors for the JSON API.
func assessStatus(err error) int {
	switch {
	case errors.Is(err, predictor.ErrModelNotLoaded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *handlers) handleAssessments(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	recent, err := h.deps.Assessor.Recent(r.Context(), limit)
	if err != nil {
		h.deps.Logger.Error("load assessments failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to load assessments")
		return
	}
	respondJSON(w, http.StatusOK, lo.Map(recent, func(a *assessment.Assessment, _ int) assessmentResponse {
		return newAssessmentResponse(a)
	}))
}

func (h *handlers) handleTrainingLog(w http.ResponseWriter, r *http.Request) {
	if h.deps.TrainingLog == nil {
		respondJSON(w, http.StatusOK, []db.TrainingLog{})
		return
	}
	logs, err := h.deps.TrainingLog.LoadTrainingLog(r.Context())
	if err != nil {
		h.deps.Logger.Error("load training log failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to load training log")
		return
	}
	respondJSON(w, http.StatusOK, logs)
}

func (h *handlers) handleMetrics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.deps.Metrics.Snapshot())
}

// respondJSON 统一JSON响应
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
