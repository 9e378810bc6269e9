package http

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"chdrisk/assessment"
	"chdrisk/locale"
	"chdrisk/ml"
	"chdrisk/risk"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

var fieldLabels = map[string]string{
	"age":       locale.FieldAge,
	"sbp":       locale.FieldSBP,
	"ldl":       locale.FieldLDL,
	"adiposity": locale.FieldAdiposity,
	"obesity":   locale.FieldObesity,
	"famhist":   locale.FieldFamHist,
}

var factorLabels = map[risk.Factor]string{
	risk.Age:           locale.FactorAge,
	risk.SBP:           locale.FactorSBP,
	risk.LDL:           locale.FactorLDL,
	risk.BMI:           locale.FactorBMI,
	risk.FamilyHistory: locale.FactorFamHist,
}

type fieldView struct {
	Name  string
	Label string
	Min   string
	Max   string
	Step  string
	Value string
}

type optionView struct {
	Value    string
	Label    string
	Selected bool
}

type resultView struct {
	Percent  string
	HighRisk bool
	Label    string
	Advice   string
	Factors  []string
}

type pageView struct {
	Lang         string
	Title        string
	Subtitle     string
	SidebarTitle string
	SidebarIntro string
	VariablesTxt string
	Variables    []string
	Warning      string
	ModelStatus  string
	FormHeading  string
	Submit       string
	Fields       []fieldView
	FamHist      fieldView
	FamHistOpts  []optionView
	Error        string
	Result       *resultView
	ResultsTxt   string
	ProbTxt      string
	FactorsTxt   string
	NoFactorsTxt string
	Footer       string
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (h *handlers) newPage(p *locale.Printer, values map[string]string) *pageView {
	view := &pageView{
		Lang:         p.Lang(),
		Title:        p.T(locale.Title),
		Subtitle:     p.T(locale.Subtitle),
		SidebarTitle: p.T(locale.SidebarTitle),
		SidebarIntro: p.T(locale.SidebarIntro),
		VariablesTxt: p.T(locale.SidebarVariables),
		Warning:      p.T(locale.EducationalWarning),
		FormHeading:  p.T(locale.FormHeading),
		Submit:       p.T(locale.Submit),
		ResultsTxt:   p.T(locale.ResultsHeading),
		ProbTxt:      p.T(locale.ProbabilityLabel),
		FactorsTxt:   p.T(locale.FactorsHeading),
		NoFactorsTxt: p.T(locale.NoFactors),
		Footer:       p.T(locale.Footer),
	}
	if info, ok := h.deps.Model.Info(); ok {
		view.ModelStatus = p.T(locale.ModelLoaded, info.Version)
	}

	for _, f := range ml.Fields() {
		view.Fields = append(view.Fields, fieldView{
			Name:  f.Name,
			Label: p.T(fieldLabels[f.Name]),
			Min:   formatNumber(f.Min),
			Max:   formatNumber(f.Max),
			Step:  formatNumber(f.Step),
			Value: values[f.Name],
		})
	}
	view.FamHist = fieldView{Name: "famhist", Label: p.T(locale.FieldFamHist)}
	view.FamHistOpts = []optionView{
		{Value: ml.FamHistAbsent, Label: p.T(locale.Absent), Selected: values["famhist"] != ml.FamHistPresent},
		{Value: ml.FamHistPresent, Label: p.T(locale.Present), Selected: values["famhist"] == ml.FamHistPresent},
	}
	view.Variables = lo.Map(append(ml.Fields(), ml.Field{Name: "famhist"}), func(f ml.Field, _ int) string {
		return p.T(fieldLabels[f.Name])
	})
	return view
}

func defaultFormValues() map[string]string {
	return observationValues(ml.DefaultObservation())
}

func observationValues(obs ml.Observation) map[string]string {
	return map[string]string{
		"age":       strconv.Itoa(obs.Age),
		"sbp":       formatNumber(obs.SBP),
		"ldl":       formatNumber(obs.LDL),
		"adiposity": formatNumber(obs.Adiposity),
		"obesity":   formatNumber(obs.Obesity),
		"famhist":   obs.FamHist,
	}
}

func (h *handlers) printer(r *http.Request) *locale.Printer {
	return locale.NewPrinter(locale.Negotiate(r.URL.Query().Get("lang"), r.Header.Get("Accept-Language"), h.defaultLang))
}

func (h *handlers) handleForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, h.newPage(h.printer(r), defaultFormValues()))
}

func (h *handlers) handleFormSubmit(w http.ResponseWriter, r *http.Request) {
	p := h.printer(r)
	if err := r.ParseForm(); err != nil {
		page := h.newPage(p, defaultFormValues())
		page.Error = p.T(locale.InvalidInput, err.Error())
		h.render(w, r, http.StatusBadRequest, page)
		return
	}

	values := make(map[string]string, len(fieldLabels))
	for name := range fieldLabels {
		values[name] = strings.TrimSpace(r.PostForm.Get(name))
	}
	page := h.newPage(p, values)

	obs, err := parseObservation(values)
	if err == nil {
		err = obs.Validate()
	}
	if err != nil {
		page.Error = p.T(locale.InvalidInput, err.Error())
		h.render(w, r, http.StatusBadRequest, page)
		return
	}

	a, err := h.deps.Assessor.Assess(r.Context(), obs)
	if err != nil {
		status := formStatus(err)
		if status == http.StatusInternalServerError {
			h.deps.Logger.Error("prediction failed", zap.String("request_id", GetRequestID(r.Context())), zap.Error(err))
		}
		page.Error = p.T(locale.PredictionFailed)
		h.render(w, r, status, page)
		return
	}
	page.Result = newResultView(p, a)
	h.render(w, r, http.StatusOK, page)
}

// formStatus is assessStatus plus 422 for a category the model never saw.
func formStatus(err error) int {
	if errors.Is(err, ml.ErrUnknownCategory) {
		return http.StatusUnprocessableEntity
	}
	return assessStatus(err)
}

func parseObservation(values map[string]string) (ml.Observation, error) {
	number := func(name string) (float64, error) {
		v, err := strconv.ParseFloat(values[name], 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be a number", name)
		}
		return v, nil
	}

	var obs ml.Observation
	var err error
	if obs.Age, err = strconv.Atoi(values["age"]); err != nil {
		return obs, errors.New("age must be a whole number")
	}
	if obs.SBP, err = number("sbp"); err != nil {
		return obs, err
	}
	if obs.LDL, err = number("ldl"); err != nil {
		return obs, err
	}
	if obs.Adiposity, err = number("adiposity"); err != nil {
		return obs, err
	}
	if obs.Obesity, err = number("obesity"); err != nil {
		return obs, err
	}
	obs.FamHist = values["famhist"]
	return obs, nil
}

func newResultView(p *locale.Printer, a *assessment.Assessment) *resultView {
	view := &resultView{
		Percent:  p.Percent(a.Probability),
		HighRisk: a.HighRisk(),
		Label:    p.T(locale.LowRisk),
		Advice:   p.T(locale.LowRiskAdvice),
		Factors: lo.Map(a.RiskFactors, func(f risk.Factor, _ int) string {
			return p.T(factorLabels[f])
		}),
	}
	if view.HighRisk {
		view.Label = p.T(locale.HighRisk)
		view.Advice = p.T(locale.HighRiskAdvice)
	}
	return view
}

func (h *handlers) render(w http.ResponseWriter, r *http.Request, status int, page *pageView) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Language", page.Lang)
	w.WriteHeader(status)
	if err := pageTemplate.Execute(w, page); err != nil {
		h.deps.Logger.Error("render page failed", zap.String("request_id", GetRequestID(r.Context())), zap.Error(err))
	}
}
