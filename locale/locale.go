// Package locale holds the UI strings in English and French and picks one
// per request.
package locale

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
	"golang.org/x/text/number"
)

var supported = []language.Tag{language.English, language.French}

var matcher = language.NewMatcher(supported)

// Message keys double as the English text.
const (
	Title              = "CHD risk prediction"
	Subtitle           = "Estimate the risk of coronary heart disease from six clinical measurements."
	SidebarTitle       = "Information"
	SidebarIntro       = "This application predicts the risk of coronary heart disease (CHD)."
	SidebarVariables   = "Variables used:"
	EducationalWarning = "For educational use only. This is not a medical diagnosis."
	ModelLoaded        = "Model loaded (version %s)"
	FormHeading        = "Enter the patient's information"
	Submit             = "Analyse risk"
	ResultsHeading     = "Results"
	ProbabilityLabel   = "Probability of CHD"
	HighRisk           = "HIGH RISK"
	HighRiskAdvice     = "The model detects a high risk of heart disease. See a doctor for further tests."
	LowRisk            = "LOW RISK"
	LowRiskAdvice      = "The model detects a low risk. Keep a healthy lifestyle and have regular check-ups."
	FactorsHeading     = "Risk factors detected"
	NoFactors          = "No major risk factor identified"
	InvalidInput       = "Invalid input: %s"
	PredictionFailed   = "The prediction could not be computed."
	Footer             = "Educational use only"

	FieldAge       = "Age"
	FieldSBP       = "Systolic blood pressure (mmHg)"
	FieldLDL       = "LDL cholesterol (mmol/L)"
	FieldAdiposity = "Adiposity"
	FieldObesity   = "BMI (obesity)"
	FieldFamHist   = "Family history"
	Absent         = "Absent"
	Present        = "Present"

	FactorAge     = "Age > 60 years"
	FactorSBP     = "Hypertension (SBP > 140)"
	FactorLDL     = "High LDL (> 4.5)"
	FactorBMI     = "Obesity (BMI > 30)"
	FactorFamHist = "Family history of CHD"
)

var french = map[string]string{
	Title:              "Prédiction du risque cardiaque",
	Subtitle:           "Estimez le risque de maladie coronarienne à partir de six mesures cliniques.",
	SidebarTitle:       "Informations",
	SidebarIntro:       "Cette application prédit le risque de maladie cardiaque coronarienne (CHD).",
	SidebarVariables:   "Variables utilisées :",
	EducationalWarning: "Application à but pédagogique uniquement. Ceci n'est pas un diagnostic médical.",
	ModelLoaded:        "Modèle chargé (version %s)",
	FormHeading:        "Entrez les informations du patient",
	Submit:             "Analyser le risque",
	ResultsHeading:     "Résultats",
	ProbabilityLabel:   "Probabilité de CHD",
	HighRisk:           "RISQUE ÉLEVÉ",
	HighRiskAdvice:     "Le modèle détecte un risque élevé de maladie cardiaque. Consultez un médecin pour des examens approfondis.",
	LowRisk:            "RISQUE FAIBLE",
	LowRiskAdvice:      "Le modèle détecte un risque faible. Maintenez un mode de vie sain et faites des contrôles réguliers.",
	FactorsHeading:     "Facteurs de risque détectés",
	NoFactors:          "Aucun facteur de risque majeur identifié",
	InvalidInput:       "Saisie invalide : %s",
	PredictionFailed:   "La prédiction n'a pas pu être calculée.",
	Footer:             "Usage pédagogique uniquement",

	FieldAge:       "Âge",
	FieldSBP:       "Pression systolique (mmHg)",
	FieldLDL:       "LDL cholestérol (mmol/L)",
	FieldAdiposity: "Adiposité",
	FieldObesity:   "IMC (obésité)",
	FieldFamHist:   "Antécédents familiaux",
	Absent:         "Absent",
	Present:        "Présent",

	FactorAge:     "Âge > 60 ans",
	FactorSBP:     "Hypertension (SBP > 140)",
	FactorLDL:     "LDL élevé (> 4.5)",
	FactorBMI:     "Obésité (IMC > 30)",
	FactorFamHist: "Antécédents familiaux",
}

var messages = buildCatalog()

func buildCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for key, text := range french {
		if err := b.SetString(language.French, key, text); err != nil {
			panic(err)
		}
		if err := b.SetString(language.English, key, key); err != nil {
			panic(err)
		}
	}
	return b
}

// Parse maps a configured language code onto a supported tag, English when
// the code is unknown.
func Parse(code string) language.Tag {
	tag, err := language.Parse(code)
	if err != nil {
		return language.English
	}
	_, index, confidence := matcher.Match(tag)
	if confidence == language.No {
		return language.English
	}
	return supported[index]
}

// Negotiate picks the UI language. An explicit ?lang= wins over the
// Accept-Language header, which wins over fallback.
func Negotiate(query, acceptLanguage string, fallback language.Tag) language.Tag {
	var prefs []language.Tag
	if query != "" {
		if tag, err := language.Parse(query); err == nil {
			prefs = append(prefs, tag)
		}
	}
	if accept, _, err := language.ParseAcceptLanguage(acceptLanguage); err == nil {
		prefs = append(prefs, accept...)
	}
	if len(prefs) == 0 {
		return fallback
	}
	_, index, confidence := matcher.Match(prefs...)
	if confidence == language.No {
		return fallback
	}
	return supported[index]
}

// Printer renders catalog messages and numbers for one language.
type Printer struct {
	tag language.Tag
	p   *message.Printer
}

func NewPrinter(tag language.Tag) *Printer {
	return &Printer{tag: tag, p: message.NewPrinter(tag, message.Catalog(messages))}
}

func (p *Printer) Tag() language.Tag {
	return p.tag
}

// Lang is the two-letter code for the html lang attribute.
func (p *Printer) Lang() string {
	base, _ := p.tag.Base()
	return base.String()
}

func (p *Printer) T(key string, args ...any) string {
	return p.p.Sprintf(key, args...)
}

// Percent formats a probability with one decimal, e.g. 73.2% or 73,2 %.
func (p *Printer) Percent(probability float64) string {
	return p.p.Sprint(number.Percent(probability, number.MaxFractionDigits(1), number.MinFractionDigits(1)))
}
