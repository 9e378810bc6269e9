// Package risk derives static clinical risk-factor flags from an
// observation. The flags are independent of the trained model.
package risk

import (
	"fmt"

	"github.com/samber/lo"

	"chdrisk/ml"
)

type Factor string

const (
	Age           Factor = "age"
	SBP           Factor = "sbp"
	LDL           Factor = "ldl"
	BMI           Factor = "bmi"
	FamilyHistory Factor = "famhist"
)

const (
	AgeThreshold = 60
	SBPThreshold = 140.0
	LDLThreshold = 4.5
	BMIThreshold = 30.0
)

type rule struct {
	factor  Factor
	crossed func(ml.Observation) bool
}

// rules are kept in display order.
var rules = []rule{
	{Age, func(o ml.Observation) bool { return o.Age > AgeThreshold }},
	{SBP, func(o ml.Observation) bool { return o.SBP > SBPThreshold }},
	{LDL, func(o ml.Observation) bool { return o.LDL > LDLThreshold }},
	{BMI, func(o ml.Observation) bool { return o.Obesity > BMIThreshold }},
	{FamilyHistory, func(o ml.Observation) bool { return o.FamHist == ml.FamHistPresent }},
}

// Factors returns exactly the thresholds the observation crosses. All
// comparisons are strict.
func Factors(o ml.Observation) []Factor {
	crossed := lo.Filter(rules, func(r rule, _ int) bool {
		return r.crossed(o)
	})
	return lo.Map(crossed, func(r rule, _ int) Factor {
		return r.factor
	})
}

func AllFactors() []Factor {
	return lo.Map(rules, func(r rule, _ int) Factor { return r.factor })
}

// Threshold describes the rule behind a factor, e.g. "sbp > 140".
func (f Factor) Threshold() string {
	switch f {
	case Age:
		return fmt.Sprintf("age > %d", AgeThreshold)
	case SBP:
		return fmt.Sprintf("sbp > %g", SBPThreshold)
	case LDL:
		return fmt.Sprintf("ldl > %g", LDLThreshold)
	case BMI:
		return fmt.Sprintf("bmi > %g", BMIThreshold)
	case FamilyHistory:
		return "famhist = " + ml.FamHistPresent
	default:
		return string(f)
	}
}

func (f Factor) Valid() bool {
	return lo.Contains(AllFactors(), f)
}
