package ml

import (
	"errors"
	"math"
)

type Metrics struct {
	Samples   int     `json:"samples"`
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	LogLoss   float64 `json:"log_loss"`
}

const probabilityClip = 1e-15

// Evaluate scores a fitted model against labelled data, treating label 1 as
// the positive class.
func Evaluate(model MLModel, ds Dataset) (Metrics, error) {
	if ds.Len() == 0 {
		return Metrics{}, errors.New("dataset is empty")
	}
	if err := ds.Validate(); err != nil {
		return Metrics{}, err
	}
	probs, err := model.PredictProba(ds.Observations)
	if err != nil {
		return Metrics{}, err
	}

	var correct, truePositive, predictedPositive, actualPositive int
	var loss float64
	for i, prob := range probs {
		label := LabelFor(prob)
		actual := ds.Labels[i]
		if label == actual {
			correct++
		}
		if label == 1 {
			predictedPositive++
		}
		if actual == 1 {
			actualPositive++
			if label == 1 {
				truePositive++
			}
		}
		clipped := math.Min(math.Max(prob, probabilityClip), 1-probabilityClip)
		if actual == 1 {
			loss -= math.Log(clipped)
		} else {
			loss -= math.Log(1 - clipped)
		}
	}

	m := Metrics{
		Samples:  ds.Len(),
		Accuracy: float64(correct) / float64(ds.Len()),
		LogLoss:  loss / float64(ds.Len()),
	}
	if predictedPositive > 0 {
		m.Precision = float64(truePositive) / float64(predictedPositive)
	}
	if actualPositive > 0 {
		m.Recall = float64(truePositive) / float64(actualPositive)
	}
	return m, nil
}
