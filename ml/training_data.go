package ml

import (
	"errors"
	"math"
	"math/rand"
)

// GenerateSynthetic draws n uniformly random patients with random labels.
// The same seed always yields the same dataset.
func GenerateSynthetic(n int, seed int64) (Dataset, error) {
	if n <= 0 {
		return Dataset{}, errors.New("n must be positive")
	}
	rnd := rand.New(rand.NewSource(seed))
	uniform := func(lo, hi float64) float64 {
		return lo + rnd.Float64()*(hi-lo)
	}

	ds := Dataset{
		Observations: make([]Observation, n),
		Labels:       make([]int, n),
	}
	for i := 0; i < n; i++ {
		famhist := FamHistAbsent
		if rnd.Intn(2) == 0 {
			famhist = FamHistPresent
		}
		ds.Observations[i] = Observation{
			SBP:       uniform(100, 200),
			LDL:       uniform(2, 8),
			Adiposity: uniform(15, 40),
			Obesity:   uniform(20, 40),
			Age:       30 + rnd.Intn(40),
			FamHist:   famhist,
		}
		ds.Labels[i] = rnd.Intn(2)
	}
	return ds, nil
}

// SplitDataset shuffles with a seeded permutation and holds out testRatio of
// the rows. A ratio of zero keeps every row for training.
func SplitDataset(ds Dataset, testRatio float64, seed int64) (train, test Dataset) {
	if testRatio <= 0 || testRatio >= 1 {
		return ds, Dataset{}
	}
	rnd := rand.New(rand.NewSource(seed))
	indices := rnd.Perm(ds.Len())

	split := int(math.Round(float64(ds.Len()) * (1 - testRatio)))
	for i, idx := range indices {
		if i < split {
			train.Observations = append(train.Observations, ds.Observations[idx])
			train.Labels = append(train.Labels, ds.Labels[idx])
		} else {
			test.Observations = append(test.Observations, ds.Observations[idx])
			test.Labels = append(test.Labels, ds.Labels[idx])
		}
	}
	return train, test
}
