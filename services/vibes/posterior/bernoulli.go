// Copyright (C) 2025 Vibes Labs (oss@vibeslabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package posterior holds the built-in build functions handed to the
// compute cache by the HTTP layer.
//
// The materialization layer treats a build function as opaque; this
// package is just the reference collaborator. FitBernoulli computes the
// conjugate Beta posterior for a Bernoulli success rate, which needs no
// MCMC: with a uniform prior, s successes and f failures give
// Beta(1+s, 1+f) exactly. Output is deterministic for a fixed input, as
// the cache contract assumes, because the sampler is seeded from the data.
package posterior

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/vibesml/vibes/services/vibes/datatypes"
	"github.com/vibesml/vibes/services/vibes/faults"
)

// OutcomeColumn is the column a Bernoulli experiment stores trials in.
const OutcomeColumn = "outcome"

const (
	sampleCount = 4000
	curvePoints = 100
)

// FitBernoulli is a fitcache.BuildFunc producing a serialized
// PosteriorSummary for the success probability of a Bernoulli experiment.
func FitBernoulli(ctx context.Context, dataset datatypes.Table) (datatypes.Artifact, error) {
	col := dataset.ColumnIndex(OutcomeColumn)
	if col < 0 {
		return nil, fmt.Errorf("%w: dataset has no %q column", faults.ErrInvalidData, OutcomeColumn)
	}

	var successes, failures int
	for i, row := range dataset.Rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ok, err := asOutcome(row[col])
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", faults.ErrInvalidData, i, err)
		}
		if ok {
			successes++
		} else {
			failures++
		}
	}

	alpha := float64(1 + successes)
	beta := float64(1 + failures)

	// Seeding from the counts keeps output a pure function of the data.
	rng := rand.New(rand.NewSource(int64(successes)<<32 | int64(failures)))
	samples := make([]float64, sampleCount)
	for i := range samples {
		x := sampleGamma(rng, alpha)
		y := sampleGamma(rng, beta)
		samples[i] = x / (x + y)
	}
	sort.Float64s(samples)

	summary := datatypes.PosteriorSummary{
		Stats: map[string]float64{
			"mean":    alpha / (alpha + beta),
			"sd":      stddev(samples),
			"hdi_3%":  quantile(samples, 0.03),
			"hdi_97%": quantile(samples, 0.97),
		},
		Curve: betaCurve(alpha, beta),
	}
	return datatypes.MarshalArtifact(summary)
}

func asOutcome(v any) (bool, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case float64:
		if val == 0 || val == 1 {
			return val == 1, nil
		}
	case int64:
		if val == 0 || val == 1 {
			return val == 1, nil
		}
	case int:
		if val == 0 || val == 1 {
			return val == 1, nil
		}
	}
	return false, fmt.Errorf("outcome %v is not a boolean or 0/1", v)
}

// sampleGamma draws from Gamma(alpha, 1) with the Marsaglia-Tsang
// squeeze method. alpha >= 1 always holds here (uniform prior).
func sampleGamma(rng *rand.Rand, alpha float64) float64 {
	d := alpha - 1.0/3.0
	c := 1.0 / math.Sqrt(9.0*d)
	for {
		x := rng.NormFloat64()
		v := 1.0 + c*x
		if v <= 0 {
			continue
		}
		v = v * v * v
		u := rng.Float64()
		if u < 1.0-0.0331*x*x*x*x {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1.0-v+math.Log(v)) {
			return d * v
		}
	}
}

func stddev(samples []float64) float64 {
	var sum float64
	for _, s := range samples {
		sum += s
	}
	mean := sum / float64(len(samples))
	var ss float64
	for _, s := range samples {
		ss += (s - mean) * (s - mean)
	}
	return math.Sqrt(ss / float64(len(samples)-1))
}

// quantile interpolates over sorted samples.
func quantile(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// betaCurve evaluates the Beta(alpha, beta) density on a uniform grid
// over (0, 1) for plotting.
func betaCurve(alpha, beta float64) datatypes.PosteriorCurve {
	lgA, _ := math.Lgamma(alpha)
	lgB, _ := math.Lgamma(beta)
	lgAB, _ := math.Lgamma(alpha + beta)
	logNorm := lgAB - lgA - lgB

	curve := datatypes.PosteriorCurve{
		X: make([]float64, curvePoints),
		Y: make([]float64, curvePoints),
	}
	for i := 0; i < curvePoints; i++ {
		x := (float64(i) + 0.5) / curvePoints
		curve.X[i] = x
		curve.Y[i] = math.Exp(logNorm + (alpha-1)*math.Log(x) + (beta-1)*math.Log(1-x))
	}
	return curve
}
