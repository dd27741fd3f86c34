// Package plr implements the piecewise-linear model fitter: Builder fits a
// single segment's slope and intercept from a batch of (key, rank) pairs,
// and Fit segments a full restartable key stream into the minimal set of
// segments that keep every point within an error bound of the line.
package plr

import "lindex/pkg/kv"

// Model is a fitted linear predictor: predicted position = round(Slope*key + Intercept).
type Model struct {
	Slope     float64
	Intercept float64
}

// Predict returns the model's raw (unrounded) prediction for k.
func (m Model) Predict(k kv.Key) float64 {
	return m.Slope*float64(k) + m.Intercept
}

// PredictRounded returns the model's prediction rounded to the nearest slot.
func (m Model) PredictRounded(k kv.Key) int64 {
	p := m.Predict(k)
	if p < 0 {
		return int64(p - 0.5)
	}
	return int64(p + 0.5)
}

// Builder accumulates (key, rank) observations with Kahan-compensated
// summation and produces a single least-squares line, falling back to a
// min/max spline or a flat model when the input is degenerate. This mirrors
// the source's extended-precision LinearModelBuilder: Go has no long double,
// so each running sum is paired with a compensation term that recovers
// equivalent precision for the key magnitudes this index targets.
type Builder struct {
	count int64

	xSum, xSumC   float64 // compensated sum of x (key) and its Kahan correction
	ySum, ySumC   float64
	xxSum, xxSumC float64
	xySum, xySumC float64

	xMin, xMax float64
	yMin, yMax float64
}

// kahanAdd adds delta to sum, tracking the lost low-order bits in c.
func kahanAdd(sum, c, delta float64) (newSum, newC float64) {
	y := delta - c
	t := sum + y
	newC = (t - sum) - y
	return t, newC
}

// Add incorporates one (key, rank) observation.
func (b *Builder) Add(key kv.Key, rank int64) {
	x, y := float64(key), float64(rank)

	if b.count == 0 {
		b.xMin, b.xMax = x, x
		b.yMin, b.yMax = y, y
	} else {
		b.xMin, b.xMax = min(b.xMin, x), max(b.xMax, x)
		b.yMin, b.yMax = min(b.yMin, y), max(b.yMax, y)
	}

	b.xSum, b.xSumC = kahanAdd(b.xSum, b.xSumC, x)
	b.ySum, b.ySumC = kahanAdd(b.ySum, b.ySumC, y)
	b.xxSum, b.xxSumC = kahanAdd(b.xxSum, b.xxSumC, x*x)
	b.xySum, b.xySumC = kahanAdd(b.xySum, b.xySumC, x*y)
	b.count++
}

// Count reports the number of observations added so far.
func (b *Builder) Count() int64 { return b.count }

// Build closes the accumulation and returns the fitted model. With zero
// observations it reports the PLR contract's kDegenerate failure; with one
// observation, or a vertical/constant-x input, it falls back to a flat
// model at the mean rank (the source's degenerate branch); if the
// least-squares slope comes out non-positive purely from floating-point
// error on a genuinely increasing sequence, it falls back to the min/max
// spline slope, the same second-chance fallback the source applies.
func (b *Builder) Build() (Model, error) {
	if b.count == 0 {
		return Model{}, ErrDegenerate
	}
	if b.count == 1 {
		return Model{Slope: 0, Intercept: b.ySum}, nil
	}

	n := float64(b.count)
	denom := n*b.xxSum - b.xSum*b.xSum
	if denom == 0 {
		return Model{Slope: 0, Intercept: b.ySum / n}, nil
	}

	slope := (n*b.xySum - b.xSum*b.ySum) / denom
	intercept := (b.ySum - slope*b.xSum) / n

	if slope <= 0 && b.xMax > b.xMin {
		slope = (b.yMax - b.yMin) / (b.xMax - b.xMin)
		intercept = b.yMin - slope*b.xMin
	}

	return Model{Slope: slope, Intercept: intercept}, nil
}

// Reset clears the builder for reuse, avoiding an allocation per refit.
func (b *Builder) Reset() { *b = Builder{} }
