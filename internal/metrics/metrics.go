// Package metrics computes per-image and running accuracy statistics for
// predicted coin counts.
//
// The running statistics are plain sums, so they can be maintained
// incrementally by an Aggregator in a sequential loop, or reduced from
// independent per-image Samples with Reduce and Combine when images are
// processed in parallel. Both paths produce identical results.
package metrics

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrDivisionUndefined is returned when the true value is zero and a
	// relative error cannot be expressed as a percentage.
	ErrDivisionUndefined = errors.New("relative error undefined for a true value of zero")

	// ErrNoData is returned when averages are requested before any image
	// contributed to the running statistics.
	ErrNoData = errors.New("no images processed")
)

// RelativeError returns |trueValue - estimatedValue| / trueValue × 100.
func RelativeError(trueValue, estimatedValue int) (float64, error) {
	if trueValue == 0 {
		return 0, fmt.Errorf("%w (estimated %d)", ErrDivisionUndefined, estimatedValue)
	}
	diff := math.Abs(float64(trueValue - estimatedValue))
	return diff / math.Abs(float64(trueValue)) * 100, nil
}

// Sample is the error contribution of a single image.
type Sample struct {
	TrueValue      int     `json:"true_value"`
	EstimatedValue int     `json:"estimated_value"`
	RelativeError  float64 `json:"relative_error"`
	SquaredError   float64 `json:"squared_error"`
}

// NewSample computes the relative and squared error of one prediction.
func NewSample(trueValue, estimatedValue int) (Sample, error) {
	rel, err := RelativeError(trueValue, estimatedValue)
	if err != nil {
		return Sample{}, err
	}
	diff := float64(trueValue - estimatedValue)
	return Sample{
		TrueValue:      trueValue,
		EstimatedValue: estimatedValue,
		RelativeError:  rel,
		SquaredError:   diff * diff,
	}, nil
}

// RunningMetrics holds the sums over all images processed so far.
type RunningMetrics struct {
	SumRelativeError float64 `json:"sum_relative_error"`
	SumSquaredError  float64 `json:"sum_squared_error"`
	ImagesProcessed  int     `json:"images_processed"`
}

// MeanSquaredError returns SumSquaredError / ImagesProcessed.
func (m RunningMetrics) MeanSquaredError() (float64, error) {
	if m.ImagesProcessed == 0 {
		return 0, ErrNoData
	}
	return m.SumSquaredError / float64(m.ImagesProcessed), nil
}

// AverageRelativeError returns SumRelativeError / ImagesProcessed, in percent.
func (m RunningMetrics) AverageRelativeError() (float64, error) {
	if m.ImagesProcessed == 0 {
		return 0, ErrNoData
	}
	return m.SumRelativeError / float64(m.ImagesProcessed), nil
}

// Combine returns the element-wise sum of two running totals.
func Combine(a, b RunningMetrics) RunningMetrics {
	return RunningMetrics{
		SumRelativeError: a.SumRelativeError + b.SumRelativeError,
		SumSquaredError:  a.SumSquaredError + b.SumSquaredError,
		ImagesProcessed:  a.ImagesProcessed + b.ImagesProcessed,
	}
}

// Reduce folds independent samples into running totals.
func Reduce(samples ...Sample) RunningMetrics {
	var m RunningMetrics
	for _, s := range samples {
		m = Combine(m, RunningMetrics{
			SumRelativeError: s.RelativeError,
			SumSquaredError:  s.SquaredError,
			ImagesProcessed:  1,
		})
	}
	return m
}

// Aggregator accumulates samples from a sequential batch loop.
//
// The zero value is ready to use. An Aggregator is not safe for concurrent use;
// parallel callers should collect Samples and use Reduce instead.
type Aggregator struct {
	running RunningMetrics
}

// Accumulate records one (true, estimated) pair and returns its sample.
//
// If the relative error is undefined the running totals are left untouched and
// an error wrapping ErrDivisionUndefined is returned, so a rejected image never
// corrupts the statistics of images already processed.
func (a *Aggregator) Accumulate(trueValue, estimatedValue int) (Sample, error) {
	s, err := NewSample(trueValue, estimatedValue)
	if err != nil {
		return Sample{}, err
	}
	a.Add(s)
	return s, nil
}

// Add records a precomputed sample.
func (a *Aggregator) Add(s Sample) {
	a.running = Combine(a.running, Reduce(s))
}

// MeanSquaredError over all images accumulated so far.
func (a *Aggregator) MeanSquaredError() (float64, error) {
	return a.running.MeanSquaredError()
}

// AverageRelativeError over all images accumulated so far, in percent.
func (a *Aggregator) AverageRelativeError() (float64, error) {
	return a.running.AverageRelativeError()
}

// ImagesProcessed returns how many samples were accumulated.
func (a *Aggregator) ImagesProcessed() int {
	return a.running.ImagesProcessed
}

// Snapshot returns a copy of the running totals.
func (a *Aggregator) Snapshot() RunningMetrics {
	return a.running
}
