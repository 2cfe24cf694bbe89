package indicators

import (
	"errors"
	"math"
)

var (
	// ErrInsufficientData is returned by calculators that refuse short input.
	ErrInsufficientData = errors.New("insufficient data for indicator period")
	// ErrUnknownIndicator is returned by Compute for an unregistered kind.
	ErrUnknownIndicator = errors.New("unknown indicator")
	// ErrInvalidConfig is returned for out-of-range indicator options.
	ErrInvalidConfig = errors.New("invalid indicator config")
)

// Series is index-aligned with the bars it was computed from.
// Entries without a value hold NaN; use IsAbsent to test them.
type Series []float64

// Flags marks per-bar events such as crossovers.
type Flags []bool

// Absent is the placeholder for a missing series value.
var Absent = math.NaN()

// IsAbsent reports whether v carries no value.
func IsAbsent(v float64) bool {
	return math.IsNaN(v)
}

// NewSeries returns an all-absent series of length n.
func NewSeries(n int) Series {
	s := make(Series, n)
	for i := range s {
		s[i] = Absent
	}
	return s
}

// At returns the value at i, or Absent when i is out of range.
func (s Series) At(i int) float64 {
	if i < 0 || i >= len(s) {
		return Absent
	}
	return s[i]
}

// Valid reports whether index i holds a value.
func (s Series) Valid(i int) bool {
	return !IsAbsent(s.At(i))
}

// FirstValid returns the index of the first value, or -1.
func (s Series) FirstValid() int {
	for i, v := range s {
		if !IsAbsent(v) {
			return i
		}
	}
	return -1
}

// At returns the flag at i; out of range is false.
func (f Flags) At(i int) bool {
	if i < 0 || i >= len(f) {
		return false
	}
	return f[i]
}

// Round rounds v to n decimal places, keeping absent values absent.
func Round(v float64, n int) float64 {
	if IsAbsent(v) || math.IsInf(v, 0) {
		return v
	}
	p := math.Pow(10, float64(n))
	return math.Round(v*p) / p
}

// allValid reports whether every value is present.
func allValid(vs ...float64) bool {
	for _, v := range vs {
		if IsAbsent(v) {
			return false
		}
	}
	return true
}
