package design

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidDimension is returned when a parameter space is empty or a
	// bound pair is not strictly increasing.
	ErrInvalidDimension = errors.New("design: invalid parameter space dimension")

	// ErrInvalidSampleCount is returned when a sample of n <= 0 points is requested.
	ErrInvalidSampleCount = errors.New("design: sample count must be positive")
)

// Bound is the closed interval [Lower, Upper] of one uncertain parameter.
type Bound struct {
	Lower float64 `json:"lower" yaml:"lower"`
	Upper float64 `json:"upper" yaml:"upper"`
}

// Width returns Upper - Lower.
func (b Bound) Width() float64 {
	return b.Upper - b.Lower
}

// ParameterSpace is the ordered list of bounds of a campaign's uncertain
// parameters. Names is optional; when set it labels each dimension.
type ParameterSpace struct {
	Bounds []Bound
	Names  []string
}

// NewParameterSpace builds and validates a space from bound pairs.
func NewParameterSpace(bounds ...Bound) (ParameterSpace, error) {
	space := ParameterSpace{Bounds: append([]Bound(nil), bounds...)}
	if err := space.Validate(); err != nil {
		return ParameterSpace{}, err
	}
	return space, nil
}

// Dim returns the number of uncertain parameters.
func (s ParameterSpace) Dim() int {
	return len(s.Bounds)
}

// Validate checks that the space is non-empty and every bound pair satisfies
// lower < upper with finite values.
func (s ParameterSpace) Validate() error {
	if len(s.Bounds) == 0 {
		return fmt.Errorf("%w: parameter space is empty", ErrInvalidDimension)
	}

	for i, b := range s.Bounds {
		if math.IsNaN(b.Lower) || math.IsNaN(b.Upper) || math.IsInf(b.Lower, 0) || math.IsInf(b.Upper, 0) {
			return fmt.Errorf("%w: dimension %d has non-finite bounds (%g, %g)", ErrInvalidDimension, i, b.Lower, b.Upper)
		}
		if b.Lower >= b.Upper {
			return fmt.Errorf("%w: dimension %d has lower %g >= upper %g", ErrInvalidDimension, i, b.Lower, b.Upper)
		}
	}

	if len(s.Names) != 0 && len(s.Names) != len(s.Bounds) {
		return fmt.Errorf("%w: %d names for %d dimensions", ErrInvalidDimension, len(s.Names), len(s.Bounds))
	}

	return nil
}

// Contains reports whether point has the space's dimensionality and lies
// inside every bound (inclusive).
func (s ParameterSpace) Contains(point []float64) bool {
	if len(point) != len(s.Bounds) {
		return false
	}
	for i, b := range s.Bounds {
		if !(point[i] >= b.Lower && point[i] <= b.Upper) {
			return false
		}
	}
	return true
}

// Name returns the label of dimension i, falling back to "x{i}".
func (s ParameterSpace) Name(i int) string {
	if i < len(s.Names) && s.Names[i] != "" {
		return s.Names[i]
	}
	return fmt.Sprintf("x%d", i)
}

// Named maps a point to its parameter names. Used when handing a point to a
// simulator that expects named inputs.
func (s ParameterSpace) Named(point []float64) map[string]float64 {
	named := make(map[string]float64, len(point))
	for i, v := range point {
		named[s.Name(i)] = v
	}
	return named
}

func (s ParameterSpace) clone() ParameterSpace {
	return ParameterSpace{
		Bounds: append([]Bound(nil), s.Bounds...),
		Names:  append([]string(nil), s.Names...),
	}
}
