// Package simulator defines the contract between a campaign and the physical
// simulator it samples, plus the drivers that launch one.
//
// A Driver maps a parameter point to one scalar output. Every failure a
// driver reports to the campaign is a *Failure; Guard enforces that, and
// also rejects out-of-bounds points and non-finite outputs.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/dyluth/nroy/internal/design"
)

var (
	// ErrOutOfBounds marks a point that lies outside the parameter space.
	ErrOutOfBounds = errors.New("point outside parameter space")

	// ErrNonFinite marks a simulator output that is NaN or infinite.
	ErrNonFinite = errors.New("simulator returned a non-finite value")
)

// Driver runs the simulator at one point. runID is unique per attempt and
// names the run's output location.
type Driver interface {
	Run(ctx context.Context, point []float64, runID string) (float64, error)
}

// FuncDriver adapts a Go function to the Driver interface.
type FuncDriver func(ctx context.Context, point []float64, runID string) (float64, error)

// Run calls f.
func (f FuncDriver) Run(ctx context.Context, point []float64, runID string) (float64, error) {
	return f(ctx, point, runID)
}

// Failure is the error reported for a simulation that produced no usable
// value.
type Failure struct {
	RunID    string
	Point    []float64
	Reason   string
	ExitCode int
	Err      error
}

func (f *Failure) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "simulation %s failed: %s", f.RunID, f.Reason)
	if f.ExitCode != 0 {
		fmt.Fprintf(&b, " (exit code %d)", f.ExitCode)
	}
	if f.Err != nil {
		fmt.Fprintf(&b, ": %v", f.Err)
	}
	return b.String()
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// IsFailure reports whether err is or wraps a *Failure.
func IsFailure(err error) bool {
	var f *Failure
	return errors.As(err, &f)
}

// AsFailure extracts the *Failure from err.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// Guard wraps a Driver with the campaign's preconditions and
// postconditions: the point must lie inside the space, the output must be
// finite, and any error comes back as a *Failure.
type Guard struct {
	driver Driver
	space  design.ParameterSpace
}

// NewGuard wraps driver for points of space.
func NewGuard(driver Driver, space design.ParameterSpace) *Guard {
	return &Guard{driver: driver, space: space}
}

// Run implements Driver.
func (g *Guard) Run(ctx context.Context, point []float64, runID string) (float64, error) {
	if !g.space.Contains(point) {
		return 0, &Failure{
			RunID:    runID,
			Point:    point,
			Reason:   fmt.Sprintf("point %v rejected", point),
			ExitCode: -1,
			Err:      ErrOutOfBounds,
		}
	}

	value, err := g.driver.Run(ctx, point, runID)
	if err != nil {
		if IsFailure(err) {
			return 0, err
		}
		return 0, &Failure{
			RunID:    runID,
			Point:    point,
			Reason:   "driver error",
			ExitCode: -1,
			Err:      err,
		}
	}

	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, &Failure{
			RunID:  runID,
			Point:  point,
			Reason: fmt.Sprintf("output %g", value),
			Err:    ErrNonFinite,
		}
	}

	return value, nil
}
