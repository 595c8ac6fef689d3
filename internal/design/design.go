// Package design generates space-filling experimental designs.
//
// A Design pairs a ParameterSpace with an explicitly owned PCG generator.
// Sampling draws Latin hypercube batches: each dimension is cut into n equal
// strata, strata are assigned to samples by an independent random
// permutation per dimension, and one point is drawn uniformly inside each
// assigned stratum. The generator state is part of the Design's serialized
// form, so a design saved after the training phase and reloaded in another
// process continues the exact same random stream.
//
// A Design is not safe for concurrent use; Sample advances its generator.
package design

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"
)

// formatVersion is bumped whenever the JSON layout changes.
const formatVersion = 1

// streamConstant derives the PCG increment from the seed.
const streamConstant = 0x9e3779b97f4a7c15

// Design is a Latin hypercube design over a fixed parameter space.
type Design struct {
	space ParameterSpace
	seed  uint64
	src   *rand.PCG
	rng   *rand.Rand
}

// New creates a design over space. A zero seed selects a random seed, so two
// designs created with seed 0 produce unrelated samples; any other seed makes
// the sample sequence reproducible.
func New(space ParameterSpace, seed uint64) (*Design, error) {
	if err := space.Validate(); err != nil {
		return nil, err
	}

	if seed == 0 {
		seed = rand.Uint64() | 1
	}

	src := rand.NewPCG(seed, seed^streamConstant)
	return &Design{
		space: space.clone(),
		seed:  seed,
		src:   src,
		rng:   rand.New(src),
	}, nil
}

// Space returns a copy of the design's parameter space.
func (d *Design) Space() ParameterSpace {
	return d.space.clone()
}

// Dim returns the dimensionality of the design.
func (d *Design) Dim() int {
	return d.space.Dim()
}

// Seed returns the seed the generator was created with.
func (d *Design) Seed() uint64 {
	return d.seed
}

// Sample draws n points forming one Latin hypercube. Each call draws a fresh,
// independent hypercube over the same bounds.
func (d *Design) Sample(n int) ([][]float64, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSampleCount, n)
	}

	dim := d.space.Dim()
	points := make([][]float64, n)
	for i := range points {
		points[i] = make([]float64, dim)
	}

	for j, b := range d.space.Bounds {
		strata := d.rng.Perm(n)
		width := b.Width() / float64(n)
		for i := 0; i < n; i++ {
			points[i][j] = drawInStratum(b, strata[i], width, d.rng.Float64())
		}
	}

	return points, nil
}

// drawInStratum places u in [0, 1) inside stratum k of b. Rounding can push
// the result onto the next stratum's lower edge, so it is clamped below it.
func drawInStratum(b Bound, k int, width, u float64) float64 {
	v := b.Lower + (float64(k)+u)*width
	edge := math.Nextafter(b.Lower+float64(k+1)*width, b.Lower)
	return math.Min(v, math.Min(edge, b.Upper))
}

// Contains reports whether point lies inside the design's bounds.
func (d *Design) Contains(point []float64) bool {
	return d.space.Contains(point)
}

// Clone returns an independent copy that continues from the same generator
// state. Sampling the clone does not advance d.
func (d *Design) Clone() *Design {
	state, err := d.src.MarshalBinary()
	if err != nil {
		// PCG.MarshalBinary never fails.
		panic(fmt.Sprintf("design: marshal generator state: %v", err))
	}

	src := &rand.PCG{}
	if err := src.UnmarshalBinary(state); err != nil {
		panic(fmt.Sprintf("design: unmarshal generator state: %v", err))
	}

	return &Design{
		space: d.space.clone(),
		seed:  d.seed,
		src:   src,
		rng:   rand.New(src),
	}
}

// Reseed returns a design over the same space with a new generator. It is
// used to draw query batches that are reproducible independently of how far
// the training stream has advanced.
func (d *Design) Reseed(seed uint64) *Design {
	nd, err := New(d.space, seed)
	if err != nil {
		// d.space was validated when d was created.
		panic(fmt.Sprintf("design: reseed: %v", err))
	}
	return nd
}

type designJSON struct {
	Version int          `json:"version"`
	Bounds  [][2]float64 `json:"bounds"`
	Names   []string     `json:"names,omitempty"`
	Seed    uint64       `json:"seed"`
	State   []byte       `json:"state"`
}

// MarshalJSON encodes the bounds and the exact generator state.
func (d *Design) MarshalJSON() ([]byte, error) {
	state, err := d.src.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal generator state: %w", err)
	}

	bounds := make([][2]float64, len(d.space.Bounds))
	for i, b := range d.space.Bounds {
		bounds[i] = [2]float64{b.Lower, b.Upper}
	}

	return json.Marshal(designJSON{
		Version: formatVersion,
		Bounds:  bounds,
		Names:   d.space.Names,
		Seed:    d.seed,
		State:   state,
	})
}

// UnmarshalJSON restores a design written by MarshalJSON. The restored
// design produces the same samples the original would have produced next.
func (d *Design) UnmarshalJSON(data []byte) error {
	var raw designJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode design: %w", err)
	}

	if raw.Version != formatVersion {
		return fmt.Errorf("unsupported design format version %d (expected %d)", raw.Version, formatVersion)
	}

	space := ParameterSpace{Names: raw.Names}
	for _, b := range raw.Bounds {
		space.Bounds = append(space.Bounds, Bound{Lower: b[0], Upper: b[1]})
	}
	if err := space.Validate(); err != nil {
		return err
	}

	src := &rand.PCG{}
	if err := src.UnmarshalBinary(raw.State); err != nil {
		return fmt.Errorf("failed to restore generator state: %w", err)
	}

	d.space = space
	d.seed = raw.Seed
	d.src = src
	d.rng = rand.New(src)
	return nil
}
