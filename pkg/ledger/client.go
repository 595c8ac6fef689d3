package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dyluth/nroy/internal/design"
	"github.com/dyluth/nroy/internal/storage"
)

// ErrAlreadyRecorded is returned when an observation for the same sample
// index already exists.
var ErrAlreadyRecorded = errors.New("ledger: observation already recorded")

// Ledger provides campaign-scoped access to a store.
// All keys are namespaced with the campaign name. A Ledger is safe for
// concurrent use when its store is.
type Ledger struct {
	store    storage.Store
	campaign string
	now      func() time.Time
}

// New creates a ledger for campaign. Returns an error if campaign is empty.
func New(store storage.Store, campaign string) (*Ledger, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if campaign == "" {
		return nil, fmt.Errorf("campaign name cannot be empty")
	}
	return &Ledger{store: store, campaign: campaign, now: time.Now}, nil
}

// Campaign returns the campaign name.
func (l *Ledger) Campaign() string {
	return l.campaign
}

// Ping verifies the underlying store is reachable. Used by health checks.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.store.Ping(ctx)
}

// SaveDesign persists d including its generator state, replacing any
// previous design.
func (l *Ledger) SaveDesign(ctx context.Context, d *design.Design) error {
	data, err := encode(d)
	if err != nil {
		return err
	}
	return l.store.Put(ctx, DesignKey(l.campaign), data)
}

// LoadDesign restores the persisted design. Returns storage.ErrNotFound
// (check with IsNotFound) when no design has been saved.
func (l *Ledger) LoadDesign(ctx context.Context) (*design.Design, error) {
	data, err := l.store.Get(ctx, DesignKey(l.campaign))
	if err != nil {
		return nil, err
	}
	d := &design.Design{}
	if err := decode(data, d); err != nil {
		return nil, err
	}
	return d, nil
}

// SaveTrainingPoints persists the training points drawn from the design.
func (l *Ledger) SaveTrainingPoints(ctx context.Context, points [][]float64) error {
	data, err := encode(points)
	if err != nil {
		return err
	}
	return l.store.Put(ctx, TrainingPointsKey(l.campaign), data)
}

// LoadTrainingPoints returns the training points in sample-index order.
func (l *Ledger) LoadTrainingPoints(ctx context.Context) ([][]float64, error) {
	data, err := l.store.Get(ctx, TrainingPointsKey(l.campaign))
	if err != nil {
		return nil, err
	}
	var points [][]float64
	if err := decode(data, &points); err != nil {
		return nil, err
	}
	return points, nil
}

// RecordObservation stores an observation. It never overwrites: a second
// observation for the same index fails with ErrAlreadyRecorded.
func (l *Ledger) RecordObservation(ctx context.Context, o *Observation) error {
	if err := o.Validate(); err != nil {
		return fmt.Errorf("invalid observation: %w", err)
	}
	if o.CreatedAtMs == 0 {
		o.CreatedAtMs = l.now().UnixMilli()
	}

	data, err := encode(o)
	if err != nil {
		return err
	}

	if err := l.store.Create(ctx, ObservationKey(l.campaign, o.Index), data); err != nil {
		if errors.Is(err, storage.ErrExists) {
			return fmt.Errorf("%w: index %d", ErrAlreadyRecorded, o.Index)
		}
		return fmt.Errorf("failed to record observation %d: %w", o.Index, err)
	}

	// A successful observation supersedes an earlier failure.
	if err := l.store.Delete(ctx, FailureKey(l.campaign, o.Index)); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("failed to clear failure %d: %w", o.Index, err)
	}
	return nil
}

// Observations returns every recorded observation sorted by index.
func (l *Ledger) Observations(ctx context.Context) ([]*Observation, error) {
	var out []*Observation
	err := l.each(ctx, ObservationPrefix(l.campaign), func(data []byte) error {
		o := &Observation{}
		if err := decode(data, o); err != nil {
			return err
		}
		out = append(out, o)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

// RecordFailure stores or replaces the failure record of a sample index.
func (l *Ledger) RecordFailure(ctx context.Context, f *Failure) error {
	if err := f.Validate(); err != nil {
		return fmt.Errorf("invalid failure: %w", err)
	}
	if f.CreatedAtMs == 0 {
		f.CreatedAtMs = l.now().UnixMilli()
	}

	data, err := encode(f)
	if err != nil {
		return err
	}
	return l.store.Put(ctx, FailureKey(l.campaign, f.Index), data)
}

// Failures returns every failure record sorted by index.
func (l *Ledger) Failures(ctx context.Context) ([]*Failure, error) {
	var out []*Failure
	err := l.each(ctx, FailurePrefix(l.campaign), func(data []byte) error {
		f := &Failure{}
		if err := decode(data, f); err != nil {
			return err
		}
		out = append(out, f)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

// ClearFailures deletes every failure record so the points are retried.
// Returns the number of records removed.
func (l *Ledger) ClearFailures(ctx context.Context) (int, error) {
	keys, err := l.store.List(ctx, FailurePrefix(l.campaign))
	if err != nil {
		return 0, err
	}
	for _, k := range keys {
		if err := l.store.Delete(ctx, k); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return 0, fmt.Errorf("failed to delete %s: %w", k, err)
		}
	}
	return len(keys), nil
}

// TrainingSet assembles the recorded observations into parallel arrays
// sorted by sample index.
func (l *Ledger) TrainingSet(ctx context.Context) (*TrainingSet, error) {
	obs, err := l.Observations(ctx)
	if err != nil {
		return nil, err
	}

	ts := &TrainingSet{
		Indices: make([]int, 0, len(obs)),
		Inputs:  make([][]float64, 0, len(obs)),
		Outputs: make([]float64, 0, len(obs)),
	}
	for _, o := range obs {
		ts.Indices = append(ts.Indices, o.Index)
		ts.Inputs = append(ts.Inputs, o.Point)
		ts.Outputs = append(ts.Outputs, o.Value)
	}
	return ts, nil
}

// SaveReference stores the simulated reference observation.
func (l *Ledger) SaveReference(ctx context.Context, o *Observation) error {
	if err := o.Validate(); err != nil {
		return fmt.Errorf("invalid reference observation: %w", err)
	}
	data, err := encode(o)
	if err != nil {
		return err
	}
	return l.store.Put(ctx, ReferenceKey(l.campaign), data)
}

// LoadReference returns the simulated reference observation.
func (l *Ledger) LoadReference(ctx context.Context) (*Observation, error) {
	data, err := l.store.Get(ctx, ReferenceKey(l.campaign))
	if err != nil {
		return nil, err
	}
	o := &Observation{}
	if err := decode(data, o); err != nil {
		return nil, err
	}
	return o, nil
}

// SaveReport stores r as the campaign's latest report.
func (l *Ledger) SaveReport(ctx context.Context, r *Report) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("invalid report: %w", err)
	}
	if r.CreatedAtMs == 0 {
		r.CreatedAtMs = l.now().UnixMilli()
	}
	data, err := encode(r)
	if err != nil {
		return err
	}
	return l.store.Put(ctx, ReportKey(l.campaign), data)
}

// LoadReport returns the latest report.
func (l *Ledger) LoadReport(ctx context.Context) (*Report, error) {
	data, err := l.store.Get(ctx, ReportKey(l.campaign))
	if err != nil {
		return nil, err
	}
	r := &Report{}
	if err := decode(data, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Reset deletes every key of the campaign. Returns the number removed.
func (l *Ledger) Reset(ctx context.Context) (int, error) {
	keys, err := l.store.List(ctx, CampaignPrefix(l.campaign))
	if err != nil {
		return 0, err
	}
	for _, k := range keys {
		if err := l.store.Delete(ctx, k); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return 0, fmt.Errorf("failed to delete %s: %w", k, err)
		}
	}
	return len(keys), nil
}

func (l *Ledger) each(ctx context.Context, prefix string, fn func([]byte) error) error {
	keys, err := l.store.List(ctx, prefix)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if _, err := ParseIndex(k, prefix); err != nil {
			continue
		}
		data, err := l.store.Get(ctx, k)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return err
		}
		if err := fn(data); err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
	}
	return nil
}

// IsNotFound reports whether err means the requested record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}
