// Package ledger provides typed persistence for the state of a history
// matching campaign on top of a storage.Store.
//
// # Overview
//
// A campaign moves through three stages that may run in separate processes:
// the design stage draws training points, the simulate stage records one
// observation (or failure) per point, and the analyse stage fits an emulator
// and writes a report. The ledger is the shared record between them. Every
// stage reads what the previous one wrote, so any stage can be rerun or
// resumed.
//
// # Immutability
//
// Observations are append-only: RecordObservation refuses to overwrite an
// existing index and returns ErrAlreadyRecorded. Failures may be cleared so
// that a later simulate stage retries the point.
//
// # Key Schema
//
// All keys are namespaced by campaign name so several campaigns can share one
// store:
//
//	nroy:{campaign}:design              Design with its generator state
//	nroy:{campaign}:training_points     the drawn training points
//	nroy:{campaign}:observation:{index} one Observation per successful run
//	nroy:{campaign}:failure:{index}     one Failure per exhausted point
//	nroy:{campaign}:reference           the simulated reference observation
//	nroy:{campaign}:report              the latest Report
//
// Values are JSON documents.
//
// # Usage Example
//
//	store := storage.NewMemoryStore()
//	l, err := ledger.New(store, "fault-stress")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	err = l.RecordObservation(ctx, &ledger.Observation{
//		Index:    0,
//		Point:    []float64{-100, 0.25, 1.0},
//		Value:    4.2,
//		RunID:    "sample_point_0",
//		Attempts: 1,
//	})
package ledger
