// Package pipeline orchestrates one respiration measurement session.
//
// A Session seeds tracking points from the first frame, then for every
// later frame tracks the points, aggregates their vertical motion into a
// single displacement sample and hands a snapshot to the renderer. When
// the stream ends or the caller stops, Finalize runs the spectral
// estimator exactly once over the accumulated history.
//
// The pipeline owns no domain logic. Selection, tracking, aggregation and
// estimation live in the features, flow, signal and spectrum packages.
package pipeline
