// Package frames owns the image and geometry model shared by the
// respiration pipeline.
//
// Responsibilities: grayscale frames, full-frame point coordinates,
// index-aligned point sets and validity masks, regions of interest,
// and the float planes / Gaussian pyramids the feature selector and
// point tracker operate on.
// Key types: Frame, Point, PointSet, ValidityMask, Rect, Plane.
//
// Dependency rule: frames depends on nothing else in internal/respiration.
package frames
