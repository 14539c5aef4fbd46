// Package flow tracks sparse points between consecutive grayscale
// frames with pyramidal iterative Lucas-Kanade optical flow.
//
// The default build uses a pure Go implementation on top of
// frames.Plane and gonum. Building with -tags=gocv adds
// NewOpenCVTracker, which delegates to OpenCV through gocv with the
// same configuration.
//
// Output point sets and validity masks are always the same length as
// the input point set and index-aligned with it; invalid points keep
// their previous coordinate.
package flow
