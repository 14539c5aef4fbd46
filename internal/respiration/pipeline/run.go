package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/banshee-data/breath.report/internal/respiration/frames"
)

// Source supplies frames in order. Next returns io.EOF at end of stream.
type Source interface {
	Next(ctx context.Context) (frames.Frame, error)
}

// ROI returns the region the session was seeded from.
func (s *Session) ROI() frames.Rect { return s.roi }

// Run drives a session over src: the first frame seeds it, every later
// frame is stepped. End of stream, context cancellation and MaxFrames all
// stop the loop the same way. Finalize always runs exactly once before
// Run returns, so the renderer sees a report even when the session fails.
// The returned error is the session failure, if any.
func (s *Session) Run(ctx context.Context, src Source, roi frames.Rect) (Report, error) {
	if err := s.run(ctx, src, roi); err != nil && s.err == nil {
		s.fail(err)
	}
	s.Finalize()
	rep, _ := s.Report()
	return rep, s.err
}

func (s *Session) run(ctx context.Context, src Source, roi frames.Rect) error {
	seed, err := src.Next(ctx)
	if err != nil {
		if errors.Is(err, io.EOF) || ctx.Err() != nil {
			return fmt.Errorf("%w: %w", ErrPrecondition, ErrNoFrames)
		}
		return fmt.Errorf("%w: read seed frame: %w", ErrPrecondition, err)
	}
	if err := s.Start(seed, roi); err != nil {
		return err
	}

	for {
		if ctx.Err() != nil {
			logf("session %s stopped: %v", s.id, ctx.Err())
			return nil
		}
		if s.cfg.MaxFrames > 0 && s.stats.Frames >= s.cfg.MaxFrames {
			return nil
		}
		frame, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if ctx.Err() != nil {
				logf("session %s stopped: %v", s.id, ctx.Err())
				return nil
			}
			return fmt.Errorf("%w: read frame %d: %w", ErrTracking, s.stats.Frames+1, err)
		}
		if out := s.Step(frame); out.Fatal() {
			return out.Reason
		}
	}
}
