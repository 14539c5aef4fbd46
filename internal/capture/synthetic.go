package capture

import (
	"context"
	"io"
	"math"
	"math/rand/v2"
	"time"

	"github.com/banshee-data/breath.report/internal/respiration/frames"
	"github.com/banshee-data/breath.report/internal/timeutil"
)

// SyntheticConfig describes a generated scene: a static textured
// background with a horizontal band (the abdomen) whose texture moves
// vertically by AmplitudePx * sin(2 pi BreathHz t).
type SyntheticConfig struct {
	Width, Height int
	RateHz        float64 // frame rate
	BreathHz      float64
	AmplitudePx   float64
	BandTop       int // first row of the moving band
	BandBottom    int // one past the last row
	Frames        int // 0 means endless

	NoiseStdDev float64 // additive gaussian noise in intensity units
	Seed        uint64

	// Realtime paces Next at RateHz using Clock.
	Realtime bool
	Clock    timeutil.Clock
}

// DefaultSyntheticConfig is ten seconds of 18 breaths per minute at 30 fps.
func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		Width:       160,
		Height:      120,
		RateHz:      30,
		BreathHz:    0.3,
		AmplitudePx: 1.5,
		BandTop:     30,
		BandBottom:  100,
		Frames:      300,
	}
}

// ROI returns a region inside the moving band with room for the tracking
// window on every side.
func (c SyntheticConfig) ROI() frames.Rect {
	margin := 10
	return frames.Rect{
		X:      c.Width / 4,
		Y:      c.BandTop + margin,
		Width:  c.Width / 2,
		Height: max(c.BandBottom-c.BandTop-2*margin, 1),
	}
}

// SyntheticSource renders SyntheticConfig frames on demand.
type SyntheticSource struct {
	cfg   SyntheticConfig
	rng   *rand.Rand
	index int
}

// NewSyntheticSource fills unset fields from DefaultSyntheticConfig.
func NewSyntheticSource(cfg SyntheticConfig) *SyntheticSource {
	def := DefaultSyntheticConfig()
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = def.Width, def.Height
	}
	if cfg.RateHz <= 0 {
		cfg.RateHz = def.RateHz
	}
	if cfg.BandBottom <= cfg.BandTop {
		cfg.BandTop, cfg.BandBottom = cfg.Height/4, cfg.Height*5/6
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	return &SyntheticSource{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
	}
}

// Config returns the effective configuration.
func (s *SyntheticSource) Config() SyntheticConfig { return s.cfg }

// Offset returns the band displacement in pixels at frame i.
func (s *SyntheticSource) Offset(i int) float64 {
	t := float64(i) / s.cfg.RateHz
	return s.cfg.AmplitudePx * math.Sin(2*math.Pi*s.cfg.BreathHz*t)
}

// Next renders the next frame.
func (s *SyntheticSource) Next(ctx context.Context) (frames.Frame, error) {
	if err := ctx.Err(); err != nil {
		return frames.Frame{}, err
	}
	if s.cfg.Frames > 0 && s.index >= s.cfg.Frames {
		return frames.Frame{}, io.EOF
	}
	if s.cfg.Realtime && s.index > 0 {
		s.cfg.Clock.Sleep(time.Duration(float64(time.Second) / s.cfg.RateHz))
	}
	f := s.render(s.Offset(s.index))
	s.index++
	return f, nil
}

// Close is a no-op.
func (s *SyntheticSource) Close() error { return nil }

func (s *SyntheticSource) render(dy float64) frames.Frame {
	w, h := s.cfg.Width, s.cfg.Height
	f := frames.Frame{Width: w, Height: h, Pix: make([]uint8, w*h)}
	for y := 0; y < h; y++ {
		shift := 0.0
		if y >= s.cfg.BandTop && y < s.cfg.BandBottom {
			shift = dy
		}
		for x := 0; x < w; x++ {
			v := sceneTexture(float64(x), float64(y)-shift)
			if s.cfg.NoiseStdDev > 0 {
				v += s.rng.NormFloat64() * s.cfg.NoiseStdDev
			}
			f.Pix[y*w+x] = uint8(math.Max(0, math.Min(255, math.Round(v))))
		}
	}
	return f
}

// sceneTexture is smooth enough for sub-pixel tracking and has plenty of
// two-dimensional structure for corner selection.
func sceneTexture(x, y float64) float64 {
	return 90 + 35*math.Sin(x/5)*math.Cos(y/7) + 25*math.Sin((x+y)/9) + 15*math.Cos((x-2*y)/11)
}
