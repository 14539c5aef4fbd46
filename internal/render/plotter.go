// Package render turns session updates into artefacts an operator can
// read: PNG plots on disk and a console summary.
package render

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/banshee-data/breath.report/internal/monitoring"
	"github.com/banshee-data/breath.report/internal/respiration/pipeline"
	"github.com/banshee-data/breath.report/internal/respiration/signal"
	"github.com/banshee-data/breath.report/internal/respiration/spectrum"
	"github.com/banshee-data/breath.report/internal/security"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var logf = monitoring.Component("render")

const (
	DisplacementFile = "displacement.png"
	SpectrumFile     = "spectrum.png"
	LiveFile         = "displacement_live.png"
	MotionFile       = "motion_live.png"
)

// motionGain stretches point motion so sub-pixel vectors are visible.
const motionGain = 20

var (
	traceColor    = color.RGBA{R: 0, G: 160, B: 60, A: 255}
	spectrumColor = color.RGBA{R: 128, G: 0, B: 128, A: 255}
	peakColor     = color.RGBA{R: 0, G: 0, B: 220, A: 255}
	pointColor    = color.RGBA{R: 200, G: 40, B: 40, A: 255}
)

// Plotter writes the displacement trace and the band spectrum as PNG files
// into a per-session directory under baseDir. It implements
// pipeline.Renderer.
type Plotter struct {
	mu      sync.Mutex
	baseDir string

	// LiveEvery rewrites LiveFile every LiveEvery frames once the history
	// holds more than two samples. Zero disables live output.
	LiveEvery int

	outputDir string
	written   []string
	err       error
}

// NewPlotter creates a plotter rooted at baseDir. The directory is created
// on first use.
func NewPlotter(baseDir string) *Plotter {
	return &Plotter{baseDir: baseDir}
}

// OnFrame keeps the live plots current when LiveEvery is set: the
// displacement trace once the history holds more than two samples, and the
// per-point motion vectors of the frame whenever any point was valid.
func (p *Plotter) OnFrame(u pipeline.FrameUpdate) {
	if p.LiveEvery <= 0 || u.Frame%p.LiveEvery != 0 {
		return
	}
	if len(u.History) <= 2 && len(u.Motion) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	dir, err := p.sessionDir(u.SessionID)
	if err != nil {
		p.err = err
		return
	}
	if len(u.History) > 2 {
		if err := PlotDisplacement(u.History, filepath.Join(dir, LiveFile)); err != nil {
			p.err = err
		}
	}
	if len(u.Motion) > 0 {
		if err := PlotMotion(u.Motion, u.Frame, filepath.Join(dir, MotionFile)); err != nil {
			p.err = err
		}
	}
}

// OnResult writes DisplacementFile and, when an estimate exists,
// SpectrumFile.
func (p *Plotter) OnResult(rep pipeline.Report) {
	p.mu.Lock()
	defer p.mu.Unlock()

	dir, err := p.sessionDir(rep.SessionID)
	if err != nil {
		p.err = err
		logf("plots disabled: %v", err)
		return
	}
	if len(rep.History) > 0 {
		path := filepath.Join(dir, DisplacementFile)
		if err := PlotDisplacement(rep.History, path); err != nil {
			p.err = err
			logf("displacement plot: %v", err)
		} else {
			p.written = append(p.written, path)
		}
	}
	if rep.OK {
		path := filepath.Join(dir, SpectrumFile)
		if err := PlotSpectrum(rep.Spectrum, rep.Peak, path); err != nil {
			p.err = err
			logf("spectrum plot: %v", err)
		} else {
			p.written = append(p.written, path)
		}
	}
	logf("session %s: wrote %d plots to %s", rep.SessionID, len(p.written), dir)
}

// sessionDir returns baseDir/<sessionID>, creating it. Callers hold p.mu.
func (p *Plotter) sessionDir(sessionID string) (string, error) {
	if p.outputDir != "" {
		return p.outputDir, nil
	}
	if sessionID == "" {
		sessionID = "session"
	}
	if err := os.MkdirAll(p.baseDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}
	dir, err := security.JoinWithin(p.baseDir, sessionID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}
	p.outputDir = dir
	return dir, nil
}

// OutputDir returns the session directory, or "" before anything was written.
func (p *Plotter) OutputDir() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outputDir
}

// Files returns the paths of the final plots written so far.
func (p *Plotter) Files() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.written...)
}

// Err returns the last write error.
func (p *Plotter) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// PlotDisplacement draws the displacement samples against frame index with
// a symmetric y range.
func PlotDisplacement(samples []signal.Sample, path string) error {
	if len(samples) == 0 {
		return fmt.Errorf("no samples to plot")
	}
	p := plot.New()
	p.Title.Text = "Vertical motion detected (breathing)"
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "Delta Y (px)"

	pts := make(plotter.XYs, len(samples))
	peak := 0.0
	for i, s := range samples {
		pts[i] = plotter.XY{X: float64(s.Frame), Y: s.Value}
		peak = math.Max(peak, math.Abs(s.Value))
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = traceColor
	line.Width = vg.Points(1)
	p.Add(line, plotter.NewGrid())
	p.Y.Min, p.Y.Max = -peak-1, peak+1

	if err := p.Save(10*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("save displacement plot: %w", err)
	}
	return nil
}

// PlotMotion draws one segment per valid point from its old position
// towards its new one, stretched by motionGain, in image coordinates
// (y grows downwards). New positions are marked.
func PlotMotion(motion []pipeline.Motion, frame int, path string) error {
	if len(motion) == 0 {
		return fmt.Errorf("no motion vectors to plot")
	}
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Tracked point motion, frame %d (x%d)", frame, motionGain)
	p.X.Label.Text = "x (px)"
	p.Y.Label.Text = "y (px)"
	p.Y.Scale = plot.InvertedScale{Normalizer: plot.LinearScale{}}

	heads := make(plotter.XYs, len(motion))
	for i, m := range motion {
		head := plotter.XY{
			X: m.From.X + (m.To.X-m.From.X)*motionGain,
			Y: m.From.Y + m.Dy()*motionGain,
		}
		heads[i] = head
		seg, err := plotter.NewLine(plotter.XYs{{X: m.From.X, Y: m.From.Y}, head})
		if err != nil {
			return err
		}
		seg.Color = traceColor
		seg.Width = vg.Points(1)
		p.Add(seg)
	}
	marks, err := plotter.NewScatter(heads)
	if err != nil {
		return err
	}
	marks.Color = pointColor
	marks.Radius = vg.Points(1.5)
	p.Add(marks, plotter.NewGrid())

	if err := p.Save(6*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save motion plot: %w", err)
	}
	return nil
}

// PlotSpectrum draws the band spectrum in breaths per minute and marks
// the peak bin.
func PlotSpectrum(s spectrum.Spectrum, peak int, path string) error {
	if s.Len() == 0 {
		return fmt.Errorf("empty spectrum")
	}
	if peak < 0 || peak >= s.Len() {
		return fmt.Errorf("peak index %d out of range [0,%d)", peak, s.Len())
	}
	peakRPM := s.Frequencies[peak] * 60
	peakMag := s.Magnitudes[peak]

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Frequency Spectrum - Breathing (%.1f rpm)", peakRPM)
	p.X.Label.Text = "Frequency (rpm)"
	p.Y.Label.Text = "Magnitude"

	pts := make(plotter.XYs, s.Len())
	for i := range s.Frequencies {
		pts[i] = plotter.XY{X: s.Frequencies[i] * 60, Y: s.Magnitudes[i]}
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = spectrumColor
	line.Width = vg.Points(1.5)

	marker, err := plotter.NewScatter(plotter.XYs{{X: peakRPM, Y: peakMag}})
	if err != nil {
		return err
	}
	marker.Color = peakColor
	marker.Radius = vg.Points(4)

	label, err := plotter.NewLabels(plotter.XYLabels{
		XYs:    []plotter.XY{{X: peakRPM, Y: peakMag}},
		Labels: []string{fmt.Sprintf("%.1f rpm", peakRPM)},
	})
	if err != nil {
		return err
	}
	label.Offset = vg.Point{X: vg.Points(6), Y: vg.Points(2)}
	for i := range label.TextStyle {
		label.TextStyle[i].Color = peakColor
	}

	p.Add(plotter.NewGrid(), line, marker, label)
	if err := p.Save(10*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("save spectrum plot: %w", err)
	}
	return nil
}
