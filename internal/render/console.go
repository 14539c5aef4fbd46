package render

import (
	"fmt"
	"io"
	"sync"

	"github.com/banshee-data/breath.report/internal/respiration/pipeline"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Console prints progress and the final estimate to a writer.
// It implements pipeline.Renderer.
type Console struct {
	mu sync.Mutex
	w  io.Writer

	// ProgressEvery prints a progress line every ProgressEvery frames.
	// Zero disables progress output.
	ProgressEvery int
	// ShowBins adds a table of the in-band spectrum to the final report.
	ShowBins bool
}

// NewConsole creates a console renderer writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w, ShowBins: true}
}

// OnFrame prints a progress line.
func (c *Console) OnFrame(u pipeline.FrameUpdate) {
	if c.ProgressEvery <= 0 || u.Frame%c.ProgressEvery != 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, "frame %d: %d/%d points valid, %d samples\n", u.Frame, u.Valid, u.Tracked, len(u.History))
}

// OnResult prints the estimate line, the session table and optionally the
// spectrum bins.
func (c *Console) OnResult(rep pipeline.Report) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, rep.Summary())
	fmt.Fprintln(c.w, SessionTable(rep))
	if c.ShowBins && rep.Spectrum.Len() > 0 {
		fmt.Fprintln(c.w, SpectrumTable(rep))
	}
}

// SessionTable renders the session counters.
func SessionTable(rep pipeline.Report) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.Style().Format.Header = text.FormatDefault
	tw.AppendHeader(table.Row{"Session", "Status", "Frames", "Samples", "Skipped", "Seed points", "Rate (Hz)", "Resolution (Hz)"})
	tw.AppendRow(table.Row{
		rep.SessionID,
		string(rep.Status),
		rep.Stats.Frames,
		rep.Stats.Samples,
		rep.Stats.Skipped,
		rep.Stats.SeedPoints,
		fmt.Sprintf("%.2f", rep.SampleRateHz),
		fmt.Sprintf("%.4f", rep.Spectrum.Resolution),
	})
	tw.SetColumnConfigs(rightAlign(3, 8))
	return tw.Render()
}

// SpectrumTable renders the in-band bins with the peak marked.
func SpectrumTable(rep pipeline.Report) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.Style().Format.Header = text.FormatDefault
	tw.AppendHeader(table.Row{"", "Frequency (Hz)", "Rate (rpm)", "Magnitude"})
	for i, f := range rep.Spectrum.Frequencies {
		mark := ""
		if i == rep.Peak {
			mark = "*"
		}
		tw.AppendRow(table.Row{
			mark,
			fmt.Sprintf("%.4f", f),
			fmt.Sprintf("%.1f", f*60),
			fmt.Sprintf("%.4f", rep.Spectrum.Magnitudes[i]),
		})
	}
	tw.SetColumnConfigs(rightAlign(2, 4))
	return tw.Render()
}

// rightAlign right-aligns columns from..to (1-based, inclusive).
func rightAlign(from, to int) []table.ColumnConfig {
	var cfgs []table.ColumnConfig
	for i := from; i <= to; i++ {
		cfgs = append(cfgs, table.ColumnConfig{
			Number:      i,
			Align:       text.AlignRight,
			AlignHeader: text.AlignLeft,
		})
	}
	return cfgs
}
