package monitor

import (
	"bytes"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/banshee-data/breath.report/internal/httputil"
	"github.com/banshee-data/breath.report/internal/respiration/pipeline"
	"github.com/banshee-data/breath.report/internal/respiration/signal"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

const (
	traceColor = "#00a03c"
	binColor   = "#800080"
	peakColor  = "#0000dc"
)

// DisplacementChart plots the displacement history against frame index.
func DisplacementChart(samples []signal.Sample, subtitle string) *charts.Line {
	x := make([]string, len(samples))
	y := make([]opts.LineData, len(samples))
	peak := 0.0
	for i, s := range samples {
		x[i] = strconv.Itoa(s.Frame)
		y[i] = opts.LineData{Value: s.Value}
		peak = math.Max(peak, math.Abs(s.Value))
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Breathing displacement", Width: "100%", Height: "480px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Vertical motion detected (breathing)", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Frame", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Delta Y (px)", Min: -peak - 1, Max: peak + 1}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", Start: 0, End: 100}),
	)
	line.SetXAxis(x).AddSeries("displacement", y,
		charts.WithLineStyleOpts(opts.LineStyle{Color: traceColor, Width: 1}),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)
	return line
}

// SpectrumChart plots the in-band spectrum in breaths per minute with the
// peak bin highlighted. It returns an error when the report carries no
// estimate.
func SpectrumChart(rep pipeline.Report) (*charts.Bar, error) {
	if !rep.OK || rep.Peak < 0 || rep.Peak >= rep.Spectrum.Len() {
		return nil, fmt.Errorf("no estimate for session %s", rep.SessionID)
	}
	x := make([]string, rep.Spectrum.Len())
	y := make([]opts.BarData, rep.Spectrum.Len())
	for i, f := range rep.Spectrum.Frequencies {
		x[i] = fmt.Sprintf("%.1f", f*60)
		color := binColor
		if i == rep.Peak {
			color = peakColor
		}
		y[i] = opts.BarData{Value: rep.Spectrum.Magnitudes[i], ItemStyle: &opts.ItemStyle{Color: color}}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Breathing spectrum", Width: "100%", Height: "480px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Frequency Spectrum - Breathing (%.1f rpm)", rep.Result.RateBPM),
			Subtitle: fmt.Sprintf("session=%s bins=%d resolution=%.4f Hz", rep.SessionID, rep.Spectrum.Len(), rep.Spectrum.Resolution),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "rpm", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Magnitude"}),
	)
	bar.SetXAxis(x).AddSeries("magnitude", y)
	return bar, nil
}

func (ws *WebServer) handleDisplacementChart(w http.ResponseWriter, r *http.Request) {
	hist, _ := ws.snapshot()
	if len(hist) == 0 {
		httputil.NotFound(w, "no displacement samples yet")
		return
	}
	st := ws.Status()
	line := DisplacementChart(hist, fmt.Sprintf("session=%s samples=%d state=%s", st.SessionID, len(hist), st.State))
	ws.renderCharts(w, line)
}

func (ws *WebServer) handleSpectrumChart(w http.ResponseWriter, r *http.Request) {
	_, rep := ws.snapshot()
	if rep == nil {
		httputil.NotFound(w, "session has not finished")
		return
	}
	bar, err := SpectrumChart(*rep)
	if err != nil {
		httputil.NotFound(w, err.Error())
		return
	}
	ws.renderCharts(w, bar)
}

func (ws *WebServer) renderCharts(w http.ResponseWriter, c ...components.Charter) {
	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(c...)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
