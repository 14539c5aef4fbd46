// Command breathrate estimates a respiratory rate from the vertical motion
// of tracked points in a video region.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/breath.report/internal/capture"
	"github.com/banshee-data/breath.report/internal/config"
	"github.com/banshee-data/breath.report/internal/db"
	"github.com/banshee-data/breath.report/internal/monitor"
	"github.com/banshee-data/breath.report/internal/render"
	"github.com/banshee-data/breath.report/internal/respiration/features"
	"github.com/banshee-data/breath.report/internal/respiration/flow"
	"github.com/banshee-data/breath.report/internal/respiration/frames"
	"github.com/banshee-data/breath.report/internal/respiration/pipeline"
	"github.com/banshee-data/breath.report/internal/timeutil"
	"github.com/banshee-data/breath.report/internal/version"
)

type options struct {
	configPath  string
	source      string
	roi         string
	fps         float64
	maxFrames   int
	plots       string
	liveEvery   int
	listen      string
	keepServing bool
	dbPath      string
	progress    int
	realtime    bool
	status      string
	showVersion bool
	backend     string

	synth capture.SyntheticConfig
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	o := &options{synth: capture.DefaultSyntheticConfig()}
	fs := flag.NewFlagSet("breathrate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", "", "Tuning config JSON (defaults are built in)")
	fs.StringVar(&o.source, "source", "synthetic", "Frame source: synthetic, dir:<path>, device:<id> or file:<path>")
	fs.StringVar(&o.roi, "roi", "", "Region of interest as x,y,w,h (defaults to the band for synthetic sources)")
	fs.Float64Var(&o.fps, "fps", 0, "Sample rate override in Hz (0 uses the config)")
	fs.IntVar(&o.maxFrames, "max-frames", 0, "Stop after this many frames (0 means until end of stream)")
	fs.StringVar(&o.plots, "plots", "", "Write PNG plots into <dir>/<session id>")
	fs.IntVar(&o.liveEvery, "live-plot-every", 0, "Rewrite the live displacement plot every N frames (needs -plots)")
	fs.StringVar(&o.listen, "listen", "", "Serve the live monitor on this address, e.g. :8080")
	fs.BoolVar(&o.keepServing, "keep-serving", false, "Keep the monitor running after the session ends until interrupted")
	fs.StringVar(&o.dbPath, "db", "", "Record session summaries in this sqlite database")
	fs.IntVar(&o.progress, "progress", 30, "Print a progress line every N frames (0 disables)")
	fs.BoolVar(&o.realtime, "realtime", false, "Pace the synthetic source at its frame rate")
	fs.StringVar(&o.status, "status", "", "Print the status of a monitor at this address and exit")
	fs.BoolVar(&o.showVersion, "version", false, "Print version information and exit")
	fs.StringVar(&o.backend, "backend", "go", "Feature selection and tracking backend: go or opencv (opencv needs -tags=gocv)")
	fs.IntVar(&o.synth.Frames, "synthetic-frames", o.synth.Frames, "Frames produced by the synthetic source")
	fs.Float64Var(&o.synth.BreathHz, "synthetic-breath-hz", o.synth.BreathHz, "Breathing frequency of the synthetic scene")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	if o.liveEvery > 0 && o.plots == "" {
		return nil, fmt.Errorf("-live-plot-every needs -plots")
	}
	if o.keepServing && o.listen == "" {
		return nil, fmt.Errorf("-keep-serving needs -listen")
	}
	if o.backend != "go" && o.backend != "opencv" {
		return nil, fmt.Errorf("unknown -backend %q (want go or opencv)", o.backend)
	}
	return o, nil
}

func main() {
	os.Exit(realMain(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// realMain runs the command and returns its exit status. Deferred cleanup
// has finished by the time it returns, so main can exit directly.
func realMain(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 && args[0] == "migrate" {
		if err := runMigrate(args[1:], stdout, stderr); err != nil {
			if errors.Is(err, flag.ErrHelp) {
				return 0
			}
			log.Printf("migrate: %v", err)
			return 1
		}
		return 0
	}

	o, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		log.Printf("%v", err)
		return 2
	}
	if o.showVersion {
		fmt.Fprintln(stdout, version.String())
		return 0
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if o.status != "" {
		if err := printStatus(ctx, monitor.NewClient(nil, o.status), stdout); err != nil {
			log.Printf("status: %v", err)
			return 1
		}
		return 0
	}

	if _, err := run(ctx, o, stdout); err != nil {
		log.Printf("%v", err)
		return 1
	}
	return 0
}

func runMigrate(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dbPath := fs.String("db", "breath.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return db.RunMigrateCommand(fs.Args(), *dbPath, stdout)
}

// run executes one session and returns its report. The error is the
// session failure or a setup problem; an unavailable estimate is not an
// error.
func run(ctx context.Context, o *options, stdout io.Writer) (pipeline.Report, error) {
	tuning := config.EmptyTuningConfig()
	if o.configPath != "" {
		var err error
		if tuning, err = config.LoadTuningConfig(o.configPath); err != nil {
			return pipeline.Report{}, fmt.Errorf("failed to load config: %w", err)
		}
		log.Printf("loaded tuning config from %s", o.configPath)
	}
	cfg := pipeline.ConfigFromTuning(tuning)
	if o.fps > 0 {
		cfg.Spectrum.SampleRateHz = o.fps
	}
	cfg.MaxFrames = o.maxFrames

	synth := o.synth
	synth.RateHz = cfg.Spectrum.SampleRateHz
	synth.Realtime = o.realtime

	roi, err := resolveROI(o, synth)
	if err != nil {
		return pipeline.Report{}, err
	}

	var selector features.PointSelector
	var tracker flow.PointTracker
	if o.backend == "opencv" {
		if selector, err = features.NewOpenCVSelector(cfg.Features); err != nil {
			return pipeline.Report{}, err
		}
		if tracker, err = flow.NewOpenCVTracker(cfg.Flow); err != nil {
			return pipeline.Report{}, err
		}
	}

	src, err := capture.Open(o.source, synth)
	if err != nil {
		return pipeline.Report{}, fmt.Errorf("failed to open source: %w", err)
	}
	defer src.Close()

	renderers := pipeline.MultiRenderer{}
	console := render.NewConsole(stdout)
	console.ProgressEvery = o.progress
	renderers = append(renderers, console)

	var plotter *render.Plotter
	if o.plots != "" {
		plotter = render.NewPlotter(o.plots)
		plotter.LiveEvery = o.liveEvery
		renderers = append(renderers, plotter)
	}

	var database *db.DB
	var recorder *db.Recorder
	if o.dbPath != "" {
		if database, err = db.NewDB(o.dbPath); err != nil {
			return pipeline.Report{}, fmt.Errorf("failed to open database: %w", err)
		}
		defer database.Close()
		recorder = database.Recorder()
		renderers = append(renderers, recorder)
	}

	var wg sync.WaitGroup
	serveCtx, stopServer := context.WithCancel(ctx)
	defer func() {
		stopServer()
		wg.Wait()
	}()
	if o.listen != "" {
		ws := monitor.NewWebServer(monitor.WebServerConfig{Address: o.listen, DB: database})
		renderers = append(renderers, ws)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ws.Start(serveCtx); err != nil {
				log.Printf("monitor: %v", err)
			}
		}()
	}

	session := pipeline.NewSession(cfg, pipeline.Deps{
		Selector: selector,
		Tracker:  tracker,
		Renderer: renderers,
		Clock:    sessionClock(o.source, o.realtime, cfg.Spectrum.SampleRateHz),
	})
	log.Printf("session %s: source=%s roi=%s rate=%.2f Hz", session.ID(), o.source, roi, cfg.Spectrum.SampleRateHz)

	rep, runErr := session.Run(ctx, src, roi)

	if plotter != nil && plotter.Err() != nil {
		log.Printf("plots: %v", plotter.Err())
	} else if plotter != nil && len(plotter.Files()) > 0 {
		log.Printf("plots written to %s", plotter.OutputDir())
	}
	if recorder != nil && recorder.Err() != nil {
		log.Printf("database: %v", recorder.Err())
	}

	if o.keepServing && ctx.Err() == nil {
		log.Printf("session finished; monitor still serving on %s (Ctrl-C to exit)", o.listen)
		<-ctx.Done()
	}
	return rep, runErr
}

// resolveROI parses -roi, falling back to the synthetic band.
func resolveROI(o *options, synth capture.SyntheticConfig) (frames.Rect, error) {
	if o.roi != "" {
		return frames.ParseRect(o.roi)
	}
	kind, _, _ := strings.Cut(o.source, ":")
	if kind == "" || kind == "synthetic" {
		return synth.ROI(), nil
	}
	return frames.Rect{}, fmt.Errorf("-roi is required for %s sources", kind)
}

// sessionClock stamps samples. Live sources use the wall clock; replayed
// ones advance one nominal frame period per sample.
func sessionClock(source string, realtime bool, rateHz float64) timeutil.Clock {
	kind, _, _ := strings.Cut(source, ":")
	switch {
	case kind == "device", realtime:
		return timeutil.RealClock{}
	case rateHz > 0:
		return timeutil.NewTicking(time.Now(), time.Duration(float64(time.Second)/rateHz))
	default:
		return timeutil.RealClock{}
	}
}

func printStatus(ctx context.Context, c *monitor.Client, w io.Writer) error {
	st, err := c.Status(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "session %s: %s, frame %d, %d/%d points valid, %d samples\n",
		st.SessionID, st.State, st.Frame, st.Valid, st.Tracked, st.Samples)
	if st.Summary != "" {
		fmt.Fprintln(w, st.Summary)
	}
	return nil
}
