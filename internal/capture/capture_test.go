package capture

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/banshee-data/breath.report/internal/monitoring"
	"github.com/banshee-data/breath.report/internal/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

func TestSyntheticSource_Frames(t *testing.T) {
	cfg := DefaultSyntheticConfig()
	cfg.Frames = 5
	src := NewSyntheticSource(cfg)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		f, err := src.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, 160, f.Width)
		assert.Equal(t, 120, f.Height)
		assert.Len(t, f.Pix, 160*120)
	}
	_, err := src.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
	assert.NoError(t, src.Close())
}

func TestSyntheticSource_BandMovesBackgroundStill(t *testing.T) {
	cfg := DefaultSyntheticConfig()
	src := NewSyntheticSource(cfg)
	ctx := context.Background()

	first, err := src.Next(ctx)
	require.NoError(t, err)
	// Frame 25 at 30 fps and 0.3 Hz is a quarter period: full amplitude.
	for i := 1; i < 25; i++ {
		_, err = src.Next(ctx)
		require.NoError(t, err)
	}
	peak, err := src.Next(ctx)
	require.NoError(t, err)
	assert.InDelta(t, cfg.AmplitudePx, src.Offset(25), 1e-9)

	w := first.Width
	for x := 0; x < w; x++ {
		assert.Equal(t, first.Pix[5*w+x], peak.Pix[5*w+x], "row 5 is background")
	}
	changed := 0
	for x := 0; x < w; x++ {
		if first.Pix[60*w+x] != peak.Pix[60*w+x] {
			changed++
		}
	}
	assert.Greater(t, changed, w/4, "band rows should move")
}

func TestSyntheticSource_Deterministic(t *testing.T) {
	cfg := DefaultSyntheticConfig()
	cfg.NoiseStdDev = 2
	cfg.Seed = 7
	a := NewSyntheticSource(cfg)
	b := NewSyntheticSource(cfg)
	for i := 0; i < 3; i++ {
		fa, err := a.Next(context.Background())
		require.NoError(t, err)
		fb, err := b.Next(context.Background())
		require.NoError(t, err)
		assert.Equal(t, fa.Pix, fb.Pix)
	}
}

func TestSyntheticSource_Defaults(t *testing.T) {
	src := NewSyntheticSource(SyntheticConfig{BreathHz: 0.25})
	cfg := src.Config()
	assert.Equal(t, 160, cfg.Width)
	assert.Equal(t, 30.0, cfg.RateHz)
	assert.Less(t, cfg.BandTop, cfg.BandBottom)
	assert.Zero(t, cfg.Frames, "zero frames means endless")

	roi := DefaultSyntheticConfig().ROI()
	assert.True(t, roi.Within(160, 120))
	assert.GreaterOrEqual(t, roi.Y, DefaultSyntheticConfig().BandTop)
	assert.LessOrEqual(t, roi.Y+roi.Height, DefaultSyntheticConfig().BandBottom)
}

func TestSyntheticSource_Realtime(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	cfg := DefaultSyntheticConfig()
	cfg.Frames = 4
	cfg.Realtime = true
	cfg.Clock = clock
	src := NewSyntheticSource(cfg)
	for {
		if _, err := src.Next(context.Background()); err != nil {
			require.ErrorIs(t, err, io.EOF)
			break
		}
	}
	sleeps := clock.Sleeps()
	require.Len(t, sleeps, 3, "no wait before the first frame")
	for _, d := range sleeps {
		assert.InDelta(t, float64(time.Second/30), float64(d), 1)
	}
}

func TestSyntheticSource_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSyntheticSource(DefaultSyntheticConfig()).Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func writePNG(t *testing.T, path string, w, h int, fill uint8) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: fill, G: fill, B: fill, A: 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestImageDirSource(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "frame_002.png"), 8, 6, 20)
	writePNG(t, filepath.Join(dir, "frame_001.png"), 8, 6, 10)
	writePNG(t, filepath.Join(dir, "frame_010.PNG"), 8, 6, 30)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.png"), 0o755))

	src, err := NewImageDirSource(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, src.Len())

	var got []uint8
	for {
		f, err := src.Next(context.Background())
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		assert.Equal(t, 8, f.Width)
		assert.Equal(t, 6, f.Height)
		got = append(got, f.Pix[0])
	}
	assert.Equal(t, []uint8{10, 20, 30}, got, "lexical order")
	assert.NoError(t, src.Close())
}

func TestImageDirSource_Errors(t *testing.T) {
	_, err := NewImageDirSource(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	_, err = NewImageDirSource(t.TempDir())
	assert.ErrorContains(t, err, "no images")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.png"), []byte("not a png"), 0o644))
	src, err := NewImageDirSource(dir)
	require.NoError(t, err)
	_, err = src.Next(context.Background())
	assert.ErrorContains(t, err, "decode bad.png")
}

func TestOpen(t *testing.T) {
	src, err := Open("synthetic", DefaultSyntheticConfig())
	require.NoError(t, err)
	assert.IsType(t, &SyntheticSource{}, src)

	src, err = Open("", SyntheticConfig{})
	require.NoError(t, err)
	assert.IsType(t, &SyntheticSource{}, src)

	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), 4, 4, 1)
	src, err = Open("dir:"+dir, SyntheticConfig{})
	require.NoError(t, err)
	assert.IsType(t, &ImageDirSource{}, src)

	_, err = Open("device:abc", SyntheticConfig{})
	assert.ErrorContains(t, err, "invalid device id")

	_, err = Open("file:", SyntheticConfig{})
	assert.Error(t, err)

	_, err = Open("rtsp://camera", SyntheticConfig{})
	assert.ErrorContains(t, err, "unknown source")
}

func TestSceneTextureRange(t *testing.T) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for y := 0.0; y < 120; y++ {
		for x := 0.0; x < 160; x++ {
			v := sceneTexture(x, y)
			lo, hi = math.Min(lo, v), math.Max(hi, v)
		}
	}
	assert.GreaterOrEqual(t, lo, 0.0)
	assert.LessOrEqual(t, hi, 255.0)
	assert.Greater(t, hi-lo, 60.0)
}
