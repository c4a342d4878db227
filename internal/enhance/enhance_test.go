package enhance

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wmclean/internal/config"
	"wmclean/internal/frame"
	"wmclean/internal/media/ffprobe"
	"wmclean/internal/progress"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell stubs require a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "upscaler")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestResizeUpscaler(t *testing.T) {
	for _, mode := range []string{"nearest", "bilinear", "bicubic", "lanczos", "catmullrom", ""} {
		t.Run(mode, func(t *testing.T) {
			out, err := ResizeUpscaler{Interpolation: mode}.Upscale(context.Background(), solid(5, 3, color.RGBA{R: 120, A: 255}), 4)
			require.NoError(t, err)
			assert.Equal(t, image.Rect(0, 0, 20, 12), out.Bounds())
			assert.InDelta(t, 120, float64(out.RGBAAt(10, 6).R), 1)
		})
	}

	_, err := ResizeUpscaler{}.Upscale(context.Background(), solid(2, 2, color.RGBA{}), 0)
	assert.Error(t, err)
}

func TestCommandUpscalerRescalesOutput(t *testing.T) {
	// The stub ignores the scale and copies the input through.
	bin := writeScript(t, `cp "$2" "$4"`)
	u := &CommandUpscaler{Binary: bin, WorkDir: t.TempDir(), Fallback: ResizeUpscaler{}}
	out, err := u.Upscale(context.Background(), solid(4, 2, color.RGBA{G: 77, A: 255}), 2)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 8, 4), out.Bounds())
	assert.InDelta(t, 77, float64(out.RGBAAt(3, 1).G), 1)
	assert.Zero(t, u.Fallbacks())
}

func TestCommandUpscalerFallsBackPerFrame(t *testing.T) {
	bin := writeScript(t, `echo "vulkan device lost" >&2; exit 3`)
	u := &CommandUpscaler{Binary: bin, Model: "realesrgan-x4plus", WorkDir: t.TempDir(), Fallback: ResizeUpscaler{}}

	for i := 0; i < 2; i++ {
		out, err := u.Upscale(context.Background(), solid(3, 3, color.RGBA{B: 10, A: 255}), 2)
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 6, 6), out.Bounds())
	}
	assert.Equal(t, 2, u.Fallbacks())
}

func TestCommandUpscalerWithoutFallbackFails(t *testing.T) {
	bin := writeScript(t, `exit 1`)
	u := &CommandUpscaler{Binary: bin, WorkDir: t.TempDir()}
	_, err := u.Upscale(context.Background(), solid(2, 2, color.RGBA{}), 2)
	assert.Error(t, err)
}

type fileSink struct {
	frame.CollectSink
	path string
}

func (s *fileSink) Close() error {
	_ = s.CollectSink.Close()
	return os.WriteFile(s.path, []byte("upscaled"), 0o644)
}

func fakePipeline(t *testing.T, frames int) (*Pipeline, **fileSink) {
	t.Helper()
	p := NewPipeline(Options{Scale: 2, TempDir: t.TempDir()}, ResizeUpscaler{}, nil)
	p.probe = func(context.Context, string, string) (ffprobe.Result, error) {
		return ffprobe.Result{Streams: []ffprobe.Stream{{CodecType: "video", Width: 4, Height: 2, AvgFrameRate: "30/1", NBFrames: "3"}}}, nil
	}
	p.openSource = func(_ context.Context, _ string, w, h int) (frame.Source, error) {
		src := &frame.SliceSource{}
		for i := 0; i < frames; i++ {
			src.Frames = append(src.Frames, solid(w, h, color.RGBA{R: uint8(i), A: 255}))
		}
		return src, nil
	}
	var sink *fileSink
	p.openSink = func(_ context.Context, out string, w, h int, _ float64) (frame.Sink, error) {
		assert.Equal(t, 8, w)
		assert.Equal(t, 4, h)
		sink = &fileSink{path: out}
		return sink, nil
	}
	return p, &sink
}

func TestPipelineEnhance(t *testing.T) {
	p, sink := fakePipeline(t, 3)
	output := filepath.Join(t.TempDir(), "enhanced", "clip_cleaned.mp4")

	var events []progress.Event
	err := p.Enhance(context.Background(), "clip.mp4", output, func(e progress.Event) { events = append(events, e) })
	require.NoError(t, err)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "upscaled", string(data))
	require.Len(t, (*sink).Frames, 3)
	assert.Equal(t, image.Rect(0, 0, 8, 4), (*sink).Frames[0].Bounds())

	prev := 0.0
	for _, e := range events {
		assert.GreaterOrEqual(t, e.Percent, prev)
		prev = e.Percent
	}
	assert.Equal(t, 100.0, prev)
}

func TestPipelineStopsBetweenFrames(t *testing.T) {
	p, sink := fakePipeline(t, 3)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	calls := 0
	report := func(progress.Event) {
		calls++
		cancel()
	}
	err := p.Enhance(ctx, "clip.mp4", filepath.Join(t.TempDir(), "o.mp4"), report)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, (*sink).Frames, 1)
	assert.Equal(t, 1, calls)
}

func TestNewPipelineFromConfigSelectsUpscaler(t *testing.T) {
	cfg := config.Default()
	p := NewPipelineFromConfig(&cfg, nil)
	assert.IsType(t, ResizeUpscaler{}, p.upscaler)
	assert.Equal(t, 4, p.opts.Scale)

	cfg.Enhance.Upscaler = config.UpscalerCommand
	p = NewPipelineFromConfig(&cfg, nil)
	cmd, ok := p.upscaler.(*CommandUpscaler)
	require.True(t, ok)
	assert.Equal(t, "realesrgan-ncnn-vulkan", cmd.Binary)
	assert.Equal(t, ResizeUpscaler{Interpolation: "bicubic"}, cmd.Fallback)
}

func TestCommandRestorerKeepsSize(t *testing.T) {
	// The stub records its arguments and copies the frame through.
	argsFile := filepath.Join(t.TempDir(), "args")
	bin := writeScript(t, `echo "$@" > "`+argsFile+`"; cp "$2" "$4"`)
	r := &CommandRestorer{Binary: bin, Fidelity: 0.7, WorkDir: t.TempDir()}

	out, err := r.Restore(context.Background(), solid(6, 4, color.RGBA{R: 90, A: 255}))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 6, 4), out.Bounds())
	assert.InDelta(t, 90, float64(out.RGBAAt(2, 2).R), 1)
	assert.Zero(t, r.Failures())

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Contains(t, string(args), "-w 0.7")
}

func TestCommandRestorerPassesFailedFramesThrough(t *testing.T) {
	bin := writeScript(t, `echo "no face detector weights" >&2; exit 2`)
	r := &CommandRestorer{Binary: bin, Fidelity: 0.5, WorkDir: t.TempDir()}

	for i := 0; i < 3; i++ {
		in := solid(4, 4, color.RGBA{G: uint8(40 + i), A: 255})
		out, err := r.Restore(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, in.Pix, out.Pix)
		assert.NotSame(t, in, out)
	}
	assert.Equal(t, 3, r.Failures())
}

func TestCommandRestorerStopsOnCancel(t *testing.T) {
	bin := writeScript(t, `exit 1`)
	r := &CommandRestorer{Binary: bin, WorkDir: t.TempDir()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Restore(ctx, solid(2, 2, color.RGBA{}))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, r.Failures())
}

type recordingRestorer struct {
	sizes []image.Point
}

func (r *recordingRestorer) Restore(_ context.Context, img *image.RGBA) (*image.RGBA, error) {
	r.sizes = append(r.sizes, img.Bounds().Size())
	out := solid(img.Bounds().Dx(), img.Bounds().Dy(), color.RGBA{B: 200, A: 255})
	return out, nil
}

func TestPipelineRestoresEveryUpscaledFrame(t *testing.T) {
	p, sink := fakePipeline(t, 3)
	restorer := &recordingRestorer{}
	p.WithRestorer(restorer)

	err := p.Enhance(context.Background(), "clip.mp4", filepath.Join(t.TempDir(), "out.mp4"), nil)
	require.NoError(t, err)
	assert.Equal(t, []image.Point{{8, 4}, {8, 4}, {8, 4}}, restorer.sizes)
	require.Len(t, (*sink).Frames, 3)
	assert.Equal(t, uint8(200), (*sink).Frames[2].RGBAAt(0, 0).B)
}

func TestPipelineEnhancesRotatedVideoAtDisplaySize(t *testing.T) {
	p := NewPipeline(Options{Scale: 2, TempDir: t.TempDir()}, ResizeUpscaler{}, nil)
	p.probe = func(context.Context, string, string) (ffprobe.Result, error) {
		return ffprobe.Result{Streams: []ffprobe.Stream{{
			CodecType: "video", Width: 4, Height: 2, AvgFrameRate: "30/1", NBFrames: "1",
			Tags: map[string]string{"rotate": "270"},
		}}}, nil
	}
	var srcSize, sinkSize image.Point
	p.openSource = func(_ context.Context, _ string, w, h int) (frame.Source, error) {
		srcSize = image.Pt(w, h)
		return &frame.SliceSource{Frames: []*image.RGBA{solid(w, h, color.RGBA{A: 255})}}, nil
	}
	p.openSink = func(_ context.Context, out string, w, h int, _ float64) (frame.Sink, error) {
		sinkSize = image.Pt(w, h)
		return &fileSink{path: out}, nil
	}

	require.NoError(t, p.Enhance(context.Background(), "clip.mp4", filepath.Join(t.TempDir(), "out.mp4"), nil))
	assert.Equal(t, image.Pt(2, 4), srcSize)
	assert.Equal(t, image.Pt(4, 8), sinkSize)
}

func TestNewPipelineFromConfigAddsRestorer(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.TempDir = t.TempDir()
	assert.Nil(t, NewPipelineFromConfig(&cfg, nil).restorer)

	cfg.Enhance.RestoreFaces = true
	cfg.Enhance.Fidelity = 0.3
	r, ok := NewPipelineFromConfig(&cfg, nil).restorer.(*CommandRestorer)
	require.True(t, ok)
	assert.Equal(t, "codeformer", r.Binary)
	assert.Equal(t, 0.3, r.Fidelity)
}

func TestModelAssetAndUpscalerWeights(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.ModelsDir = t.TempDir()
	asset := ModelAsset(&cfg)
	assert.Equal(t, filepath.Join(cfg.Paths.ModelsDir, "RealESRGAN_x4plus.pth"), asset.Dest)
	assert.Equal(t, cfg.Enhance.UpscalerModelURL, asset.URL)

	cfg.Enhance.Upscaler = config.UpscalerCommand
	cmd := NewPipelineFromConfig(&cfg, nil).upscaler.(*CommandUpscaler)
	assert.Empty(t, cmd.ModelDir, "weights not fetched yet")

	require.NoError(t, os.WriteFile(asset.Dest, []byte("weights"), 0o644))
	cmd = NewPipelineFromConfig(&cfg, nil).upscaler.(*CommandUpscaler)
	assert.Equal(t, cfg.Paths.ModelsDir, cmd.ModelDir)

	cfg.Enhance.UpscalerModelPath = filepath.Join(t.TempDir(), "custom.pth")
	assert.Equal(t, cfg.Enhance.UpscalerModelPath, ModelAsset(&cfg).Dest)
}
