package local

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wmclean/internal/config"
	"wmclean/internal/fetch"
	"wmclean/internal/frame"
	"wmclean/internal/media/ffprobe"
	"wmclean/internal/progress"
)

func solidFrame(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

type detectorFunc func(ctx context.Context, img *image.RGBA) ([]Box, error)

func (f detectorFunc) Detect(ctx context.Context, img *image.RGBA) ([]Box, error) { return f(ctx, img) }

type inpainterFunc func(ctx context.Context, img *image.RGBA, mask *image.Gray) (*image.RGBA, error)

func (f inpainterFunc) Inpaint(ctx context.Context, img *image.RGBA, mask *image.Gray) (*image.RGBA, error) {
	return f(ctx, img, mask)
}

func TestBuildMaskUnionAndClamp(t *testing.T) {
	bounds := image.Rect(0, 0, 10, 8)
	mask, painted := BuildMask(bounds, []Box{
		{X1: 1, Y1: 1, X2: 3, Y2: 3},
		{X1: 2, Y1: 2, X2: 4, Y2: 4},
		{X1: 8, Y1: 6, X2: 20, Y2: 20},
	})
	require.True(t, painted)
	assert.Equal(t, bounds, mask.Bounds())

	count := 0
	for _, v := range mask.Pix {
		if v == 255 {
			count++
		} else {
			assert.Zero(t, v)
		}
	}
	// 4 + 4 - 1 overlapping pixel, plus the clamped 2x2 corner.
	assert.Equal(t, 7+4, count)
	assert.Equal(t, uint8(255), mask.GrayAt(9, 7).Y)
	assert.Equal(t, uint8(0), mask.GrayAt(0, 0).Y)
}

func TestBuildMaskOutsideFrame(t *testing.T) {
	_, painted := BuildMask(image.Rect(0, 0, 4, 4), []Box{{X1: 10, Y1: 10, X2: 12, Y2: 12}})
	assert.False(t, painted)
	_, painted = BuildMask(image.Rect(0, 0, 4, 4), nil)
	assert.False(t, painted)
}

func TestStaticDetectorSkipsRegionsOutsideFrame(t *testing.T) {
	d := StaticDetector{Regions: []Box{{X1: 0, Y1: 0, X2: 2, Y2: 2}, {X1: 50, Y1: 50, X2: 60, Y2: 60}}}
	boxes, err := d.Detect(context.Background(), solidFrame(10, 10, color.RGBA{A: 255}))
	require.NoError(t, err)
	assert.Equal(t, []Box{{X1: 0, Y1: 0, X2: 2, Y2: 2}}, boxes)
}

func TestHTTPDetectorFiltersByConfidence(t *testing.T) {
	var gotQuery atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.RawQuery)
		assert.Equal(t, "image/png", r.Header.Get("Content-Type"))
		img, err := png.Decode(r.Body)
		if assert.NoError(t, err) {
			assert.Equal(t, 16, img.Bounds().Dx())
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"boxes": []map[string]float64{
			{"x1": 1.4, "y1": 2.6, "x2": 5.2, "y2": 7.0, "confidence": 0.9},
			{"x1": 0, "y1": 0, "x2": 3, "y2": 3, "confidence": 0.1},
		}})
	}))
	defer srv.Close()

	d, err := NewHTTPDetector(srv.URL+"/detect", 0.3, 0.45, 0, nil)
	require.NoError(t, err)
	boxes, err := d.Detect(context.Background(), solidFrame(16, 9, color.RGBA{R: 10, A: 255}))
	require.NoError(t, err)
	require.Len(t, boxes, 1)
	assert.Equal(t, Box{X1: 1, Y1: 2, X2: 6, Y2: 7, Confidence: 0.9}, boxes[0])
	query, _ := gotQuery.Load().(string)
	assert.Contains(t, query, "conf=0.3")
	assert.Contains(t, query, "iou=0.45")
}

func TestHTTPDetectorErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	d, err := NewHTTPDetector(srv.URL, 0.3, 0.45, 0, nil)
	require.NoError(t, err)
	_, err = d.Detect(context.Background(), solidFrame(2, 2, color.RGBA{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not loaded")

	_, err = NewHTTPDetector("not a url", 0.3, 0.45, 0, nil)
	assert.Error(t, err)
}

func TestDiffuseInpainterFillsFromBorder(t *testing.T) {
	img := solidFrame(12, 12, color.RGBA{R: 40, G: 80, B: 120, A: 255})
	for y := 4; y < 8; y++ {
		for x := 4; x < 8; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}
	mask, _ := BuildMask(img.Bounds(), []Box{{X1: 4, Y1: 4, X2: 8, Y2: 8}})

	out, err := DiffuseInpainter{Radius: 3}.Inpaint(context.Background(), img, mask)
	require.NoError(t, err)
	for y := 4; y < 8; y++ {
		for x := 4; x < 8; x++ {
			assert.Equal(t, color.RGBA{R: 40, G: 80, B: 120, A: 255}, out.RGBAAt(x, y), "pixel %d,%d", x, y)
		}
	}
	assert.Equal(t, color.RGBA{R: 255, G: 255, B: 255, A: 255}, img.RGBAAt(5, 5), "input must not be modified")
}

func TestDiffuseInpainterBlendsNeighbours(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3, 1))
	img.SetRGBA(0, 0, color.RGBA{R: 0, A: 255})
	img.SetRGBA(2, 0, color.RGBA{R: 200, A: 255})
	mask, _ := BuildMask(img.Bounds(), []Box{{X1: 1, Y1: 0, X2: 2, Y2: 1}})

	out, err := DiffuseInpainter{Radius: 1}.Inpaint(context.Background(), img, mask)
	require.NoError(t, err)
	assert.Equal(t, uint8(100), out.RGBAAt(1, 0).R)
}

func TestDiffuseInpainterFullMaskIsIdentity(t *testing.T) {
	img := solidFrame(3, 3, color.RGBA{G: 9, A: 255})
	mask, _ := BuildMask(img.Bounds(), []Box{{X1: 0, Y1: 0, X2: 3, Y2: 3}})
	out, err := DiffuseInpainter{Radius: 3}.Inpaint(context.Background(), img, mask)
	require.NoError(t, err)
	assert.Equal(t, img.Pix, out.Pix)
}

func TestIOPaintInpainter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/inpaint", r.URL.Path)
		var req iopaintRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			return
		}
		assert.Equal(t, "lama", req.Model)
		maskPNG, err := base64.StdEncoding.DecodeString(req.Mask)
		if !assert.NoError(t, err) {
			return
		}
		mask, err := png.Decode(bytes.NewReader(maskPNG))
		if !assert.NoError(t, err) {
			return
		}
		r32, _, _, _ := mask.At(1, 1).RGBA()
		assert.Equal(t, uint32(0xffff), r32)

		// Answer at a different size to exercise rescaling.
		w.Header().Set("Content-Type", "image/png")
		_ = png.Encode(w, solidFrame(8, 8, color.RGBA{B: 200, A: 255}))
	}))
	defer srv.Close()

	p, err := NewIOPaintInpainter(srv.URL, "lama", 0, nil)
	require.NoError(t, err)
	img := solidFrame(6, 4, color.RGBA{R: 1, A: 255})
	mask, _ := BuildMask(img.Bounds(), []Box{{X1: 0, Y1: 0, X2: 2, Y2: 2}})
	out, err := p.Inpaint(context.Background(), img, mask)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 6, 4), out.Bounds())
	assert.InDelta(t, 200, float64(out.RGBAAt(3, 2).B), 1)
}

func TestProcessorNoBoxesIsIdentity(t *testing.T) {
	frames := []*image.RGBA{solidFrame(4, 4, color.RGBA{R: 1, A: 255}), solidFrame(4, 4, color.RGBA{R: 2, A: 255})}
	inpaintCalls := 0
	p := NewProcessor(
		detectorFunc(func(context.Context, *image.RGBA) ([]Box, error) { return nil, nil }),
		inpainterFunc(func(_ context.Context, img *image.RGBA, _ *image.Gray) (*image.RGBA, error) {
			inpaintCalls++
			return img, nil
		}),
		nil,
	)
	sink := &frame.CollectSink{}
	stats, err := p.Run(context.Background(), &frame.SliceSource{Frames: frames}, sink, len(frames), nil)
	require.NoError(t, err)
	assert.Equal(t, Stats{Frames: 2}, stats)
	assert.Zero(t, inpaintCalls)
	require.Len(t, sink.Frames, 2)
	assert.Same(t, frames[0], sink.Frames[0])
	assert.Same(t, frames[1], sink.Frames[1])
}

func TestProcessorKeepsOriginalOnFrameFailure(t *testing.T) {
	frames := []*image.RGBA{solidFrame(4, 4, color.RGBA{A: 255}), solidFrame(4, 4, color.RGBA{A: 255}), solidFrame(4, 4, color.RGBA{A: 255})}
	replaced := solidFrame(4, 4, color.RGBA{G: 255, A: 255})
	calls := 0
	p := NewProcessor(
		StaticDetector{Regions: []Box{{X1: 0, Y1: 0, X2: 2, Y2: 2}}},
		inpainterFunc(func(context.Context, *image.RGBA, *image.Gray) (*image.RGBA, error) {
			calls++
			if calls == 2 {
				return nil, errors.New("gpu out of memory")
			}
			return replaced, nil
		}),
		nil,
	)
	sink := &frame.CollectSink{}
	var events []progress.Event
	stats, err := p.Run(context.Background(), &frame.SliceSource{Frames: frames}, sink, 3, func(e progress.Event) { events = append(events, e) })
	require.NoError(t, err)
	assert.Equal(t, Stats{Frames: 3, Inpainted: 2, Failed: 1}, stats)
	assert.Same(t, replaced, sink.Frames[0])
	assert.Same(t, frames[1], sink.Frames[1])
	assert.Same(t, replaced, sink.Frames[2])

	require.NotEmpty(t, events)
	assert.Equal(t, 100.0, events[len(events)-1].Percent)
}

func TestProcessorStopsBeforeNextFrame(t *testing.T) {
	frames := []*image.RGBA{solidFrame(2, 2, color.RGBA{}), solidFrame(2, 2, color.RGBA{}), solidFrame(2, 2, color.RGBA{})}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := NewProcessor(
		detectorFunc(func(context.Context, *image.RGBA) ([]Box, error) {
			cancel()
			return nil, nil
		}),
		DiffuseInpainter{Radius: 1},
		nil,
	)
	sink := &frame.CollectSink{}
	stats, err := p.Run(ctx, &frame.SliceSource{Frames: frames}, sink, 3, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, stats.Frames, "the in-flight frame completes")
	assert.Len(t, sink.Frames, 1)
}

type fileSink struct {
	frame.CollectSink
	path string
}

func (s *fileSink) Close() error {
	_ = s.CollectSink.Close()
	return os.WriteFile(s.path, []byte("encoded"), 0o644)
}

func TestClientRemoveWithoutAudio(t *testing.T) {
	temp := t.TempDir()
	output := filepath.Join(t.TempDir(), "clip_cleaned.mp4")
	c := NewClient(Options{TempDir: temp}, StaticDetector{Regions: []Box{{X1: 0, Y1: 0, X2: 1, Y2: 1}}}, DiffuseInpainter{Radius: 2}, nil)

	c.probe = func(context.Context, string, string) (ffprobe.Result, error) {
		return ffprobe.Result{Streams: []ffprobe.Stream{{CodecType: "video", Width: 4, Height: 4, RFrameRate: "25/1", NBFrames: "2"}}}, nil
	}
	var sink *fileSink
	c.openSource = func(_ context.Context, _ string, w, h int) (frame.Source, error) {
		return &frame.SliceSource{Frames: []*image.RGBA{solidFrame(w, h, color.RGBA{A: 255}), solidFrame(w, h, color.RGBA{A: 255})}}, nil
	}
	c.openSink = func(_ context.Context, out string, _, _ int, fps float64) (frame.Sink, error) {
		assert.InDelta(t, 25.0, fps, 0.001)
		sink = &fileSink{path: out}
		return sink, nil
	}

	var last atomic.Value
	err := c.Remove(context.Background(), "in.mp4", output, func(e progress.Event) { last.Store(e.Percent) })
	require.NoError(t, err)
	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "encoded", string(data))
	assert.Len(t, sink.Frames, 2)
	assert.Equal(t, 100.0, last.Load())

	entries, err := os.ReadDir(temp)
	require.NoError(t, err)
	assert.Empty(t, entries, "per-job temp dir is removed")
}

func TestClientRemoveRejectsVideoWithoutStream(t *testing.T) {
	c := NewClient(Options{TempDir: t.TempDir()}, StaticDetector{}, DiffuseInpainter{}, nil)
	c.probe = func(context.Context, string, string) (ffprobe.Result, error) {
		return ffprobe.Result{Streams: []ffprobe.Stream{{CodecType: "audio"}}}, nil
	}
	err := c.Remove(context.Background(), "in.mp4", filepath.Join(t.TempDir(), "o.mp4"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no video stream")
}

func TestNewDetectorAndInpainterFromConfig(t *testing.T) {
	cfg := config.Default().Local
	cfg.Detector = config.DetectorStatic
	cfg.Regions = []config.Region{{X1: 1, Y1: 2, X2: 3, Y2: 4}}
	d, err := NewDetector(cfg)
	require.NoError(t, err)
	assert.Equal(t, StaticDetector{Regions: []Box{{X1: 1, Y1: 2, X2: 3, Y2: 4, Confidence: 1}}}, d)

	cfg.Detector = "bogus"
	_, err = NewDetector(cfg)
	assert.Error(t, err)

	in, err := NewInpainter(cfg)
	require.NoError(t, err)
	assert.Equal(t, DiffuseInpainter{Radius: 3}, in)

	cfg.Inpainter = config.InpainterIOPaint
	in, err = NewInpainter(cfg)
	require.NoError(t, err)
	assert.IsType(t, &IOPaintInpainter{}, in)
}

func TestModelAssetSkipsExisting(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.ModelsDir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Paths.ModelsDir, "best.pt"), []byte("weights"), 0o644))
	cfg.Local.DetectorModelURL = "http://127.0.0.1:1/never-called"

	asset := ModelAsset(&cfg)
	downloaded, err := fetch.Ensure(context.Background(), asset, false, nil, nil)
	require.NoError(t, err)
	assert.False(t, downloaded)
	assert.Equal(t, filepath.Join(cfg.Paths.ModelsDir, "best.pt"), asset.Dest)
}

func TestModelAssetDownloads(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("yolo-weights"))
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Paths.ModelsDir = t.TempDir()
	cfg.Local.DetectorModelURL = srv.URL + "/best.pt"
	asset := ModelAsset(&cfg)
	downloaded, err := fetch.Ensure(context.Background(), asset, false, nil, nil)
	require.NoError(t, err)
	assert.True(t, downloaded)
	data, err := os.ReadFile(asset.Dest)
	require.NoError(t, err)
	assert.Equal(t, "yolo-weights", string(data))
}

func TestClientDecodesRotatedVideoAtDisplaySize(t *testing.T) {
	c := NewClient(Options{TempDir: t.TempDir()}, StaticDetector{}, DiffuseInpainter{}, nil)
	c.probe = func(context.Context, string, string) (ffprobe.Result, error) {
		return ffprobe.Result{Streams: []ffprobe.Stream{{
			CodecType: "video", Width: 6, Height: 4, RFrameRate: "25/1", NBFrames: "1",
			SideData: []ffprobe.SideData{{Type: "Display Matrix", Rotation: -90}},
		}}}, nil
	}
	var srcSize, sinkSize image.Point
	c.openSource = func(_ context.Context, _ string, w, h int) (frame.Source, error) {
		srcSize = image.Pt(w, h)
		return &frame.SliceSource{Frames: []*image.RGBA{solidFrame(w, h, color.RGBA{A: 255})}}, nil
	}
	c.openSink = func(_ context.Context, out string, w, h int, _ float64) (frame.Sink, error) {
		sinkSize = image.Pt(w, h)
		return &fileSink{path: out}, nil
	}

	require.NoError(t, c.Remove(context.Background(), "in.mp4", filepath.Join(t.TempDir(), "o.mp4"), nil))
	assert.Equal(t, image.Pt(4, 6), srcSize)
	assert.Equal(t, image.Pt(4, 6), sinkSize)
}
