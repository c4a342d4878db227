package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// Result represents the parsed output from an ffprobe inspection.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes a single stream in the media container.
type Stream struct {
	Index        int    `json:"index"`
	CodecName    string `json:"codec_name"`
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	PixFmt       string `json:"pix_fmt"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	NBFrames     string `json:"nb_frames"`
	Duration     string `json:"duration"`
	BitRate      string `json:"bit_rate"`
	SampleRate   string `json:"sample_rate"`
	Channels     int    `json:"channels"`

	Tags     map[string]string `json:"tags,omitempty"`
	SideData []SideData        `json:"side_data_list,omitempty"`
}

// SideData is one entry of a stream's side_data_list. Only the display matrix
// rotation is decoded.
type SideData struct {
	Type     string  `json:"side_data_type"`
	Rotation float64 `json:"rotation"`
}

// Format captures container-level metadata extracted by ffprobe.
type Format struct {
	Filename   string `json:"filename"`
	NBStreams  int    `json:"nb_streams"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
	FormatName string `json:"format_name"`
}

// Inspect executes ffprobe against the provided path and decodes the JSON response.
func Inspect(ctx context.Context, binary string, path string) (Result, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, errors.New("ffprobe inspect: empty path")
	}

	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Result{}, fmt.Errorf("ffprobe inspect: %w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return Result{}, fmt.Errorf("ffprobe inspect: %w", err)
	}
	return Parse(output)
}

// Parse decodes ffprobe JSON output.
func Parse(data []byte) (Result, error) {
	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return Result{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return result, nil
}

// VideoStream returns the first video stream.
func (r Result) VideoStream() (Stream, bool) {
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "video") {
			return stream, true
		}
	}
	return Stream{}, false
}

// HasAudio reports whether any audio stream is present.
func (r Result) HasAudio() bool {
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "audio") {
			return true
		}
	}
	return false
}

// DurationSeconds returns the container duration in seconds, falling back to
// the video stream duration. Zero means unknown.
func (r Result) DurationSeconds() float64 {
	if d := parseFloat(r.Format.Duration); d > 0 {
		return d
	}
	if v, ok := r.VideoStream(); ok {
		if d := parseFloat(v.Duration); d > 0 {
			return d
		}
	}
	return 0
}

// SizeBytes returns the reported container size in bytes, or 0 when unavailable.
func (r Result) SizeBytes() int64 {
	size := parseFloat(r.Format.Size)
	if size <= 0 {
		return 0
	}
	return int64(size)
}

// FPS returns the video frame rate, preferring avg_frame_rate. Zero means unknown.
func (s Stream) FPS() float64 {
	if fps := parseRational(s.AvgFrameRate); fps > 0 {
		return fps
	}
	return parseRational(s.RFrameRate)
}

// Rotation returns the clockwise display rotation in degrees, one of 0, 90,
// 180 or 270. The display matrix wins over the legacy rotate tag.
func (s Stream) Rotation() int {
	degrees, found := 0.0, false
	for _, sd := range s.SideData {
		if strings.EqualFold(sd.Type, "Display Matrix") {
			// ffprobe reports the matrix angle counter-clockwise.
			degrees, found = -sd.Rotation, true
			break
		}
	}
	if !found {
		degrees = parseFloat(s.Tags["rotate"])
	}
	quarter := int(math.Round(degrees/90)) % 4
	if quarter < 0 {
		quarter += 4
	}
	return quarter * 90
}

// DisplaySize returns the frame size after rotation, which is what ffmpeg
// emits when it decodes with autorotation enabled.
func (s Stream) DisplaySize() (width, height int) {
	if r := s.Rotation(); r == 90 || r == 270 {
		return s.Height, s.Width
	}
	return s.Width, s.Height
}

// FrameCount returns nb_frames when reported, otherwise an estimate from
// duration and frame rate. Zero means unknown.
func (r Result) FrameCount() int {
	v, ok := r.VideoStream()
	if !ok {
		return 0
	}
	if n, err := strconv.Atoi(strings.TrimSpace(v.NBFrames)); err == nil && n > 0 {
		return n
	}
	fps := v.FPS()
	duration := r.DurationSeconds()
	if fps <= 0 || duration <= 0 {
		return 0
	}
	return int(math.Round(fps * duration))
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	parsed, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return 0
	}
	return parsed
}

// parseRational reads values like "30000/1001" or "25".
func parseRational(value string) float64 {
	num, den, found := strings.Cut(strings.TrimSpace(value), "/")
	if !found {
		return parseFloat(num)
	}
	n := parseFloat(num)
	d := parseFloat(den)
	if d == 0 {
		return 0
	}
	return n / d
}
