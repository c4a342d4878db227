package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"
	"strings"
)

// Decoder streams raw RGBA frames out of a video file.
type Decoder struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	reader *bufio.Reader
	stderr bytes.Buffer
	width  int
	height int
	done   bool
}

// NewDecoder starts ffmpeg decoding input to width x height RGBA frames.
// ffmpeg applies the stream's display rotation, so width and height must be
// the rotated size (ffprobe.Stream.DisplaySize), not the coded one.
func NewDecoder(ctx context.Context, binary, input string, width, height int) (*Decoder, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("ffmpeg decoder: invalid frame size %dx%d", width, height)
	}
	d := &Decoder{width: width, height: height}
	d.cmd = exec.CommandContext(ctx, binaryOrDefault(binary),
		"-v", "error", "-i", input,
		"-f", "rawvideo", "-pix_fmt", "rgba", "-")
	d.cmd.Stderr = &d.stderr
	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg decoder: %w", err)
	}
	d.stdout = stdout
	d.reader = bufio.NewReaderSize(stdout, width*height*4)
	if err := d.cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg decoder: start: %w", err)
	}
	return d, nil
}

// Next returns the next frame or io.EOF.
func (d *Decoder) Next() (*image.RGBA, error) {
	if d.done {
		return nil, io.EOF
	}
	img := image.NewRGBA(image.Rect(0, 0, d.width, d.height))
	if _, err := io.ReadFull(d.reader, img.Pix); err != nil {
		d.done = true
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("ffmpeg decoder: truncated frame")
		}
		return nil, fmt.Errorf("ffmpeg decoder: read: %w", err)
	}
	return img, nil
}

// Close stops the decoder and reaps the process.
func (d *Decoder) Close() error {
	d.done = true
	_, _ = io.Copy(io.Discard, d.stdout)
	if err := d.cmd.Wait(); err != nil {
		if detail := strings.TrimSpace(d.stderr.String()); detail != "" {
			return fmt.Errorf("ffmpeg decoder: %w: %s", err, lastLine(detail))
		}
		return fmt.Errorf("ffmpeg decoder: %w", err)
	}
	return nil
}

// EncoderOptions configures an Encoder.
type EncoderOptions struct {
	Width  int
	Height int
	FPS    float64
	Codec  string
}

// Encoder writes raw RGBA frames into a video file.
type Encoder struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	writer *bufio.Writer
	stderr bytes.Buffer
	width  int
	height int
}

// NewEncoder starts ffmpeg writing output from raw RGBA frames on stdin.
func NewEncoder(ctx context.Context, binary, output string, opts EncoderOptions) (*Encoder, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("ffmpeg encoder: invalid frame size %dx%d", opts.Width, opts.Height)
	}
	fps := opts.FPS
	if fps <= 0 {
		fps = 30
	}
	codec := strings.TrimSpace(opts.Codec)
	if codec == "" {
		codec = "libx264"
	}
	e := &Encoder{width: opts.Width, height: opts.Height}
	e.cmd = exec.CommandContext(ctx, binaryOrDefault(binary),
		"-y", "-v", "error",
		"-f", "rawvideo", "-pix_fmt", "rgba",
		"-s", strconv.Itoa(opts.Width)+"x"+strconv.Itoa(opts.Height),
		"-r", strconv.FormatFloat(fps, 'f', 3, 64),
		"-i", "-",
		"-vf", "pad=ceil(iw/2)*2:ceil(ih/2)*2",
		"-c:v", codec, "-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		output)
	e.cmd.Stderr = &e.stderr
	stdin, err := e.cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg encoder: %w", err)
	}
	e.stdin = stdin
	e.writer = bufio.NewWriterSize(stdin, opts.Width*opts.Height*4)
	if err := e.cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg encoder: start: %w", err)
	}
	return e, nil
}

// Write appends one frame. Frames must match the encoder size.
func (e *Encoder) Write(img *image.RGBA) error {
	b := img.Bounds()
	if b.Dx() != e.width || b.Dy() != e.height {
		return fmt.Errorf("ffmpeg encoder: frame %dx%d does not match %dx%d", b.Dx(), b.Dy(), e.width, e.height)
	}
	rowBytes := e.width * 4
	for y := b.Min.Y; y < b.Max.Y; y++ {
		start := img.PixOffset(b.Min.X, y)
		if _, err := e.writer.Write(img.Pix[start : start+rowBytes]); err != nil {
			return fmt.Errorf("ffmpeg encoder: write: %w", err)
		}
	}
	return nil
}

// Close flushes pending frames and waits for ffmpeg to finish the file.
func (e *Encoder) Close() error {
	flushErr := e.writer.Flush()
	closeErr := e.stdin.Close()
	if err := e.cmd.Wait(); err != nil {
		if detail := strings.TrimSpace(e.stderr.String()); detail != "" {
			return fmt.Errorf("ffmpeg encoder: %w: %s", err, lastLine(detail))
		}
		return fmt.Errorf("ffmpeg encoder: %w", err)
	}
	if flushErr != nil {
		return fmt.Errorf("ffmpeg encoder: flush: %w", flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("ffmpeg encoder: %w", closeErr)
	}
	return nil
}
