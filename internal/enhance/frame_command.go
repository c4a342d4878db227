package enhance

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
)

// runFrameCommand writes img to in.png in a scratch directory, runs binary
// with the arguments built from the in and out paths, and reads out.png back
// at size want. A result of another size is rescaled.
func runFrameCommand(ctx context.Context, workDir, binary string, args func(in, out string) []string, img *image.RGBA, want image.Point) (*image.RGBA, error) {
	if workDir != "" {
		if err := os.MkdirAll(workDir, 0o755); err != nil {
			return nil, fmt.Errorf("frame dir: %w", err)
		}
	}
	dir, err := os.MkdirTemp(workDir, "frame-")
	if err != nil {
		return nil, fmt.Errorf("frame dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "in.png")
	out := filepath.Join(dir, "out.png")
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	if err := os.WriteFile(in, buf.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("write frame: %w", err)
	}

	cmd := exec.CommandContext(ctx, binary, args(in, out)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if detail := strings.TrimSpace(stderr.String()); detail != "" {
			return nil, fmt.Errorf("%s: %w: %s", filepath.Base(binary), err, detail)
		}
		return nil, fmt.Errorf("%s: %w", filepath.Base(binary), err)
	}

	file, err := os.Open(out)
	if err != nil {
		return nil, fmt.Errorf("read %s output: %w", filepath.Base(binary), err)
	}
	defer file.Close()
	decoded, err := png.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode %s output: %w", filepath.Base(binary), err)
	}
	result := image.NewRGBA(image.Rectangle{Max: want})
	if decoded.Bounds().Size() == want {
		draw.Draw(result, result.Bounds(), decoded, decoded.Bounds().Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(result, result.Bounds(), decoded, decoded.Bounds(), draw.Src, nil)
	}
	return result, nil
}
