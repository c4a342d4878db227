package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// ExtractAudio writes the first audio stream of input to output re-encoded as AAC.
func ExtractAudio(ctx context.Context, binary, input, output string) error {
	return run(ctx, binary, "-y", "-v", "error", "-i", input, "-vn", "-map", "0:a:0", "-c:a", "aac", "-b:a", "192k", output)
}

// MergeAudio muxes the video stream of video with the audio stream of audio
// into output without re-encoding video.
func MergeAudio(ctx context.Context, binary, video, audio, output string) error {
	return run(ctx, binary, "-y", "-v", "error",
		"-i", video, "-i", audio,
		"-map", "0:v:0", "-map", "1:a:0",
		"-c:v", "copy", "-c:a", "copy",
		"-shortest", "-movflags", "+faststart",
		output)
}

// Remux copies video (and audio when present) from input into an mp4 output.
func Remux(ctx context.Context, binary, input, output string) error {
	return run(ctx, binary, "-y", "-v", "error", "-i", input, "-c", "copy", "-movflags", "+faststart", output)
}

func run(ctx context.Context, binary string, args ...string) error {
	cmd := exec.CommandContext(ctx, binaryOrDefault(binary), args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return fmt.Errorf("ffmpeg: %w: %s", err, lastLine(detail))
		}
		return fmt.Errorf("ffmpeg: %w", err)
	}
	return nil
}

func lastLine(s string) string {
	if idx := strings.LastIndexByte(s, '\n'); idx >= 0 {
		return s[idx+1:]
	}
	return s
}
