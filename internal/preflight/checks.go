package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/dustin/go-humanize"

	"wmclean/internal/config"
	"wmclean/internal/deps"
	"wmclean/internal/guard"
	"wmclean/internal/remote"
)

// MinFreeBytes is the free space below which the temp directory check fails.
// Frame loops hold a full re-encoded copy of the video there.
var MinFreeBytes uint64 = 1 << 30

// CheckTokenConfigured verifies a plausible API token is set without
// contacting the API.
func CheckTokenConfigured(cfg *config.Config) Result {
	const name = "Replicate token"
	masked, err := guard.ValidateToken(cfg.Replicate.APIToken)
	if err != nil {
		return Result{Name: name, Detail: "missing or too short (set REPLICATE_API_TOKEN)"}
	}
	return Result{Name: name, Passed: true, Detail: masked + " (configured)"}
}

// CheckToken verifies the token against the API. It uses a 15-second timeout.
func CheckToken(ctx context.Context, cfg *config.Config) Result {
	return checkToken(ctx, cfg).in(CategoryCredentials)
}

func checkToken(ctx context.Context, cfg *config.Config) Result {
	const name = "Replicate token"
	masked, err := guard.ValidateToken(cfg.Replicate.APIToken)
	if err != nil {
		return Result{Name: name, Detail: "missing or too short (set REPLICATE_API_TOKEN)"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	client := remote.NewClient(remote.ConfigFrom(cfg))
	if err := client.CheckToken(checkCtx); err != nil {
		if errors.Is(err, remote.ErrInvalidToken) {
			return Result{Name: name, Detail: masked + " (rejected by API)"}
		}
		return Result{Name: name, Detail: summarizeNetworkError(err)}
	}
	return Result{Name: name, Passed: true, Detail: masked + " (valid)"}
}

// CheckSidecar verifies an HTTP service answers. Any response below 500
// counts as reachable since detection endpoints only accept POST.
func CheckSidecar(ctx context.Context, name, endpoint string) Result {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return Result{Name: name, Detail: "missing url"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", endpoint, err)}
	}
	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (%s)", endpoint, summarizeNetworkError(err))}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: HTTP %d)", endpoint, resp.StatusCode)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (reachable)", endpoint)}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckDiskSpace verifies at least minFree bytes are available at path.
func CheckDiskSpace(name, path string, minFree uint64) Result {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	free := st.Bavail * uint64(st.Bsize)
	if free < minFree {
		return Result{Name: name, Detail: fmt.Sprintf("%s free, need %s", humanize.IBytes(free), humanize.IBytes(minFree))}
	}
	return Result{Name: name, Passed: true, Detail: humanize.IBytes(free) + " free"}
}

// CheckSystemDeps evaluates the external binaries for the given config.
// The upscaler command is required only when it is the configured upscaler.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.FFmpegBinary(),
			Description: "Required for frame decoding, encoding, and audio remux",
			MinVersion:  cfg.FFmpeg.MinVersion,
		},
		{
			Name:        "FFprobe",
			Command:     cfg.FFprobeBinary(),
			Description: "Required for media inspection",
		},
		{
			Name:        "Upscaler",
			Command:     cfg.Enhance.UpscalerCommand,
			Description: "Super-resolution binary for enhancement",
			Optional:    cfg.Enhance.Upscaler != config.UpscalerCommand,
		},
		{
			Name:        "Face restorer",
			Command:     cfg.Enhance.RestorerCommand,
			Description: "CodeFormer binary for face restoration after upscaling",
			Optional:    !cfg.Enhance.RestoreFaces,
		},
	}
	return deps.CheckBinaries(ctx, requirements)
}

func summarizeNetworkError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out (service unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timed out (service unreachable)"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return "unreachable: " + opErr.Err.Error()
	}
	return err.Error()
}
