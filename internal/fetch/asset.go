package fetch

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"wmclean/internal/logging"
	"wmclean/internal/progress"
	"wmclean/internal/services"
)

// Asset is a file downloaded once into a fixed location, such as model
// weights.
type Asset struct {
	// Name labels the asset in logs and errors, e.g. "detector model".
	Name string
	URL  string
	Dest string
}

// Ensure downloads asset unless a non-empty file already sits at its Dest.
// force replaces an existing file. It reports whether a download happened.
func Ensure(ctx context.Context, asset Asset, force bool, logger *slog.Logger, report progress.Func) (bool, error) {
	logger = logging.NewComponentLogger(logger, "models")
	if info, err := os.Stat(asset.Dest); err == nil && info.Size() > 0 && !force {
		logger.Info(asset.Name+" already present", logging.String("path", asset.Dest), logging.Size("size", info.Size()))
		return false, nil
	}
	source := strings.TrimSpace(asset.URL)
	if source == "" {
		return false, services.Wrap(services.ErrConfiguration, "models", "fetch", asset.Name+" has no download URL", nil)
	}
	logger.Info("downloading "+asset.Name, logging.String("url", source), logging.String("path", asset.Dest))
	written, err := Download(ctx, source, asset.Dest, Options{Timeout: 30 * time.Minute, Progress: report})
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, services.Wrap(services.ErrExternalTool, "models", "fetch", source, err)
	}
	logger.Info(asset.Name+" downloaded", logging.String("path", asset.Dest), logging.Size("size", written))
	return true, nil
}
