package deps

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/mholt/archives"

	"wmclean/internal/fetch"
	"wmclean/internal/logging"
	"wmclean/internal/progress"
)

// bundleBinaries lists the executables pulled out of an ffmpeg archive.
var bundleBinaries = []string{"ffmpeg", "ffprobe"}

// InstallFFmpegBundle downloads the archive at url and extracts ffmpeg and
// ffprobe into dir. It returns the installed paths.
func InstallFFmpegBundle(ctx context.Context, logger *slog.Logger, url, dir string, report progress.Func) ([]string, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("ffmpeg bundle url is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create bundle dir: %w", err)
	}
	archivePath := filepath.Join(dir, path.Base(url))
	logger = logging.NewComponentLogger(logger, "deps")
	logger.Info("downloading ffmpeg bundle", logging.String("url", url), logging.String("dest", archivePath))

	if _, err := fetch.Download(ctx, url, archivePath, fetch.Options{Progress: report}); err != nil {
		return nil, err
	}
	defer os.Remove(archivePath)

	installed, err := ExtractBinaries(ctx, archivePath, dir)
	if err != nil {
		return nil, err
	}
	logger.Info("ffmpeg bundle installed", logging.String("dir", dir), logging.Int("binaries", len(installed)))
	return installed, nil
}

// ExtractBinaries pulls ffmpeg and ffprobe (with or without .exe) out of the
// archive at archivePath into dir, flattening any nested layout.
func ExtractBinaries(ctx context.Context, archivePath, dir string) ([]string, error) {
	file, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer file.Close()

	format, stream, err := archives.Identify(ctx, archivePath, file)
	if err != nil {
		return nil, fmt.Errorf("identify archive: %w", err)
	}
	extractor, ok := format.(archives.Extractor)
	if !ok {
		return nil, fmt.Errorf("archive format %s cannot be extracted", format.Extension())
	}

	var installed []string
	err = extractor.Extract(ctx, stream, func(ctx context.Context, info archives.FileInfo) error {
		if info.IsDir() {
			return nil
		}
		name := path.Base(info.NameInArchive)
		if !wantedBinary(name) {
			return nil
		}
		dest := filepath.Join(dir, name)
		if err := copyEntry(info, dest); err != nil {
			return err
		}
		installed = append(installed, dest)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("extract archive: %w", err)
	}
	if len(installed) == 0 {
		return nil, fmt.Errorf("archive %s contains no ffmpeg binaries", filepath.Base(archivePath))
	}
	return installed, nil
}

func wantedBinary(name string) bool {
	base := strings.TrimSuffix(strings.ToLower(name), ".exe")
	return slices.Contains(bundleBinaries, base)
}

func copyEntry(info archives.FileInfo, dest string) error {
	src, err := info.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", info.NameInArchive, err)
	}
	defer src.Close()
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return fmt.Errorf("write %s: %w", dest, err)
	}
	return out.Close()
}
