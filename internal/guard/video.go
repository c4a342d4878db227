package guard

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"wmclean/internal/services"
)

// VerifyVideo confirms path exists, carries a supported extension, and is not
// empty. It returns the file size.
func VerifyVideo(path string, exts []string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, rejectVideo("file not found")
		}
		return 0, rejectVideo(err.Error())
	}
	if info.IsDir() {
		return 0, rejectVideo("path is a directory")
	}
	ext := strings.ToLower(filepath.Ext(path))
	if !slices.Contains(exts, ext) {
		return 0, rejectVideo(fmt.Sprintf("unsupported format %q; supported: %s", ext, strings.Join(exts, ", ")))
	}
	if info.Size() == 0 {
		return 0, rejectVideo("video file is empty")
	}
	return info.Size(), nil
}

func rejectVideo(reason string) error {
	return services.Wrap(services.ErrValidation, "guard", "verify video", reason, nil)
}
