package guard

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/sys/unix"

	"wmclean/internal/services"
)

// ErrOutsideRoot reports a path that escapes the declared allowed root.
var ErrOutsideRoot = errors.New("path is outside the allowed root")

// Resolve returns the clean absolute form of path with symlinks in existing
// components resolved.
func Resolve(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", invalid("path is empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", invalid(fmt.Sprintf("resolve %q: %v", path, err))
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real, nil
	}
	return abs, nil
}

// Within reports whether path lies inside root. Both must be resolved.
func Within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// ValidateFile checks that path is a readable regular file with one of exts
// (lowercase, with leading dot). When root is non-empty the path must lie
// inside it. It returns the resolved path.
func ValidateFile(root, path string, exts []string) (string, error) {
	resolved, err := Resolve(path)
	if err != nil {
		return "", err
	}
	if err := checkRoot(root, resolved); err != nil {
		return "", err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", invalid("file not found: " + resolved)
		}
		return "", invalid(fmt.Sprintf("stat %s: %v", resolved, err))
	}
	if !info.Mode().IsRegular() {
		return "", invalid("not a regular file: " + resolved)
	}
	if len(exts) > 0 && !slices.Contains(exts, strings.ToLower(filepath.Ext(resolved))) {
		return "", invalid(fmt.Sprintf("unsupported file type %q", filepath.Ext(resolved)))
	}
	if err := unix.Access(resolved, unix.R_OK); err != nil {
		return "", invalid("file is not readable: " + resolved)
	}
	return resolved, nil
}

// ValidateDir checks a directory path. mustExist requires it to exist;
// writable requires write access when it exists. When root is non-empty the
// path must lie inside it. It returns the resolved path.
func ValidateDir(root, path string, mustExist, writable bool) (string, error) {
	resolved, err := Resolve(path)
	if err != nil {
		return "", err
	}
	if err := checkRoot(root, resolved); err != nil {
		return "", err
	}
	info, err := os.Stat(resolved)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if mustExist {
			return "", invalid("directory not found: " + resolved)
		}
		return resolved, nil
	case err != nil:
		return "", invalid(fmt.Sprintf("stat %s: %v", resolved, err))
	case !info.IsDir():
		return "", invalid("not a directory: " + resolved)
	}
	if writable {
		if err := unix.Access(resolved, unix.W_OK|unix.X_OK); err != nil {
			return "", invalid("directory is not writable: " + resolved)
		}
	}
	return resolved, nil
}

func checkRoot(root, resolved string) error {
	if strings.TrimSpace(root) == "" {
		return nil
	}
	rootResolved, err := Resolve(root)
	if err != nil {
		return err
	}
	if !Within(rootResolved, resolved) {
		return services.Wrap(services.ErrValidation, "guard", "check root",
			fmt.Sprintf("%s is not inside %s", resolved, rootResolved), ErrOutsideRoot)
	}
	return nil
}

func invalid(message string) error {
	return services.Wrap(services.ErrValidation, "guard", "validate path", message, nil)
}

var stemSeparators = strings.NewReplacer("/", "_", "\\", "_", "\x00", "_")

// FileStem returns the base name of path without its extension. Only path
// separators and NUL are replaced; the stem is otherwise kept as written.
func FileStem(path string) string {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "." || stem == string(filepath.Separator) {
		return ""
	}
	return stemSeparators.Replace(stem)
}
