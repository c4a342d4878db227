package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

var versionPattern = regexp.MustCompile(`(?i)version\s+n?(\d+(?:\.\d+){0,2})`)

// ErrVersionUnknown reports that the version banner could not be parsed.
var ErrVersionUnknown = errors.New("ffmpeg version unknown")

// Version runs `<binary> -version` and parses the release number.
func Version(ctx context.Context, binary string) (*semver.Version, error) {
	out, err := exec.CommandContext(ctx, binaryOrDefault(binary), "-hide_banner", "-version").Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg -version: %w", err)
	}
	return ParseVersion(string(out))
}

// ParseVersion extracts the release number from an ffmpeg -version banner.
// Git builds ("N-112345-g...") have no release number and return ErrVersionUnknown.
func ParseVersion(banner string) (*semver.Version, error) {
	firstLine, _, _ := strings.Cut(banner, "\n")
	match := versionPattern.FindStringSubmatch(firstLine)
	if match == nil {
		return nil, ErrVersionUnknown
	}
	v, err := semver.NewVersion(match[1])
	if err != nil {
		return nil, fmt.Errorf("parse ffmpeg version %q: %w", match[1], err)
	}
	return v, nil
}

// CheckMinimum returns an error when v is older than minimum. An empty
// minimum or an unknown version passes.
func CheckMinimum(v *semver.Version, minimum string) error {
	minimum = strings.TrimSpace(minimum)
	if v == nil || minimum == "" {
		return nil
	}
	constraint, err := semver.NewConstraint(">= " + minimum)
	if err != nil {
		return fmt.Errorf("ffmpeg minimum version %q: %w", minimum, err)
	}
	if !constraint.Check(v) {
		return fmt.Errorf("ffmpeg %s is older than required %s", v, minimum)
	}
	return nil
}

func binaryOrDefault(binary string) string {
	if b := strings.TrimSpace(binary); b != "" {
		return b
	}
	return "ffmpeg"
}
