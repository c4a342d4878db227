package local

import (
	"path/filepath"
	"strings"

	"wmclean/internal/config"
	"wmclean/internal/fetch"
)

const defaultModelFile = "best.pt"

// ModelPath returns where the detector weights live.
func ModelPath(cfg *config.Config) string {
	if p := strings.TrimSpace(cfg.Local.DetectorModelPath); p != "" {
		return p
	}
	return filepath.Join(cfg.Paths.ModelsDir, defaultModelFile)
}

// ModelAsset describes the detector weights for the YOLO sidecar.
func ModelAsset(cfg *config.Config) fetch.Asset {
	return fetch.Asset{Name: "detector model", URL: cfg.Local.DetectorModelURL, Dest: ModelPath(cfg)}
}
