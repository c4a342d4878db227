package enhance

import (
	"path"
	"path/filepath"
	"strings"

	"wmclean/internal/config"
	"wmclean/internal/fetch"
)

const defaultUpscalerModelFile = "RealESRGAN_x4plus.pth"

// ModelAsset describes the Real-ESRGAN weights used by the command upscaler.
// Without an explicit path the file lands in models_dir under the URL's name.
func ModelAsset(cfg *config.Config) fetch.Asset {
	dest := strings.TrimSpace(cfg.Enhance.UpscalerModelPath)
	if dest == "" {
		name := defaultUpscalerModelFile
		if base := path.Base(strings.TrimSpace(cfg.Enhance.UpscalerModelURL)); base != "." && path.Ext(base) != "" {
			name = base
		}
		dest = filepath.Join(cfg.Paths.ModelsDir, name)
	}
	return fetch.Asset{Name: "upscaler model", URL: cfg.Enhance.UpscalerModelURL, Dest: dest}
}
