package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/subosito/gotenv"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	OutputDir   string `toml:"output_dir"`
	TempDir     string `toml:"temp_dir"`
	LogDir      string `toml:"log_dir"`
	ModelsDir   string `toml:"models_dir"`
	StateDir    string `toml:"state_dir"`
	AllowedRoot string `toml:"allowed_root"`
}

// Processing contains settings shared by every removal method.
type Processing struct {
	Method             string   `toml:"method"`
	SupportedFormats   []string `toml:"supported_formats"`
	MaxDurationSeconds int      `toml:"max_duration_seconds"`
	Enhance            bool     `toml:"enhance"`
}

// Replicate contains configuration for the hosted prediction API.
type Replicate struct {
	APIToken                 string `toml:"api_token"`
	BaseURL                  string `toml:"base_url"`
	Model                    string `toml:"model"`
	Version                  string `toml:"version"`
	MaxUploadMB              int    `toml:"max_upload_mb"`
	InlineUploadMB           int    `toml:"inline_upload_mb"`
	PollIntervalSeconds      int    `toml:"poll_interval_seconds"`
	PredictionTimeoutSeconds int    `toml:"prediction_timeout_seconds"`
	RequestTimeoutSeconds    int    `toml:"request_timeout_seconds"`
	DownloadTimeoutSeconds   int    `toml:"download_timeout_seconds"`
}

// Region is a fixed watermark rectangle in frame pixel coordinates.
type Region struct {
	X1 int `toml:"x1"`
	Y1 int `toml:"y1"`
	X2 int `toml:"x2"`
	Y2 int `toml:"y2"`
}

// Local contains configuration for the local detect-and-inpaint path.
// Detector is "http" (YOLO sidecar) or "static"; Inpainter is "diffuse"
// (in-process) or "iopaint".
type Local struct {
	Detector              string   `toml:"detector"`
	DetectorURL           string   `toml:"detector_url"`
	DetectorModelPath     string   `toml:"detector_model_path"`
	DetectorModelURL      string   `toml:"detector_model_url"`
	ConfidenceThreshold   float64  `toml:"confidence_threshold"`
	IoUThreshold          float64  `toml:"iou_threshold"`
	Regions               []Region `toml:"regions"`
	Inpainter             string   `toml:"inpainter"`
	InpaintRadius         int      `toml:"inpaint_radius"`
	IOPaintURL            string   `toml:"iopaint_url"`
	IOPaintModel          string   `toml:"iopaint_model"`
	RequestTimeoutSeconds int      `toml:"request_timeout_seconds"`
	VideoCodec            string   `toml:"video_codec"`
}

// Enhance contains configuration for the upscaling pipeline.
type Enhance struct {
	Scale           int    `toml:"scale"`
	Upscaler        string `toml:"upscaler"`
	UpscalerCommand string `toml:"upscaler_command"`
	UpscalerModel   string `toml:"upscaler_model"`
	Interpolation   string `toml:"interpolation"`

	// UpscalerModelURL and UpscalerModelPath locate the Real-ESRGAN weights
	// fetched by `models fetch`.
	UpscalerModelURL  string `toml:"upscaler_model_url"`
	UpscalerModelPath string `toml:"upscaler_model_path"`

	// RestoreFaces runs a face-restoration binary over every upscaled frame.
	RestoreFaces    bool    `toml:"restore_faces"`
	RestorerCommand string  `toml:"restorer_command"`
	Fidelity        float64 `toml:"fidelity"`
}

// FFmpeg contains configuration for the external media transcoder.
type FFmpeg struct {
	FFmpegBinary  string `toml:"ffmpeg_binary"`
	FFprobeBinary string `toml:"ffprobe_binary"`
	MinVersion    string `toml:"min_version"`
	BundleURL     string `toml:"bundle_url"`
	BundleDir     string `toml:"bundle_dir"`
}

// Watch contains configuration for inbox folder processing.
type Watch struct {
	InboxDir        string `toml:"inbox_dir"`
	Schedule        string `toml:"schedule"`
	DebounceSeconds int    `toml:"debounce_seconds"`
}

// History contains configuration for the job outcome ledger.
type History struct {
	Enabled bool `toml:"enabled"`
}

// Notifications contains configuration for ntfy alerts.
type Notifications struct {
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	NotifyEachVideo       bool   `toml:"notify_each_video"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for wmclean.
//
// Configuration sections by subsystem:
//   - Paths: output, temp, log, model, and state directories
//   - Processing: default method and accepted container formats
//   - Replicate: hosted prediction API access and limits
//   - Local: detector and inpainter selection for the frame loop
//   - Enhance: upscaling and face-restoration pipeline
//   - FFmpeg: transcoder binaries and bundle download
//   - Watch: inbox processing
//   - History: job outcome ledger
//   - Notifications: ntfy alerts for finished jobs and batches
//   - Logging: log format, level, and retention
type Config struct {
	Paths      Paths      `toml:"paths"`
	Processing Processing `toml:"processing"`
	Replicate  Replicate  `toml:"replicate"`
	Local      Local      `toml:"local"`
	Enhance    Enhance    `toml:"enhance"`
	FFmpeg     FFmpeg     `toml:"ffmpeg"`
	Watch      Watch      `toml:"watch"`
	History       History       `toml:"history"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`

	// DotEnvPath records the .env file consulted during Load, if any.
	DotEnvPath string `toml:"-"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/wmclean/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	envPath, err := loadDotEnv()
	if err != nil {
		return nil, "", false, err
	}
	cfg.DotEnvPath = envPath

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("wmclean.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// dotEnvCandidates lists where a .env file is looked for: the working
// directory, the executable's directory, then its parent.
func dotEnvCandidates() []string {
	candidates := []string{".env"}
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		candidates = append(candidates, filepath.Join(dir, ".env"), filepath.Join(filepath.Dir(dir), ".env"))
	}
	return candidates
}

// loadDotEnv loads the first .env file found. Existing environment variables
// are never overwritten.
func loadDotEnv() (string, error) {
	if strings.TrimSpace(os.Getenv("WMCLEAN_NO_DOTENV")) != "" {
		return "", nil
	}
	for _, candidate := range dotEnvCandidates() {
		info, err := os.Stat(candidate)
		if err != nil || info.IsDir() {
			continue
		}
		if err := gotenv.Load(candidate); err != nil {
			return "", fmt.Errorf("load %s: %w", candidate, err)
		}
		abs, err := filepath.Abs(candidate)
		if err != nil {
			abs = candidate
		}
		return abs, nil
	}
	return "", nil
}

// EnsureDirectories creates required directories for processing.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.OutputDir, c.Paths.TempDir, c.Paths.LogDir, c.Paths.StateDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	// Models are only needed by the local path.
	_ = os.MkdirAll(c.Paths.ModelsDir, 0o755)
	return nil
}

// FFmpegBinary returns the ffmpeg executable, preferring a downloaded bundle.
func (c *Config) FFmpegBinary() string {
	return c.bundledOr("ffmpeg", c.FFmpeg.FFmpegBinary)
}

// FFprobeBinary returns the ffprobe executable, preferring a downloaded bundle.
func (c *Config) FFprobeBinary() string {
	return c.bundledOr("ffprobe", c.FFmpeg.FFprobeBinary)
}

func (c *Config) bundledOr(name, configured string) string {
	configured = strings.TrimSpace(configured)
	if configured != "" && configured != name {
		return configured
	}
	if dir := strings.TrimSpace(c.FFmpeg.BundleDir); dir != "" {
		for _, candidate := range []string{filepath.Join(dir, name), filepath.Join(dir, name+".exe")} {
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate
			}
		}
	}
	return name
}

// HistoryPath returns the SQLite ledger location.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.StateDir, "history.db")
}

// LockPath returns the single-worker lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "wmclean.lock")
}

// IsSupportedFormat reports whether the extension (with or without a leading
// dot, any case) is an accepted input container.
func (c *Config) IsSupportedFormat(ext string) bool {
	ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
	for _, format := range c.Processing.SupportedFormats {
		if format == ext {
			return true
		}
	}
	return false
}

// SupportedExtensions returns the accepted extensions with a leading dot.
func (c *Config) SupportedExtensions() []string {
	exts := make([]string, 0, len(c.Processing.SupportedFormats))
	for _, format := range c.Processing.SupportedFormats {
		exts = append(exts, "."+format)
	}
	return exts
}

// MaxUploadBytes returns the hard size ceiling for remote processing.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Replicate.MaxUploadMB) * 1024 * 1024
}

// InlineUploadBytes returns the size under which the inline payload fallback is tried.
func (c *Config) InlineUploadBytes() int64 {
	return int64(c.Replicate.InlineUploadMB) * 1024 * 1024
}

// PollInterval returns the prediction polling interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Replicate.PollIntervalSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func defaultTempDir() string {
	if base, ok := os.LookupEnv("XDG_CACHE_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "wmclean", "tmp")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "wmclean")
	}
	return filepath.Join(home, ".cache", "wmclean", "tmp")
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
