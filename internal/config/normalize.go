package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeProcessing()
	c.normalizeReplicate()
	c.normalizeLocal()
	c.normalizeEnhance()
	if err := c.normalizeFFmpeg(); err != nil {
		return err
	}
	c.normalizeWatch()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.TempDir) == "" {
		c.Paths.TempDir = defaultTempDir()
	}
	fields := []struct {
		name  string
		value *string
	}{
		{"paths.output_dir", &c.Paths.OutputDir},
		{"paths.temp_dir", &c.Paths.TempDir},
		{"paths.log_dir", &c.Paths.LogDir},
		{"paths.models_dir", &c.Paths.ModelsDir},
		{"paths.state_dir", &c.Paths.StateDir},
		{"paths.allowed_root", &c.Paths.AllowedRoot},
		{"watch.inbox_dir", &c.Watch.InboxDir},
		{"local.detector_model_path", &c.Local.DetectorModelPath},
		{"enhance.upscaler_model_path", &c.Enhance.UpscalerModelPath},
	}
	for _, field := range fields {
		if *field.value, err = expandPath(strings.TrimSpace(*field.value)); err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
	}
	return nil
}

func (c *Config) normalizeProcessing() {
	method := strings.ToLower(strings.TrimSpace(c.Processing.Method))
	switch method {
	case "", "replicate", "api":
		method = MethodRemote
	case "local", "local-gpu", "gpu":
		method = MethodLocalGPU
	}
	c.Processing.Method = method

	formats := make([]string, 0, len(c.Processing.SupportedFormats))
	seen := make(map[string]struct{}, len(c.Processing.SupportedFormats))
	for _, format := range c.Processing.SupportedFormats {
		format = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(format)), ".")
		if format == "" {
			continue
		}
		if _, ok := seen[format]; ok {
			continue
		}
		seen[format] = struct{}{}
		formats = append(formats, format)
	}
	if len(formats) == 0 {
		formats = defaultSupportedFormats()
	}
	c.Processing.SupportedFormats = formats
}

func (c *Config) normalizeReplicate() {
	c.Replicate.APIToken = strings.TrimSpace(c.Replicate.APIToken)
	if c.Replicate.APIToken == "" {
		if value, ok := os.LookupEnv("REPLICATE_API_TOKEN"); ok {
			c.Replicate.APIToken = strings.TrimSpace(value)
		}
	}
	c.Replicate.BaseURL = strings.TrimRight(strings.TrimSpace(c.Replicate.BaseURL), "/")
	if c.Replicate.BaseURL == "" {
		c.Replicate.BaseURL = defaultReplicateBaseURL
	}
	c.Replicate.Model = strings.TrimSpace(c.Replicate.Model)
	if c.Replicate.Model == "" {
		c.Replicate.Model = defaultReplicateModel
	}
	c.Replicate.Version = strings.TrimSpace(c.Replicate.Version)
	if c.Replicate.PollIntervalSeconds <= 0 {
		c.Replicate.PollIntervalSeconds = defaultPollIntervalSeconds
	}
	if c.Replicate.RequestTimeoutSeconds <= 0 {
		c.Replicate.RequestTimeoutSeconds = defaultRequestTimeoutSeconds
	}
	if c.Replicate.DownloadTimeoutSeconds <= 0 {
		c.Replicate.DownloadTimeoutSeconds = defaultDownloadTimeoutSeconds
	}
	if c.Replicate.PredictionTimeoutSeconds <= 0 {
		c.Replicate.PredictionTimeoutSeconds = defaultPredictionTimeoutSeconds
	}
}

func (c *Config) normalizeLocal() {
	c.Local.Detector = strings.ToLower(strings.TrimSpace(c.Local.Detector))
	if c.Local.Detector == "" {
		c.Local.Detector = defaultDetector
	}
	c.Local.Inpainter = strings.ToLower(strings.TrimSpace(c.Local.Inpainter))
	if c.Local.Inpainter == "" {
		c.Local.Inpainter = defaultInpainter
	}
	c.Local.DetectorURL = strings.TrimSpace(c.Local.DetectorURL)
	c.Local.IOPaintURL = strings.TrimRight(strings.TrimSpace(c.Local.IOPaintURL), "/")
	c.Local.IOPaintModel = strings.TrimSpace(c.Local.IOPaintModel)
	if c.Local.InpaintRadius <= 0 {
		c.Local.InpaintRadius = defaultInpaintRadius
	}
	if c.Local.RequestTimeoutSeconds <= 0 {
		c.Local.RequestTimeoutSeconds = defaultLocalTimeoutSeconds
	}
	c.Local.VideoCodec = strings.TrimSpace(c.Local.VideoCodec)
	if c.Local.VideoCodec == "" {
		c.Local.VideoCodec = defaultVideoCodec
	}
}

func (c *Config) normalizeEnhance() {
	c.Enhance.Upscaler = strings.ToLower(strings.TrimSpace(c.Enhance.Upscaler))
	if c.Enhance.Upscaler == "" {
		c.Enhance.Upscaler = defaultUpscaler
	}
	c.Enhance.Interpolation = strings.ToLower(strings.TrimSpace(c.Enhance.Interpolation))
	if c.Enhance.Interpolation == "" {
		c.Enhance.Interpolation = defaultInterpolation
	}
	c.Enhance.UpscalerCommand = strings.TrimSpace(c.Enhance.UpscalerCommand)
	c.Enhance.UpscalerModel = strings.TrimSpace(c.Enhance.UpscalerModel)
	c.Enhance.UpscalerModelURL = strings.TrimSpace(c.Enhance.UpscalerModelURL)
	c.Enhance.RestorerCommand = strings.TrimSpace(c.Enhance.RestorerCommand)
	if c.Enhance.Scale == 0 {
		c.Enhance.Scale = defaultEnhanceScale
	}
}

func (c *Config) normalizeFFmpeg() error {
	c.FFmpeg.FFmpegBinary = strings.TrimSpace(c.FFmpeg.FFmpegBinary)
	if c.FFmpeg.FFmpegBinary == "" {
		c.FFmpeg.FFmpegBinary = "ffmpeg"
	}
	c.FFmpeg.FFprobeBinary = strings.TrimSpace(c.FFmpeg.FFprobeBinary)
	if c.FFmpeg.FFprobeBinary == "" {
		c.FFmpeg.FFprobeBinary = "ffprobe"
	}
	c.FFmpeg.MinVersion = strings.TrimPrefix(strings.TrimSpace(c.FFmpeg.MinVersion), "v")
	var err error
	if c.FFmpeg.BundleDir, err = expandPath(strings.TrimSpace(c.FFmpeg.BundleDir)); err != nil {
		return fmt.Errorf("ffmpeg.bundle_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeWatch() {
	c.Watch.Schedule = strings.TrimSpace(c.Watch.Schedule)
	if c.Watch.DebounceSeconds < 0 {
		c.Watch.DebounceSeconds = 0
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeoutSeconds <= 0 {
		c.Notifications.RequestTimeoutSeconds = defaultNtfyTimeoutSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
