package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"

	"github.com/Masterminds/semver/v3"
	"github.com/robfig/cron/v3"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateProcessing(); err != nil {
		return err
	}
	if err := c.validateReplicate(); err != nil {
		return err
	}
	if err := c.validateLocal(); err != nil {
		return err
	}
	if err := c.validateEnhance(); err != nil {
		return err
	}
	if err := c.validateFFmpeg(); err != nil {
		return err
	}
	if err := c.validateWatch(); err != nil {
		return err
	}
	if c.Notifications.NtfyTopic != "" {
		if err := validateHTTPURL("notifications.ntfy_topic", c.Notifications.NtfyTopic); err != nil {
			return err
		}
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.OutputDir == "" {
		return errors.New("paths.output_dir must be set")
	}
	if c.Paths.TempDir == "" {
		return errors.New("paths.temp_dir must be set")
	}
	if c.Paths.StateDir == "" {
		return errors.New("paths.state_dir must be set")
	}
	return nil
}

func (c *Config) validateProcessing() error {
	switch c.Processing.Method {
	case MethodRemote, MethodLocalGPU:
	default:
		return fmt.Errorf("processing.method must be %q or %q, got %q", MethodRemote, MethodLocalGPU, c.Processing.Method)
	}
	if c.Processing.MaxDurationSeconds < 0 {
		return errors.New("processing.max_duration_seconds must be zero or positive")
	}
	return nil
}

func (c *Config) validateReplicate() error {
	if err := validateHTTPURL("replicate.base_url", c.Replicate.BaseURL); err != nil {
		return err
	}
	if c.Replicate.MaxUploadMB <= 0 {
		return errors.New("replicate.max_upload_mb must be positive")
	}
	if c.Replicate.InlineUploadMB < 0 {
		return errors.New("replicate.inline_upload_mb must be zero or positive")
	}
	if c.Replicate.InlineUploadMB > c.Replicate.MaxUploadMB {
		return errors.New("replicate.inline_upload_mb must not exceed replicate.max_upload_mb")
	}
	return nil
}

func (c *Config) validateLocal() error {
	switch c.Local.Detector {
	case DetectorHTTP:
		if err := validateHTTPURL("local.detector_url", c.Local.DetectorURL); err != nil {
			return err
		}
	case DetectorStatic:
		if len(c.Local.Regions) == 0 {
			return errors.New("local.regions must list at least one region when local.detector is \"static\"")
		}
	default:
		return fmt.Errorf("local.detector must be %q or %q, got %q", DetectorHTTP, DetectorStatic, c.Local.Detector)
	}
	for i, region := range c.Local.Regions {
		if region.X2 <= region.X1 || region.Y2 <= region.Y1 {
			return fmt.Errorf("local.regions[%d] must satisfy x1 < x2 and y1 < y2", i)
		}
	}
	if c.Local.ConfidenceThreshold < 0 || c.Local.ConfidenceThreshold > 1 {
		return errors.New("local.confidence_threshold must be between 0 and 1")
	}
	if c.Local.IoUThreshold < 0 || c.Local.IoUThreshold > 1 {
		return errors.New("local.iou_threshold must be between 0 and 1")
	}
	switch c.Local.Inpainter {
	case InpainterDiffuse:
	case InpainterIOPaint:
		if err := validateHTTPURL("local.iopaint_url", c.Local.IOPaintURL); err != nil {
			return err
		}
	default:
		return fmt.Errorf("local.inpainter must be %q or %q, got %q", InpainterDiffuse, InpainterIOPaint, c.Local.Inpainter)
	}
	return nil
}

func (c *Config) validateEnhance() error {
	if c.Enhance.Scale < 1 || c.Enhance.Scale > 8 {
		return errors.New("enhance.scale must be between 1 and 8")
	}
	switch c.Enhance.Upscaler {
	case UpscalerResize:
	case UpscalerCommand:
		if c.Enhance.UpscalerCommand == "" {
			return errors.New("enhance.upscaler_command must be set when enhance.upscaler is \"command\"")
		}
	default:
		return fmt.Errorf("enhance.upscaler must be %q or %q, got %q", UpscalerResize, UpscalerCommand, c.Enhance.Upscaler)
	}
	if !slices.Contains([]string{"nearest", "bilinear", "bicubic", "lanczos", "catmullrom"}, c.Enhance.Interpolation) {
		return fmt.Errorf("enhance.interpolation %q is not supported", c.Enhance.Interpolation)
	}
	if c.Enhance.Fidelity < 0 || c.Enhance.Fidelity > 1 {
		return fmt.Errorf("enhance.fidelity must be between 0 and 1, got %v", c.Enhance.Fidelity)
	}
	if c.Enhance.RestoreFaces && c.Enhance.RestorerCommand == "" {
		return errors.New("enhance.restorer_command must be set when enhance.restore_faces is true")
	}
	if c.Enhance.UpscalerModelURL != "" {
		if err := validateHTTPURL("enhance.upscaler_model_url", c.Enhance.UpscalerModelURL); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateFFmpeg() error {
	if c.FFmpeg.MinVersion == "" {
		return nil
	}
	if _, err := semver.NewVersion(c.FFmpeg.MinVersion); err != nil {
		return fmt.Errorf("ffmpeg.min_version %q: %w", c.FFmpeg.MinVersion, err)
	}
	return nil
}

func (c *Config) validateWatch() error {
	if c.Watch.Schedule == "" {
		return nil
	}
	if _, err := cron.ParseStandard(c.Watch.Schedule); err != nil {
		return fmt.Errorf("watch.schedule %q: %w", c.Watch.Schedule, err)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be \"console\" or \"json\", got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not supported", c.Logging.Level)
	}
	return nil
}

func validateHTTPURL(field, value string) error {
	if value == "" {
		return fmt.Errorf("%s must be set", field)
	}
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must use http or https", field)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host", field)
	}
	return nil
}
