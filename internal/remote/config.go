package remote

import (
	"time"

	"wmclean/internal/config"
)

const (
	defaultPollInterval      = 2 * time.Second
	defaultPredictionTimeout = 30 * time.Minute
	defaultRequestTimeout    = 60 * time.Second
	defaultDownloadTimeout   = 300 * time.Second
)

// Config captures the runtime settings required to talk to the API.
type Config struct {
	APIToken          string
	BaseURL           string
	Model             string
	Version           string
	MaxUploadBytes    int64
	InlineUploadBytes int64
	PollInterval      time.Duration
	PredictionTimeout time.Duration
	RequestTimeout    time.Duration
	DownloadTimeout   time.Duration
}

// ConfigFrom derives client settings from application configuration.
func ConfigFrom(cfg *config.Config) Config {
	r := cfg.Replicate
	return Config{
		APIToken:          r.APIToken,
		BaseURL:           r.BaseURL,
		Model:             r.Model,
		Version:           r.Version,
		MaxUploadBytes:    cfg.MaxUploadBytes(),
		InlineUploadBytes: cfg.InlineUploadBytes(),
		PollInterval:      cfg.PollInterval(),
		PredictionTimeout: time.Duration(r.PredictionTimeoutSeconds) * time.Second,
		RequestTimeout:    time.Duration(r.RequestTimeoutSeconds) * time.Second,
		DownloadTimeout:   time.Duration(r.DownloadTimeoutSeconds) * time.Second,
	}
}
