package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"wmclean/internal/fetch"
	"wmclean/internal/guard"
	"wmclean/internal/logging"
	"wmclean/internal/progress"
	"wmclean/internal/services"
)

// ErrTooLarge reports a clip above the upload ceiling.
var ErrTooLarge = errors.New("file exceeds upload limit")

// ErrInvalidToken reports a token the API rejected.
var ErrInvalidToken = errors.New("api token rejected")

// Client wraps the prediction API.
type Client struct {
	cfg      Config
	api      *http.Client
	transfer *http.Client
	logger   *slog.Logger
	sleep    func(context.Context, time.Duration) error
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the client used for JSON API calls.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.api = client
		}
	}
}

// WithTransferClient overrides the client used for uploads and downloads.
func WithTransferClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.transfer = client
		}
	}
}

// WithSleeper overrides how poll waits are performed (useful for tests).
func WithSleeper(sleep func(context.Context, time.Duration) error) Option {
	return func(c *Client) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient constructs a client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.APIToken = strings.TrimSpace(cfg.APIToken)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.replicate.com/v1"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.PredictionTimeout <= 0 {
		cfg.PredictionTimeout = defaultPredictionTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = defaultDownloadTimeout
	}
	c := &Client{
		cfg:      cfg,
		api:      &http.Client{Timeout: cfg.RequestTimeout},
		transfer: &http.Client{Timeout: cfg.DownloadTimeout},
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.NewComponentLogger(c.logger, "remote")
	return c
}

// Remove processes input through the API and writes the result to output.
func (c *Client) Remove(ctx context.Context, input, output string, report progress.Func) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	masked, err := guard.ValidateToken(c.cfg.APIToken)
	if err != nil {
		return err
	}
	info, err := os.Stat(input)
	if err != nil {
		return services.Wrap(services.ErrValidation, "remote", "stat input", input, err)
	}
	size := info.Size()
	if c.cfg.MaxUploadBytes > 0 && size > c.cfg.MaxUploadBytes {
		return services.Wrap(services.ErrValidation, "remote", "check size",
			fmt.Sprintf("%d bytes exceeds the %d byte limit", size, c.cfg.MaxUploadBytes), ErrTooLarge)
	}
	logger := logging.WithContext(ctx, c.logger)
	logger.Info("remote removal started",
		logging.String("input", input),
		logging.Size("size", size),
		logging.String("token", masked),
	)

	report.Report("Uploading to Replicate API", 25)
	pred, uploadErr := c.runWithUpload(ctx, input, report)
	if uploadErr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logging.WarnWithContext(logger, "upload method failed", "remote_upload_failed",
			logging.Error(uploadErr),
			logging.String(logging.FieldImpact, "falling back to inline payload when the clip is small enough"),
		)
		if c.cfg.InlineUploadBytes <= 0 || size > c.cfg.InlineUploadBytes {
			return services.Wrap(services.ErrAPI, "remote", "upload",
				fmt.Sprintf("upload failed and %d bytes is above the inline limit", size), uploadErr)
		}
		var inlineErr error
		pred, inlineErr = c.runInline(ctx, input, report)
		if inlineErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return services.Wrap(services.ErrAPI, "remote", "predict", "all upload methods failed",
				errors.Join(fmt.Errorf("upload: %w", uploadErr), fmt.Errorf("inline: %w", inlineErr)))
		}
	}

	outputURL, err := pred.firstOutput()
	if err != nil {
		return services.Wrap(services.ErrAPI, "remote", "read output", "prediction "+pred.ID, err)
	}
	logger.Info("prediction succeeded", logging.String("prediction_id", pred.ID), logging.String("output_url", outputURL))

	report.Report("Downloading result", 75)
	written, err := fetch.Download(ctx, outputURL, output, fetch.Options{
		Client: c.transfer,
		Progress: func(evt progress.Event) {
			report.Report("Downloading result", 75+evt.Percent/4)
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return services.Wrap(services.ErrAPI, "remote", "download", outputURL, err)
	}
	report.Report("Download completed", 100)
	logger.Info("remote removal finished", logging.String("output", output), logging.Size("size", written))
	return nil
}

func (c *Client) runWithUpload(ctx context.Context, input string, report progress.Func) (*prediction, error) {
	fileURL, err := c.uploadFile(ctx, input)
	if err != nil {
		return nil, err
	}
	report.Report("Processing video with Replicate", 50)
	encoded, err := json.Marshal(c.predictionRequest(fileURL))
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	pred, err := c.createPrediction(ctx, c.api, bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	return c.waitForPrediction(ctx, pred)
}

func (c *Client) runInline(ctx context.Context, input string, report progress.Func) (*prediction, error) {
	body, err := c.inlinePredictionBody(input)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	report.Report("Processing video with Replicate", 50)
	pred, err := c.createPrediction(ctx, c.transfer, body)
	if err != nil {
		return nil, err
	}
	return c.waitForPrediction(ctx, pred)
}

// CheckToken confirms the configured token can read the configured model.
func (c *Client) CheckToken(ctx context.Context) error {
	if _, err := guard.ValidateToken(c.cfg.APIToken); err != nil {
		return err
	}
	owner, name, ok := strings.Cut(c.cfg.Model, "/")
	if !ok || owner == "" || name == "" {
		return services.Wrap(services.ErrConfiguration, "remote", "check token", fmt.Sprintf("model %q is not owner/name", c.cfg.Model), nil)
	}
	endpoint, err := url.JoinPath(c.cfg.BaseURL, "models", owner, name)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "remote", "check token", "build url", err)
	}
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.api.Do(req)
	if err != nil {
		return services.Wrap(services.ErrAPI, "remote", "check token", "request failed", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return services.Wrap(services.ErrValidation, "remote", "check token", resp.Status, ErrInvalidToken)
	default:
		return services.Wrap(services.ErrAPI, "remote", "check token", "unexpected status "+resp.Status, nil)
	}
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

type httpStatusError struct {
	StatusCode int
	Body       string
}

func (e *httpStatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 300 {
		body = body[:300]
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, body)
}

func decodeResponse(resp *http.Response, dst any) error {
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &httpStatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
