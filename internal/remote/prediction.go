package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"wmclean/internal/logging"
)

// Prediction states reported by the API.
const (
	StatusStarting   = "starting"
	StatusProcessing = "processing"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
	StatusCanceled   = "canceled"
)

// ErrPredictionTimeout reports a prediction that did not settle in time.
var ErrPredictionTimeout = errors.New("prediction timed out")

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  any             `json:"error"`
	Logs   string          `json:"logs"`
	URLs   struct {
		Get    string `json:"get"`
		Cancel string `json:"cancel"`
	} `json:"urls"`
}

func (p *prediction) settled() bool {
	switch p.Status {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// firstOutput returns the output URL. Models return either a single URL or a
// list whose first element is the video.
func (p *prediction) firstOutput() (string, error) {
	raw := bytes.TrimSpace(p.Output)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", errors.New("prediction has no output")
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if strings.TrimSpace(single) == "" {
			return "", errors.New("prediction output is empty")
		}
		return single, nil
	}
	var list []any
	if err := json.Unmarshal(raw, &list); err != nil {
		return "", fmt.Errorf("unexpected output shape: %s", truncate(string(raw), 120))
	}
	for _, item := range list {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			return s, nil
		}
	}
	return "", errors.New("prediction output list has no url")
}

type predictionInput struct {
	Video string `json:"video"`
}

type predictionRequest struct {
	Version string          `json:"version,omitempty"`
	Input   predictionInput `json:"input"`
}

func (c *Client) predictionRequest(video string) predictionRequest {
	return predictionRequest{Version: c.cfg.Version, Input: predictionInput{Video: video}}
}

func (c *Client) predictionsEndpoint() (string, error) {
	if c.cfg.Version != "" {
		return url.JoinPath(c.cfg.BaseURL, "predictions")
	}
	owner, name, ok := strings.Cut(c.cfg.Model, "/")
	if !ok {
		return "", fmt.Errorf("model %q is not owner/name", c.cfg.Model)
	}
	return url.JoinPath(c.cfg.BaseURL, "models", owner, name, "predictions")
}

func (c *Client) createPrediction(ctx context.Context, client *http.Client, body io.Reader) (*prediction, error) {
	endpoint, err := c.predictionsEndpoint()
	if err != nil {
		return nil, fmt.Errorf("create prediction: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create prediction: %w", err)
	}
	var pred prediction
	if err := decodeResponse(resp, &pred); err != nil {
		return nil, fmt.Errorf("create prediction: %w", err)
	}
	if pred.ID == "" {
		return nil, errors.New("create prediction: response has no id")
	}
	logging.WithContext(ctx, c.logger).Info("prediction created",
		logging.String("prediction_id", pred.ID),
		logging.String("status", pred.Status),
	)
	return &pred, nil
}

// waitForPrediction polls until pred settles. Only a succeeded prediction is
// returned without error.
func (c *Client) waitForPrediction(ctx context.Context, pred *prediction) (*prediction, error) {
	deadline := time.Now().Add(c.cfg.PredictionTimeout)
	current := pred
	lastStatus := ""
	for !current.settled() {
		if time.Now().After(deadline) {
			c.cancelPrediction(current.ID)
			return nil, fmt.Errorf("prediction %s: %w after %s", current.ID, ErrPredictionTimeout, c.cfg.PredictionTimeout)
		}
		if err := c.sleep(ctx, c.cfg.PollInterval); err != nil {
			c.cancelPrediction(current.ID)
			return nil, err
		}
		next, err := c.getPrediction(ctx, current.ID)
		if err != nil {
			if ctx.Err() != nil {
				c.cancelPrediction(current.ID)
				return nil, ctx.Err()
			}
			return nil, err
		}
		current = next
		if current.Status != lastStatus {
			lastStatus = current.Status
			c.logger.Debug("prediction status", "prediction_id", current.ID, "status", current.Status)
		}
	}
	switch current.Status {
	case StatusSucceeded:
		return current, nil
	case StatusCanceled:
		return nil, fmt.Errorf("prediction %s was canceled", current.ID)
	default:
		return nil, fmt.Errorf("prediction %s failed: %v", current.ID, current.Error)
	}
}

func (c *Client) getPrediction(ctx context.Context, id string) (*prediction, error) {
	endpoint, err := url.JoinPath(c.cfg.BaseURL, "predictions", id)
	if err != nil {
		return nil, fmt.Errorf("poll prediction: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.api.Do(req)
	if err != nil {
		return nil, fmt.Errorf("poll prediction: %w", err)
	}
	var pred prediction
	if err := decodeResponse(resp, &pred); err != nil {
		return nil, fmt.Errorf("poll prediction: %w", err)
	}
	return &pred, nil
}

// cancelPrediction asks the API to stop a prediction we no longer wait for.
// Failures are logged only.
func (c *Client) cancelPrediction(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	endpoint, err := url.JoinPath(c.cfg.BaseURL, "predictions", id, "cancel")
	if err != nil {
		return
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return
	}
	resp, err := c.api.Do(req)
	if err != nil {
		c.logger.Debug("prediction cancel failed", "prediction_id", id, logging.Error(err))
		return
	}
	resp.Body.Close()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
