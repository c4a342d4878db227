package local

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Detector finds watermark boxes in a frame.
type Detector interface {
	Detect(ctx context.Context, img *image.RGBA) ([]Box, error)
}

// StaticDetector reports the same regions for every frame.
type StaticDetector struct {
	Regions []Box
}

func (d StaticDetector) Detect(_ context.Context, img *image.RGBA) ([]Box, error) {
	bounds := img.Bounds()
	boxes := make([]Box, 0, len(d.Regions))
	for _, region := range d.Regions {
		if region.Rect().Overlaps(bounds) {
			boxes = append(boxes, region)
		}
	}
	return boxes, nil
}

// HTTPDetector posts each frame as PNG to a YOLO detection sidecar.
//
// The sidecar receives conf and iou as query parameters and answers with
// {"boxes":[{"x1":..,"y1":..,"x2":..,"y2":..,"confidence":..}]}.
type HTTPDetector struct {
	endpoint   string
	confidence float64
	client     *http.Client
}

// NewHTTPDetector builds a detector for endpoint. A nil client gets timeout.
func NewHTTPDetector(endpoint string, confidence, iou float64, timeout time.Duration, client *http.Client) (*HTTPDetector, error) {
	parsed, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("detector url %q is invalid", endpoint)
	}
	query := parsed.Query()
	query.Set("conf", strconv.FormatFloat(confidence, 'f', -1, 64))
	query.Set("iou", strconv.FormatFloat(iou, 'f', -1, 64))
	parsed.RawQuery = query.Encode()
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPDetector{endpoint: parsed.String(), confidence: confidence, client: client}, nil
}

type detectResponse struct {
	Boxes []struct {
		X1         float64 `json:"x1"`
		Y1         float64 `json:"y1"`
		X2         float64 `json:"x2"`
		Y2         float64 `json:"y2"`
		Confidence float64 `json:"confidence"`
	} `json:"boxes"`
}

func (d *HTTPDetector) Detect(ctx context.Context, img *image.RGBA) ([]Box, error) {
	var body bytes.Buffer
	if err := (&png.Encoder{CompressionLevel: png.BestSpeed}).Encode(&body, img); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("detect request: %w", err)
	}
	req.Header.Set("Content-Type", "image/png")
	req.Header.Set("Accept", "application/json")
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("detect: status %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}
	var decoded detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode detections: %w", err)
	}

	boxes := make([]Box, 0, len(decoded.Boxes))
	for _, raw := range decoded.Boxes {
		if raw.Confidence < d.confidence {
			continue
		}
		boxes = append(boxes, Box{
			X1:         int(math.Floor(raw.X1)),
			Y1:         int(math.Floor(raw.Y1)),
			X2:         int(math.Ceil(raw.X2)),
			Y2:         int(math.Ceil(raw.Y2)),
			Confidence: raw.Confidence,
		})
	}
	return boxes, nil
}
