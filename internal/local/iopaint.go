package local

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/image/draw"
)

// IOPaintInpainter delegates to an IOPaint server (LaMa by default).
type IOPaintInpainter struct {
	endpoint string
	model    string
	client   *http.Client
}

// NewIOPaintInpainter targets baseURL/api/v1/inpaint. A nil client gets timeout.
func NewIOPaintInpainter(baseURL, model string, timeout time.Duration, client *http.Client) (*IOPaintInpainter, error) {
	endpoint, err := url.JoinPath(strings.TrimSpace(baseURL), "api", "v1", "inpaint")
	if err != nil || !strings.HasPrefix(endpoint, "http") {
		return nil, fmt.Errorf("iopaint url %q is invalid", baseURL)
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &IOPaintInpainter{endpoint: endpoint, model: model, client: client}, nil
}

type iopaintRequest struct {
	Image string `json:"image"`
	Mask  string `json:"mask"`
	Model string `json:"model,omitempty"`
}

func (p *IOPaintInpainter) Inpaint(ctx context.Context, img *image.RGBA, mask *image.Gray) (*image.RGBA, error) {
	imageData, err := encodePNG(img)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	maskData, err := encodePNG(mask)
	if err != nil {
		return nil, fmt.Errorf("encode mask: %w", err)
	}
	payload, err := json.Marshal(iopaintRequest{Image: imageData, Mask: maskData, Model: p.model})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("inpaint request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inpaint: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("inpaint: status %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}
	result, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode inpainted frame: %w", err)
	}

	// IOPaint may round the size to a multiple of 8; scale back to the frame.
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	if result.Bounds().Size() == out.Bounds().Size() {
		draw.Draw(out, out.Bounds(), result, result.Bounds().Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(out, out.Bounds(), result, result.Bounds(), draw.Src, nil)
	}
	return out, nil
}

func encodePNG(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := (&png.Encoder{CompressionLevel: png.BestSpeed}).Encode(&buf, img); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
