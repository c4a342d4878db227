package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const defaultVideoMIME = "video/mp4"

type fileResponse struct {
	ID   string `json:"id"`
	URLs struct {
		Get string `json:"get"`
	} `json:"urls"`
}

// uploadFile streams input to the files endpoint and returns its URL.
func (c *Client) uploadFile(ctx context.Context, input string) (string, error) {
	endpoint, err := url.JoinPath(c.cfg.BaseURL, "files")
	if err != nil {
		return "", fmt.Errorf("build url: %w", err)
	}
	file, err := os.Open(input)
	if err != nil {
		return "", fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	contentType := detectVideoMIME(input)
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="content"; filename=%q`, filepath.Base(input)))
		header.Set("Content-Type", contentType)
		part, err := mw.CreatePart(header)
		if err == nil {
			_, err = io.Copy(part, file)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := c.newRequest(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		pr.Close()
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := c.transfer.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload file: %w", err)
	}
	var uploaded fileResponse
	if err := decodeResponse(resp, &uploaded); err != nil {
		return "", fmt.Errorf("upload file: %w", err)
	}
	if strings.TrimSpace(uploaded.URLs.Get) == "" {
		return "", errors.New("upload file: response has no url")
	}
	c.logger.Debug("file uploaded", "file_id", uploaded.ID, "url", uploaded.URLs.Get)
	return uploaded.URLs.Get, nil
}

// inlinePredictionBody streams a prediction request whose video input is a
// base64 data URI of input. The caller must Close the body; closing it before
// it is drained stops the encoder and releases the file.
func (c *Client) inlinePredictionBody(input string) (io.ReadCloser, error) {
	file, err := os.Open(input)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	// Splice the payload into a request rendered around a placeholder.
	const marker = "\x00payload\x00"
	template, err := json.Marshal(c.predictionRequest(marker))
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("encode request: %w", err)
	}
	quotedMarker, _ := json.Marshal(marker)
	quotedMarker = quotedMarker[1 : len(quotedMarker)-1]
	prefix, suffix, found := bytes.Cut(template, quotedMarker)
	if !found {
		file.Close()
		return nil, errors.New("encode request: payload marker missing")
	}
	dataPrefix := "data:" + detectVideoMIME(input) + ";base64,"

	pr, pw := io.Pipe()
	go func() {
		defer file.Close()
		_, err := pw.Write(prefix)
		if err == nil {
			_, err = io.WriteString(pw, dataPrefix)
		}
		if err == nil {
			enc := base64.NewEncoder(base64.StdEncoding, pw)
			_, err = io.Copy(enc, file)
			if closeErr := enc.Close(); err == nil {
				err = closeErr
			}
		}
		if err == nil {
			_, err = pw.Write(suffix)
		}
		pw.CloseWithError(err)
	}()
	return pr, nil
}

func detectVideoMIME(path string) string {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return defaultVideoMIME
	}
	value, _, _ := strings.Cut(mt.String(), ";")
	if !strings.HasPrefix(value, "video/") {
		return defaultVideoMIME
	}
	return value
}
