// Package ocrhttp implements the vendor OCR backend as a client for a
// self-hosted recognition service (tesseract-style HTTP endpoint). The
// script family is passed as a query parameter so the service can pick
// the matching engine variant.
package ocrhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/patlar104/GlobalTranslation/internal/recognition"
)

type Config struct {
	BaseURL string
	Timeout time.Duration
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("ocr base url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// NewRecognizer returns a recognizer bound to one script family. It is
// cheap here; the expense lives server-side, but the handle still flows
// through the resource cache like any vendor instance.
func (c *Client) NewRecognizer(script recognition.Script) (recognition.Recognizer, error) {
	return &recognizer{
		client: c,
		script: script,
	}, nil
}

type recognizer struct {
	client *Client
	script recognition.Script
}

// Wire types for the recognition service response. Bounding boxes are
// optional.
type wireLine struct {
	Text string            `json:"text"`
	Box  *recognition.Rect `json:"boundingBox"`
}

type wireBlock struct {
	Text  string            `json:"text"`
	Box   *recognition.Rect `json:"boundingBox"`
	Lines []wireLine        `json:"lines"`
}

type wireResult struct {
	Blocks []wireBlock `json:"blocks"`
}

func (r *recognizer) Recognize(ctx context.Context, img *recognition.Image) (*recognition.RawResult, error) {
	endpoint := fmt.Sprintf("%s/recognize?script=%s", r.client.baseURL, url.QueryEscape(string(r.script)))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(img.Data))
	if err != nil {
		return nil, fmt.Errorf("build recognize request: %w", err)
	}
	req.Header.Set("Content-Type", contentType(img.Format))

	resp, err := r.client.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("recognize request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ocr service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var wire wireResult
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode recognize response: %w", err)
	}

	ret := &recognition.RawResult{
		Blocks: make([]recognition.RawBlock, 0, len(wire.Blocks)),
	}
	for _, wb := range wire.Blocks {
		lines := make([]recognition.RawLine, 0, len(wb.Lines))
		for _, wl := range wb.Lines {
			lines = append(lines, recognition.RawLine{Text: wl.Text, Box: wl.Box})
		}
		ret.Blocks = append(ret.Blocks, recognition.RawBlock{
			Text:  wb.Text,
			Box:   wb.Box,
			Lines: lines,
		})
	}
	return ret, nil
}

func (r *recognizer) Close() error {
	return nil
}

func contentType(format string) string {
	switch strings.ToLower(format) {
	case "jpeg", "jpg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	default:
		return "image/png"
	}
}
