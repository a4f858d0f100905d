// Package captcha posts captcha images to an external recognition service.
package captcha

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
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Image is a captcha as fetched from the page.
type Image struct {
	Base64   string
	MimeType string
}

type Mode string

const (
	// ModeJSON posts {"image": <base64>, "mimeType": <type>}.
	ModeJSON Mode = "json"
	// ModeMultipart posts the decoded bytes as a "file" form part.
	ModeMultipart Mode = "multipart"
)

var ErrNoText = errors.New("captcha: solver returned no text")

// resultFields are checked in order; the first non-empty one wins.
var resultFields = []string{"text", "result", "captcha", "code", "data", "prediction"}

type Client struct {
	url  string
	mode Mode
	http *http.Client
}

type Option func(*Client)

func WithMode(m Mode) Option {
	return func(c *Client) { c.mode = m }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func New(url string, opts ...Option) *Client {
	c := &Client{
		url:  url,
		mode: ModeJSON,
		http: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Solve sends img once and returns the recognized text.
func (c *Client) Solve(ctx context.Context, img Image) (string, error) {
	body, contentType, err := c.encode(img)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return "", fmt.Errorf("captcha: build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("captcha: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("captcha: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("captcha: solver returned %d: %s", resp.StatusCode, excerpt(raw))
	}

	text, err := ExtractText(raw)
	if err != nil {
		return "", err
	}
	zerolog.Ctx(ctx).Debug().Str("mode", string(c.mode)).Int("length", len(text)).Msg("captcha solved")
	return text, nil
}

func (c *Client) encode(img Image) (io.Reader, string, error) {
	switch c.mode {
	case ModeMultipart:
		data, err := base64.StdEncoding.DecodeString(img.Base64)
		if err != nil {
			return nil, "", fmt.Errorf("captcha: decode image: %w", err)
		}

		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		part, err := w.CreateFormFile("file", "captcha"+extension(img.MimeType))
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(data); err != nil {
			return nil, "", err
		}
		if err := w.Close(); err != nil {
			return nil, "", err
		}
		return &buf, w.FormDataContentType(), nil

	default:
		raw, err := json.Marshal(map[string]string{
			"image":    img.Base64,
			"mimeType": img.MimeType,
		})
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(raw), "application/json", nil
	}
}

// ExtractText reads the recognized text from a solver response. A bare
// JSON string is accepted as the text itself.
func ExtractText(raw []byte) (string, error) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		var s string
		if json.Unmarshal(raw, &s) == nil && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s), nil
		}
		return "", fmt.Errorf("captcha: decode response: %w", err)
	}

	for _, name := range resultFields {
		switch v := fields[name].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s, nil
			}
		case float64:
			return fmt.Sprintf("%.0f", v), nil
		}
	}
	return "", ErrNoText
}

func extension(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	default:
		return ".jpg"
	}
}

func excerpt(b []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
