// Package testutil provides testing utilities for the scraper packages:
// loading, sanitizing and replaying HAR recordings of portal sessions.
package testutil

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"testing"
)

// HARLog is the simplified HAR form recordings are stored in.
type HARLog struct {
	Entries []HAREntry `json:"entries"`
}

// HAREntry represents a single HTTP request/response pair.
type HAREntry struct {
	Request  HARRequest  `json:"request"`
	Response HARResponse `json:"response"`
}

type HARRequest struct {
	Method  string      `json:"method"`
	URL     string      `json:"url"`
	Headers []HARHeader `json:"headers,omitempty"`
	Body    string      `json:"body,omitempty"`
}

type HARResponse struct {
	Status  int         `json:"status"`
	Headers []HARHeader `json:"headers,omitempty"`
	Content HARContent  `json:"content"`
}

type HARHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type HARContent struct {
	MimeType string `json:"mimeType"`
	Text     string `json:"text"`               // Plain text or base64 encoded
	Encoding string `json:"encoding,omitempty"` // "base64" if binary content
	Size     int    `json:"size,omitempty"`
}

// Header returns the first value of the named header, case-insensitively.
func (r HARResponse) Header(name string) string {
	return headerValue(r.Headers, name)
}

// Body returns the decoded response body.
func (r HARResponse) Body() []byte {
	if r.Content.Encoding == "base64" {
		if b, err := base64.StdEncoding.DecodeString(r.Content.Text); err == nil {
			return b
		}
	}
	return []byte(r.Content.Text)
}

func headerValue(headers []HARHeader, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// ============================================================================
// Chrome DevTools HAR 1.2 Format Support
// ============================================================================

// chromeHAR is the HAR 1.2 export of Chrome DevTools: entries are wrapped
// in a "log" object and request bodies live in postData.
type chromeHAR struct {
	Log struct {
		Entries []chromeEntry `json:"entries"`
	} `json:"log"`
}

type chromeEntry struct {
	Request struct {
		Method   string      `json:"method"`
		URL      string      `json:"url"`
		Headers  []HARHeader `json:"headers,omitempty"`
		PostData *struct {
			Text string `json:"text"`
		} `json:"postData,omitempty"`
	} `json:"request"`
	Response HARResponse `json:"response"`
}

// ParseHAR decodes either a DevTools export or the simplified form.
func ParseHAR(data []byte) (*HARLog, error) {
	var chrome chromeHAR
	if err := json.Unmarshal(data, &chrome); err == nil && len(chrome.Log.Entries) > 0 {
		har := &HARLog{Entries: make([]HAREntry, len(chrome.Log.Entries))}
		for i, ce := range chrome.Log.Entries {
			req := HARRequest{Method: ce.Request.Method, URL: ce.Request.URL, Headers: ce.Request.Headers}
			if ce.Request.PostData != nil {
				req.Body = ce.Request.PostData.Text
			}
			har.Entries[i] = HAREntry{Request: req, Response: ce.Response}
		}
		return har, nil
	}

	var har HARLog
	if err := json.Unmarshal(data, &har); err != nil {
		return nil, fmt.Errorf("parse HAR JSON: %w", err)
	}
	return &har, nil
}

func LoadHAR(path string) (*HARLog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read HAR file: %w", err)
	}
	return ParseHAR(data)
}

// SaveHAR writes a HAR log to the given path with pretty formatting.
func SaveHAR(path string, har *HARLog) error {
	data, err := json.MarshalIndent(har, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal HAR: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write HAR file: %w", err)
	}
	return nil
}

// MustLoadHAR loads a HAR file and fails the test if it cannot be loaded.
func MustLoadHAR(t *testing.T, path string) *HARLog {
	t.Helper()

	har, err := LoadHAR(path)
	if err != nil {
		t.Fatalf("failed to load HAR file %s: %v", path, err)
	}
	return har
}
