package odata

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/grez-lucas/vn-bank-sync/internal/scraper/bank"
)

// envelope is the OData v2 JSON envelope: either {"d": ...} or
// {"error": {"code": ..., "message": {"value": ...}}}.
type envelope struct {
	D     json.RawMessage `json:"d"`
	Error *struct {
		Code    string `json:"code"`
		Message struct {
			Value string `json:"value"`
		} `json:"message"`
	} `json:"error"`
}

// ParseResponse extracts the "d" payload of a $batch response. Multipart
// bodies are walked part by part (changesets included) and the first inner
// response declaring Content-Type application/json is decoded. A plain JSON
// body is decoded directly. Bodies with neither shape fall back to ScanJSON.
//
// An OData error envelope is returned as *bank.ProtocolError.
func ParseResponse(contentType string, body []byte) (json.RawMessage, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ScanJSON(string(body))
	}

	switch {
	case strings.HasPrefix(mediaType, "multipart/") && params["boundary"] != "":
		payload, err := findJSONPart(multipart.NewReader(bytes.NewReader(body), params["boundary"]))
		if err != nil {
			return nil, err
		}
		return decodeEnvelope(payload)

	case mediaType == "application/json":
		return decodeEnvelope(body)

	default:
		return ScanJSON(string(body))
	}
}

func findJSONPart(r *multipart.Reader) ([]byte, error) {
	for {
		part, err := r.NextPart()
		if err == io.EOF {
			return nil, fmt.Errorf("%w: no application/json part in batch response", bank.ErrParsingFailed)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read batch part: %v", bank.ErrParsingFailed, err)
		}

		mediaType, params, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
		switch {
		case strings.HasPrefix(mediaType, "multipart/") && params["boundary"] != "":
			// changeset
			payload, err := findJSONPart(multipart.NewReader(part, params["boundary"]))
			if err == nil {
				return payload, nil
			}

		case mediaType == "application/http":
			payload, ok, err := readInnerResponse(part)
			if err != nil {
				return nil, err
			}
			if ok {
				return payload, nil
			}

		case mediaType == "application/json":
			return io.ReadAll(part)
		}
	}
}

// readInnerResponse parses an embedded HTTP response and returns its body
// when it is JSON.
func readInnerResponse(part io.Reader) ([]byte, bool, error) {
	resp, err := http.ReadResponse(bufio.NewReader(part), nil)
	if err != nil {
		return nil, false, fmt.Errorf("%w: read inner response: %v", bank.ErrParsingFailed, err)
	}
	defer resp.Body.Close()

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		return nil, false, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("%w: read inner body: %v", bank.ErrParsingFailed, err)
	}
	return body, true, nil
}

// ScanJSON locates the payload by taking everything from the first `{"` to
// the last `}}` in raw. It does not understand MIME framing and breaks if a
// trailing part contains `}}`; it is only used for responses that carry no
// boundary.
func ScanJSON(raw string) (json.RawMessage, error) {
	start := strings.Index(raw, `{"`)
	end := strings.LastIndex(raw, "}}")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("%w: no JSON object in response", bank.ErrParsingFailed)
	}
	return decodeEnvelope([]byte(raw[start : end+2]))
}

func decodeEnvelope(data []byte) (json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", bank.ErrParsingFailed, err)
	}

	if env.Error != nil {
		return nil, &bank.ProtocolError{Code: env.Error.Code, Message: env.Error.Message.Value}
	}
	if len(env.D) == 0 || string(env.D) == "null" {
		return nil, fmt.Errorf("%w: response has no \"d\" member", bank.ErrParsingFailed)
	}
	return env.D, nil
}

// Collection is the payload shape of an entity set read.
type Collection[T any] struct {
	Count   string `json:"__count,omitempty"`
	Results []T    `json:"results"`
}
