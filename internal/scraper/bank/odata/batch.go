// Package odata builds SAP OData v2 $batch request bodies and extracts the
// JSON payload from $batch responses.
package odata

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

const (
	// BoundaryPrefix starts every batch boundary.
	BoundaryPrefix = "batch_"
	boundaryLength = 13

	crlf = "\r\n"
)

// Header is one inner request header. Order is preserved on the wire.
type Header struct {
	Name  string
	Value string
}

// Param is one query parameter. Key and Value are written exactly as given,
// so pre-encoded values survive byte for byte.
type Param struct {
	Key   string
	Value string
}

// Query is an ordered list of query parameters.
type Query []Param

// Encode joins the parameters without any further escaping.
func (q Query) Encode() string {
	parts := make([]string, len(q))
	for i, p := range q {
		parts[i] = p.Key + "=" + p.Value
	}
	return strings.Join(parts, "&")
}

// Tokens are the session values threaded into every inner request.
// Empty tokens are omitted from the inner headers.
type Tokens struct {
	TokenKey  string
	CSRFToken string
}

// Request describes the single sub-request carried by a batch.
type Request struct {
	Method string
	// Path is relative to the service root, e.g. "DepositAccounts".
	Path  string
	Query Query
}

// BatchRequest is a built, one-shot batch body.
type BatchRequest struct {
	Boundary string
	Method   string
	Path     string
	Query    string
	Headers  []Header
	Body     string
}

// ContentType is the value for the outer request's Content-Type header.
func (b *BatchRequest) ContentType() string {
	return "multipart/mixed; boundary=" + b.Boundary
}

// RequestLine is the inner HTTP request line.
func (b *BatchRequest) RequestLine() string {
	target := b.Path
	if b.Query != "" {
		target += "?" + b.Query
	}
	return fmt.Sprintf("%s %s HTTP/1.1", b.Method, target)
}

// Build renders req as a multipart/mixed body holding exactly one
// application/http part. A fresh boundary and request id are generated on
// every call.
func Build(req Request, tokens Tokens) *BatchRequest {
	return build(req, tokens, time.Now(), NewBoundary())
}

func build(req Request, tokens Tokens, now time.Time, boundary string) *BatchRequest {
	method := req.Method
	if method == "" {
		method = "GET"
	}

	b := &BatchRequest{
		Boundary: boundary,
		Method:   method,
		Path:     strings.TrimPrefix(req.Path, "/"),
		Query:    req.Query.Encode(),
		Headers:  innerHeaders(tokens, now),
	}

	headerLines := make([]string, len(b.Headers))
	for i, h := range b.Headers {
		headerLines[i] = h.Name + ": " + h.Value
	}

	var sb strings.Builder
	sb.WriteString("--" + boundary + crlf)
	sb.WriteString("Content-Type: application/http" + crlf)
	sb.WriteString("Content-Transfer-Encoding: binary" + crlf)
	sb.WriteString(crlf)
	sb.WriteString(b.RequestLine() + crlf)
	sb.WriteString(strings.Join(headerLines, crlf) + crlf)
	sb.WriteString(crlf)
	sb.WriteString(crlf)
	sb.WriteString("--" + boundary + "--" + crlf)
	b.Body = sb.String()

	return b
}

func innerHeaders(tokens Tokens, now time.Time) []Header {
	headers := []Header{
		{"sap-cancel-on-close", "true"},
		{"channelType", "Web"},
	}
	if tokens.TokenKey != "" {
		headers = append(headers, Header{"TokenKey", tokens.TokenKey})
	}
	headers = append(headers,
		Header{"Pragma", "no-cache"},
		Header{"Expires", "-1"},
		Header{"Cache-Control", "no-cache,no-store,must-revalidate"},
		Header{"X-Request-ID", RequestID(now)},
		Header{"sap-contextid-accept", "header"},
		Header{"Accept", "application/json"},
	)
	if tokens.CSRFToken != "" {
		headers = append(headers, Header{"x-csrf-token", tokens.CSRFToken})
	}
	headers = append(headers,
		Header{"Accept-Language", "vi"},
		Header{"DataServiceVersion", "2.0"},
		Header{"MaxDataServiceVersion", "2.0"},
	)
	return headers
}

const boundaryAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// NewBoundary returns "batch_" followed by 13 random lowercase alphanumerics.
func NewBoundary() string {
	b := make([]byte, boundaryLength)
	for i := range b {
		b[i] = boundaryAlphabet[rand.IntN(len(boundaryAlphabet))]
	}
	return BoundaryPrefix + string(b)
}

// RequestID is the current time in milliseconds followed by a random 0-999 suffix.
func RequestID(now time.Time) string {
	return fmt.Sprintf("%d%d", now.UnixMilli(), rand.IntN(1000))
}

// Datetime formats t the way OData v2 datetime literals expect it, in UTC
// and without an offset.
func Datetime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05")
}

// FilterDateRange renders a pre-encoded $filter selecting field values
// between from and to, inclusive: "<field> ge datetime'...' and <field> le datetime'...'".
func FilterDateRange(field string, from, to time.Time) string {
	return "(" + field + "%20ge%20datetime%27" + Datetime(from) +
		"%27%20and%20" + field + "%20le%20datetime%27" + Datetime(to) + "%27)"
}
