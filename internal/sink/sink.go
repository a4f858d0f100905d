// Package sink forwards normalized records to the webhook aggregator.
// Delivery problems are reported in the Result, never as Go errors, so a
// failed post cannot abort the flow that produced the records.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultBatchSize = 100

	excerptLimit = 200
)

// Result is the outcome of one POST.
type Result struct {
	OK     bool   `json:"ok"`
	Status int    `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Poster is what flows hand their records to.
type Poster interface {
	Post(ctx context.Context, payload any) Result
}

type Webhook struct {
	url       string
	client    *http.Client
	batchSize int
}

var _ Poster = (*Webhook)(nil)

type Option func(*Webhook)

func WithHTTPClient(c *http.Client) Option {
	return func(w *Webhook) { w.client = c }
}

func WithTimeout(d time.Duration) Option {
	return func(w *Webhook) { w.client.Timeout = d }
}

func WithBatchSize(n int) Option {
	return func(w *Webhook) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func New(url string, opts ...Option) *Webhook {
	w := &Webhook{
		url:       url,
		client:    &http.Client{Timeout: DefaultTimeout},
		batchSize: DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// reply is the aggregator's acknowledgement. Older endpoints answer with
// an empty body, which counts as success.
type reply struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
}

// Post sends payload as JSON. A 2xx reply is OK unless its body says
// {"success": false}.
func (w *Webhook) Post(ctx context.Context, payload any) Result {
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{Error: fmt.Sprintf("encode payload: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return Result{Error: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("webhook post failed")
		return Result{Error: err.Error()}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	zerolog.Ctx(ctx).Debug().Int("status", resp.StatusCode).Int("bytes", len(body)).Msg("webhook post")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{
			Status: resp.StatusCode,
			Error:  fmt.Sprintf("webhook returned status %d: %s", resp.StatusCode, excerpt(raw)),
		}
	}

	var r reply
	if json.Unmarshal(raw, &r) == nil && r.Success != nil && !*r.Success {
		msg := r.Message
		if msg == "" {
			msg = "unknown error"
		}
		return Result{Status: resp.StatusCode, Error: "webhook rejected payload: " + msg}
	}

	return Result{OK: true, Status: resp.StatusCode}
}

// Batch is one slice of a sheet export.
type Batch struct {
	SheetName    string   `json:"sheetName"`
	Data         any      `json:"data"`
	Headers      []string `json:"headers"`
	IsFirstBatch bool     `json:"isFirstBatch"`
	Append       bool     `json:"append"`
}

// BatchResult counts the rows the aggregator accepted before the first
// failure, if any.
type BatchResult struct {
	Result
	Sent    int `json:"sent"`
	Batches int `json:"batches"`
}

// PostBatched sends rows in slices of the configured batch size. The first
// slice asks the aggregator to create the sheet; later ones append. It
// stops at the first rejected slice.
func PostBatched[T any](ctx context.Context, w *Webhook, sheet string, headers []string, rows []T) BatchResult {
	out := BatchResult{Result: Result{OK: true}}

	for i := 0; i < len(rows); i += w.batchSize {
		end := min(i+w.batchSize, len(rows))
		res := w.Post(ctx, Batch{
			SheetName:    sheet,
			Data:         rows[i:end],
			Headers:      headers,
			IsFirstBatch: i == 0,
			Append:       i > 0,
		})
		out.Status = res.Status
		if !res.OK {
			out.OK = false
			out.Error = fmt.Sprintf("batch %d: %s", out.Batches+1, res.Error)
			return out
		}
		out.Batches++
		out.Sent += end - i
	}
	return out
}

func excerpt(b []byte) string {
	s := string(bytes.TrimSpace(b))
	if len(s) > excerptLimit {
		return s[:excerptLimit] + "..."
	}
	return s
}
