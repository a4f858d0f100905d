package acb

import (
	"context"
	"time"

	"github.com/grez-lucas/vn-bank-sync/internal/captcha"
	"github.com/grez-lucas/vn-bank-sync/internal/scraper/bank"
)

// Driver is the page automation surface the flow needs. Lookups that find
// nothing return bank.ErrElementNotFound without waiting.
type Driver interface {
	HTML(ctx context.Context) (string, error)
	// Text returns the visible text of the first element matching selector.
	Text(ctx context.Context, selector string) (string, error)
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error
	// ExtractTable returns the outer HTML of the first match.
	ExtractTable(ctx context.Context, selector string) (string, error)
	Click(ctx context.Context, selector string) error
	// ClickMatching clicks the first element, in document order, for which
	// match returns true given its text and value.
	ClickMatching(ctx context.Context, selector string, match func(text, value string) bool) error
	FillField(ctx context.Context, selector, value string) error
	Value(ctx context.Context, selector string) (string, error)
	// Resource returns the bytes and MIME type behind an img or similar.
	Resource(ctx context.Context, selector string) ([]byte, string, error)
	Close(ctx context.Context) error
}

// Solver turns a captcha image into its text in a single round trip.
type Solver interface {
	Solve(ctx context.Context, img captcha.Image) (string, error)
}

// Reporter receives the terminal result of a flow.
type Reporter interface {
	Report(ctx context.Context, res bank.Result)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, res bank.Result)

func (f ReporterFunc) Report(ctx context.Context, res bank.Result) { f(ctx, res) }
