// Package fbbill looks up Facebook Ads charges by their payment reference
// on the billing activity page and forwards what it finds to the sink.
// Card payments to Facebook show up in the ACB statement as
// "FACEBK *<code>"; the code is the reference searched for here.
package fbbill

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/grez-lucas/vn-bank-sync/internal/poll"
	"github.com/grez-lucas/vn-bank-sync/internal/scraper/bank"
	"github.com/grez-lucas/vn-bank-sync/internal/scraper/bank/acb"
	"github.com/grez-lucas/vn-bank-sync/internal/sink"
	"github.com/rs/zerolog"
)

// Driver is the subset of page automation the lookup uses.
type Driver interface {
	HTML(ctx context.Context) (string, error)
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error
	ClickMatching(ctx context.Context, selector string, match func(text, value string) bool) error
	TypeText(ctx context.Context, selector, text string, delay time.Duration) error
	PressKey(ctx context.Context, name string) error
}

type Config struct {
	BillingURL string

	PollInterval  time.Duration
	FilterTimeout time.Duration
	InputTimeout  time.Duration
	ResultTimeout time.Duration
	BackTimeout   time.Duration

	KeyDelay      time.Duration
	OpenSettle    time.Duration
	SearchSettle  time.Duration
	BetweenSettle time.Duration
}

func DefaultConfig() Config {
	return Config{
		BillingURL:    DefaultBillingURL,
		PollInterval:  400 * time.Millisecond,
		FilterTimeout: 10 * time.Second,
		InputTimeout:  7500 * time.Millisecond,
		ResultTimeout: 10 * time.Second,
		BackTimeout:   12 * time.Second,
		KeyDelay:      60 * time.Millisecond,
		OpenSettle:    1200 * time.Millisecond,
		SearchSettle:  2 * time.Second,
		BetweenSettle: time.Second,
	}
}

// Item is one charge to look up.
type Item struct {
	AccountNumber string `json:"accountNumber"`
	Code          string `json:"ma_gd_fb"`
	// Set when the item came from a bank statement.
	TransactionNumber string `json:"transactionNumber,omitempty"`
	Amount            string `json:"bankAmount,omitempty"`
}

// Record is what gets posted to the sink for every item, found or not.
type Record struct {
	Item
	Bill
	Error string `json:"error,omitempty"`
}

// Summary counts the outcomes of a reconcile run.
type Summary struct {
	Total     int      `json:"total"`
	Found     int      `json:"found"`
	NoResults int      `json:"noResults"`
	Failed    int      `json:"failed"`
	Records   []Record `json:"records"`
}

// ItemsFromTransactions picks the Facebook card payments out of an ACB
// statement.
func ItemsFromTransactions(accountNumber string, txns []acb.Transaction) []Item {
	var items []Item
	for _, t := range txns {
		if t.IsFBTransaction != "1" || t.FBTransactionCode == nil {
			continue
		}
		items = append(items, Item{
			AccountNumber:     accountNumber,
			Code:              *t.FBTransactionCode,
			TransactionNumber: t.TransactionNumber,
			Amount:            t.Debit.String(),
		})
	}
	return items
}

type Reconciler struct {
	cfg    Config
	driver Driver
	sink   sink.Poster
}

func NewReconciler(d Driver, s sink.Poster, cfg Config) *Reconciler {
	return &Reconciler{cfg: cfg, driver: d, sink: s}
}

// Run looks up every item in order on the same tab. A failed item is
// posted as an error record and the run moves on.
func (r *Reconciler) Run(ctx context.Context, items []Item) Summary {
	log := zerolog.Ctx(ctx)
	sum := Summary{Total: len(items), Records: make([]Record, 0, len(items))}

	for i, item := range items {
		if ctx.Err() != nil {
			break
		}
		if i > 0 {
			_ = poll.Sleep(ctx, r.cfg.BetweenSettle)
		}

		rec := Record{Item: item}
		bill, err := r.Lookup(ctx, item.Code)
		switch {
		case err != nil:
			rec.Bill = Bill{Status: StatusError}
			rec.Error = err.Error()
			sum.Failed++
			log.Warn().Err(err).Str("code", item.Code).Msg("facebook bill lookup failed")
			r.closePopups(ctx)
		case bill.Status == StatusFound:
			rec.Bill = bill
			sum.Found++
		default:
			rec.Bill = bill
			sum.NoResults++
		}

		if res := r.sink.Post(ctx, rec); !res.OK {
			log.Warn().Str("code", item.Code).Str("error", res.Error).Msg("post facebook bill record")
		}
		sum.Records = append(sum.Records, rec)
	}

	log.Info().Int("total", sum.Total).Int("found", sum.Found).Int("failed", sum.Failed).Msg("facebook bill reconcile done")
	return sum
}

// Lookup searches one reference code and returns to the activity list.
func (r *Reconciler) Lookup(ctx context.Context, code string) (Bill, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Bill{}, r.wrap("Lookup", bank.KindItem, errors.New("empty reference code"))
	}

	if err := r.openFilter(ctx); err != nil {
		return Bill{}, err
	}
	_ = poll.Sleep(ctx, r.cfg.OpenSettle)

	if err := r.driver.WaitFor(ctx, SelReferenceInput, r.cfg.InputTimeout); err != nil {
		return Bill{}, r.wrap("WaitInput", bank.KindTiming, err)
	}
	if err := r.driver.TypeText(ctx, SelReferenceInput, code, r.cfg.KeyDelay); err != nil {
		return Bill{}, r.wrap("TypeReference", bank.KindItem, err)
	}

	r.search(ctx)
	_ = poll.Sleep(ctx, r.cfg.SearchSettle)

	bill, err := poll.Until(ctx, r.cfg.PollInterval, r.cfg.ResultTimeout, func(ctx context.Context) (Bill, bool, error) {
		html, err := r.driver.HTML(ctx)
		if err != nil {
			return Bill{}, false, nil
		}
		b, ok := ParseResult(html)
		return b, ok, nil
	})
	if err != nil {
		return Bill{}, r.wrap("WaitResult", bank.KindTiming, err)
	}

	r.back(ctx)
	return bill, nil
}

func (r *Reconciler) openFilter(ctx context.Context) error {
	_, err := poll.Until(ctx, r.cfg.PollInterval, r.cfg.FilterTimeout, func(ctx context.Context) (struct{}, bool, error) {
		err := r.driver.ClickMatching(ctx, SelReferenceFilter, func(text, _ string) bool {
			return strings.Contains(text, TextReferenceFilter) && !strings.Contains(text, TextResultsFor)
		})
		return struct{}{}, err == nil, nil
	})
	if err != nil {
		return r.wrap("OpenFilter", bank.KindTiming, err)
	}
	return nil
}

// search clicks "Tìm kiếm" in the dialog, or submits with Enter when the
// button is missing or disabled.
func (r *Reconciler) search(ctx context.Context) {
	err := r.driver.ClickMatching(ctx, SelDialogButton, func(text, _ string) bool {
		return strings.Contains(text, TextSearch)
	})
	if err == nil {
		return
	}
	zerolog.Ctx(ctx).Debug().Err(err).Msg("search button not found, pressing Enter")
	if err := r.driver.PressKey(ctx, "Enter"); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Msg("press Enter")
	}
}

// back leaves the result panel through "Quay lại", falling back to Escape.
func (r *Reconciler) back(ctx context.Context) {
	_, err := poll.Until(ctx, r.cfg.PollInterval, r.cfg.BackTimeout, func(ctx context.Context) (struct{}, bool, error) {
		err := r.driver.ClickMatching(ctx, SelBackButton, func(text, _ string) bool {
			return strings.TrimSpace(text) == TextBack
		})
		return struct{}{}, err == nil, nil
	})
	if err == nil {
		return
	}
	zerolog.Ctx(ctx).Debug().Msg("back button not found, pressing Escape")
	_ = r.driver.PressKey(ctx, "Escape")
	_ = poll.Sleep(ctx, r.cfg.BetweenSettle)
}

// closePopups dismisses whatever dialog a failed lookup left open.
func (r *Reconciler) closePopups(ctx context.Context) {
	for range 5 {
		html, err := r.driver.HTML(ctx)
		if err != nil || !strings.Contains(html, `role="dialog"`) {
			return
		}
		err = r.driver.ClickMatching(ctx, `div[role="dialog"] div[role="button"]`, func(text, _ string) bool {
			return strings.Contains(text, "Đóng") || strings.Contains(text, "Hủy") || strings.Contains(text, TextBack)
		})
		if err != nil {
			_ = r.driver.PressKey(ctx, "Escape")
		}
		_ = poll.Sleep(ctx, r.cfg.PollInterval)
	}
}

func (r *Reconciler) wrap(op string, kind bank.ErrorKind, err error) error {
	return &bank.ScraperError{
		BankCode:  bank.BankFacebook,
		Operation: op,
		Kind:      kind,
		Cause:     err,
	}
}
