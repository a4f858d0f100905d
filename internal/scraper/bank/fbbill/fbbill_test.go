package fbbill

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/grez-lucas/vn-bank-sync/internal/scraper/bank"
	"github.com/grez-lucas/vn-bank-sync/internal/scraper/bank/acb"
	"github.com/grez-lucas/vn-bank-sync/internal/scraper/bank/testutil"
	"github.com/grez-lucas/vn-bank-sync/internal/sink"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResult_Fixture(t *testing.T) {
	html := testutil.LoadFixture(t, "fbbill", "result")

	bill, ok := ParseResult(html)

	require.True(t, ok)
	assert.Equal(t, Bill{
		Status:    StatusFound,
		Date:      "11 thg 10, 2025",
		Amount:    "1.234.567 ₫",
		Reference: "ABCD1234-5678",
	}, bill)
}

func TestParseResult_NotRendered(t *testing.T) {
	_, ok := ParseResult(testutil.LoadFixture(t, "fbbill", "activity"))
	assert.False(t, ok)
}

func TestParseResult_EmptyPanel(t *testing.T) {
	html := `<div class="x1iyjqo2"><div role="heading" aria-level="4">Kết quả cho ZZZ</div>
<div class="x78zum5 xdt5ytf"><span>Không tìm thấy giao dịch nào</span></div></div>`

	bill, ok := ParseResult(html)

	require.True(t, ok)
	assert.Equal(t, StatusNoResults, bill.Status)
}

// fakePage models the billing page as three screens: the activity list,
// the reference dialog and the result panel.
type fakePage struct {
	mu     sync.Mutex
	screen string
	typed  string
	bills  map[string]Bill
	events []string

	searchButton bool
}

func newFakePage(bills map[string]Bill) *fakePage {
	return &fakePage{screen: "list", bills: bills, searchButton: true}
}

func (p *fakePage) log(e string) { p.events = append(p.events, e) }

func (p *fakePage) HTML(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.screen != "result" {
		return "<div>waiting</div>", nil
	}
	b, ok := p.bills[p.typed]
	if !ok {
		// never renders; the lookup times out
		return `<div role="dialog"><div>Đang tải</div></div>`, nil
	}
	return fmt.Sprintf(`<div role="dialog"><div class="x1iyjqo2">
<div role="heading" aria-level="4">Kết quả cho %s</div>
<div class="x78zum5 xdt5ytf"><span>Ngày</span><div role="heading">%s</div></div>
<div class="x78zum5 xdt5ytf"><span>Số tiền</span><div role="heading">%s</div></div>
<div class="x78zum5 xdt5ytf"><span>Số tham chiếu</span><div role="heading">%s</div></div>
</div></div>`, p.typed, b.Date, b.Amount, b.Reference), nil
}

func (p *fakePage) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.screen == "dialog" && selector == SelReferenceInput {
		return nil
	}
	return bank.ErrTimeout
}

func (p *fakePage) ClickMatching(ctx context.Context, selector string, match func(text, value string) bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var candidates []string
	switch {
	case p.screen == "list" && selector == SelReferenceFilter:
		candidates = []string{"Ngày", "Số tham chiếu"}
	case p.screen == "dialog" && selector == SelDialogButton && p.searchButton:
		candidates = []string{"Hủy", "Tìm kiếm"}
	case p.screen == "result" && selector == SelBackButton:
		if _, ok := p.bills[p.typed]; ok {
			candidates = []string{"Quay lại"}
		}
	case p.screen == "result" && selector == `div[role="dialog"] div[role="button"]`:
		candidates = []string{"Đóng"}
	}

	for _, c := range candidates {
		if !match(c, "") {
			continue
		}
		p.log("click:" + c)
		switch c {
		case "Số tham chiếu":
			p.screen = "dialog"
		case "Tìm kiếm":
			p.screen = "result"
		case "Quay lại", "Đóng":
			p.screen = "list"
		}
		return nil
	}
	return bank.ErrElementNotFound
}

func (p *fakePage) TypeText(ctx context.Context, selector, text string, delay time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.typed = text
	p.log("type:" + text)
	return nil
}

func (p *fakePage) PressKey(ctx context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.log("key:" + name)
	switch {
	case name == "Enter" && p.screen == "dialog":
		p.screen = "result"
	case name == "Escape":
		p.screen = "list"
	}
	return nil
}

type memSink struct {
	posted []Record
	fail   bool
}

func (s *memSink) Post(ctx context.Context, payload any) sink.Result {
	s.posted = append(s.posted, payload.(Record))
	if s.fail {
		return sink.Result{Error: "down"}
	}
	return sink.Result{OK: true, Status: 200}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PollInterval = time.Millisecond
	cfg.FilterTimeout = 50 * time.Millisecond
	cfg.InputTimeout = 50 * time.Millisecond
	cfg.ResultTimeout = 50 * time.Millisecond
	cfg.BackTimeout = 50 * time.Millisecond
	cfg.KeyDelay = 0
	cfg.OpenSettle = 0
	cfg.SearchSettle = 0
	cfg.BetweenSettle = 0
	return cfg
}

func TestLookup_Found(t *testing.T) {
	page := newFakePage(map[string]Bill{
		"ABCD1234": {Date: "11 thg 10, 2025", Amount: "89.000 ₫", Reference: "ABCD1234-1"},
	})
	r := NewReconciler(page, &memSink{}, testConfig())

	bill, err := r.Lookup(context.Background(), " ABCD1234 ")

	require.NoError(t, err)
	assert.Equal(t, StatusFound, bill.Status)
	assert.Equal(t, "89.000 ₫", bill.Amount)
	assert.Equal(t, []string{"click:Số tham chiếu", "type:ABCD1234", "click:Tìm kiếm", "click:Quay lại"}, page.events)
	assert.Equal(t, "list", page.screen)
}

func TestLookup_EnterWhenSearchButtonMissing(t *testing.T) {
	page := newFakePage(map[string]Bill{"C1": {Amount: "1 ₫"}})
	page.searchButton = false
	r := NewReconciler(page, &memSink{}, testConfig())

	bill, err := r.Lookup(context.Background(), "C1")

	require.NoError(t, err)
	assert.Equal(t, StatusFound, bill.Status)
	assert.Contains(t, page.events, "key:Enter")
}

func TestLookup_ResultTimeout(t *testing.T) {
	page := newFakePage(nil)
	r := NewReconciler(page, &memSink{}, testConfig())

	_, err := r.Lookup(context.Background(), "MISSING")

	require.Error(t, err)
	var se *bank.ScraperError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "WaitResult", se.Operation)
	assert.Equal(t, bank.KindTiming, se.Kind)
}

func TestLookup_EmptyCode(t *testing.T) {
	r := NewReconciler(newFakePage(nil), &memSink{}, testConfig())

	_, err := r.Lookup(context.Background(), "  ")

	assert.Equal(t, bank.KindItem, bank.KindOf(err))
}

func TestRun_ContinuesAfterFailure(t *testing.T) {
	page := newFakePage(map[string]Bill{
		"AAA": {Date: "d1", Amount: "a1", Reference: "r1"},
		"CCC": {Date: "d3", Amount: "a3", Reference: "r3"},
	})
	s := &memSink{}
	r := NewReconciler(page, s, testConfig())

	sum := r.Run(context.Background(), []Item{
		{AccountNumber: "1234", Code: "AAA"},
		{AccountNumber: "1234", Code: "BBB"},
		{AccountNumber: "1234", Code: "CCC"},
	})

	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, 2, sum.Found)
	assert.Equal(t, 1, sum.Failed)

	require.Len(t, s.posted, 3)
	assert.Equal(t, StatusFound, s.posted[0].Status)
	assert.Equal(t, "r1", s.posted[0].Reference)

	assert.Equal(t, StatusError, s.posted[1].Status)
	assert.Equal(t, "BBB", s.posted[1].Code)
	assert.Contains(t, s.posted[1].Error, "WaitResult")

	assert.Equal(t, StatusFound, s.posted[2].Status)
	assert.Equal(t, "r3", s.posted[2].Reference)
	assert.Contains(t, page.events, "click:Đóng", "failed lookup dismisses its dialog")
}

func TestRun_SinkFailureDoesNotStopTheLoop(t *testing.T) {
	page := newFakePage(map[string]Bill{"A": {Amount: "1"}, "B": {Amount: "2"}})
	s := &memSink{fail: true}

	sum := NewReconciler(page, s, testConfig()).Run(context.Background(), []Item{{Code: "A"}, {Code: "B"}})

	assert.Equal(t, 2, sum.Found)
	assert.Len(t, s.posted, 2)
}

func TestRun_StopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &memSink{}

	sum := NewReconciler(newFakePage(nil), s, testConfig()).Run(ctx, []Item{{Code: "A"}})

	assert.Empty(t, sum.Records)
	assert.Empty(t, s.posted)
}

func TestItemsFromTransactions(t *testing.T) {
	code := "ABCD1234"
	txns := []acb.Transaction{
		{TransactionNumber: "1", Debit: decimal.RequireFromString("500000"), IsFBTransaction: "0"},
		{TransactionNumber: "2", Debit: decimal.RequireFromString("1234567.89"), IsFBTransaction: "1", FBTransactionCode: &code},
		{TransactionNumber: "3", IsFBTransaction: "1"},
	}

	items := ItemsFromTransactions("12345678", txns)

	require.Len(t, items, 1)
	assert.Equal(t, Item{AccountNumber: "12345678", Code: "ABCD1234", TransactionNumber: "2", Amount: "1234567.89"}, items[0])
}

func TestItemsFromTransactions_FromExtractedStatement(t *testing.T) {
	html := testutil.LoadFixture(t, "acb", "detail_with_data")
	ext, err := acb.Extract(html)
	require.NoError(t, err)

	items := ItemsFromTransactions("12345678", ext.Transactions)

	require.Len(t, items, 1)
	assert.Equal(t, "ABCD1234", items[0].Code)
	assert.True(t, strings.HasPrefix(items[0].Amount, "1234567.89"))
}
