package acb

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/grez-lucas/vn-bank-sync/internal/captcha"
	"github.com/grez-lucas/vn-bank-sync/internal/scraper/bank"
	"github.com/grez-lucas/vn-bank-sync/internal/scraper/bank/testutil"
)

// events is the shared, ordered log of what the fakes observed.
type events struct {
	mu  sync.Mutex
	log []string
}

func (e *events) add(format string, args ...any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log = append(e.log, fmt.Sprintf(format, args...))
}

func (e *events) all() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.log...)
}

// fakePage renders fixtures with goquery. Clicking an element whose
// selector, text or value is a key of nav replaces the page with the
// mapped fixture, standing in for a navigation.
type fakePage struct {
	t      *testing.T
	ev     *events
	html   string
	fields map[string]string
	nav    map[string]string

	matchCalls int
	closed     bool
	loads      int
	settles    int
}

func newFakePage(t *testing.T, ev *events, fixture string, nav map[string]string) *fakePage {
	p := &fakePage{t: t, ev: ev, fields: map[string]string{}, nav: nav}
	p.navigate(fixture)
	return p
}

func (p *fakePage) navigate(fixture string) {
	p.html = testutil.LoadFixture(p.t, "acb", fixture)
	p.fields = map[string]string{}
	p.ev.add("load:%s", fixture)
}

func (p *fakePage) doc() *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.html))
	if err != nil {
		p.t.Fatalf("parse fake page: %v", err)
	}
	return doc
}

func (p *fakePage) HTML(context.Context) (string, error) { return p.html, nil }

func (p *fakePage) Text(_ context.Context, sel string) (string, error) {
	s := p.doc().Find(sel).First()
	if s.Length() == 0 {
		return "", bank.ErrElementNotFound
	}
	return s.Text(), nil
}

func (p *fakePage) WaitFor(_ context.Context, sel string, _ time.Duration) error {
	if p.doc().Find(sel).Length() == 0 {
		return bank.ErrTimeout
	}
	return nil
}

func (p *fakePage) ExtractTable(_ context.Context, sel string) (string, error) {
	s := p.doc().Find(sel).First()
	if s.Length() == 0 {
		return "", bank.ErrElementNotFound
	}
	return goquery.OuterHtml(s)
}

func (p *fakePage) Click(_ context.Context, sel string) error {
	if p.doc().Find(sel).Length() == 0 {
		return bank.ErrElementNotFound
	}
	p.ev.add("click:%s", sel)
	if next, ok := p.nav[sel]; ok {
		p.navigate(next)
	}
	return nil
}

func (p *fakePage) ClickMatching(_ context.Context, sel string, match func(text, value string) bool) error {
	p.matchCalls++

	var hit string
	found := false
	p.doc().Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		value, _ := s.Attr("value")
		if match(s.Text(), value) {
			hit = strings.TrimSpace(s.Text())
			if hit == "" {
				hit = value
			}
			found = true
		}
		return !found
	})
	if !found {
		return bank.ErrElementNotFound
	}

	p.ev.add("click:%s", hit)
	if next, ok := p.nav[hit]; ok {
		p.navigate(next)
	}
	return nil
}

func (p *fakePage) FillField(_ context.Context, sel, value string) error {
	if p.doc().Find(sel).Length() == 0 {
		return bank.ErrElementNotFound
	}
	p.fields[sel] = value
	p.ev.add("fill:%s", sel)
	return nil
}

func (p *fakePage) Value(_ context.Context, sel string) (string, error) {
	if v, ok := p.fields[sel]; ok {
		return v, nil
	}
	s := p.doc().Find(sel).First()
	if s.Length() == 0 {
		return "", bank.ErrElementNotFound
	}
	v, _ := s.Attr("value")
	return v, nil
}

func (p *fakePage) Resource(_ context.Context, sel string) ([]byte, string, error) {
	if p.doc().Find(sel).Length() == 0 {
		return nil, "", bank.ErrElementNotFound
	}
	return []byte("captcha-bytes"), "image/jpeg", nil
}

func (p *fakePage) Close(context.Context) error {
	p.closed = true
	p.ev.add("close")
	return nil
}

func (p *fakePage) WaitLoad(context.Context) error {
	p.loads++
	return nil
}

func (p *fakePage) Settle(context.Context) error {
	p.settles++
	return nil
}

// memKV is a sessionStorage slot.
type memKV struct {
	ev    *events
	value string
	set   bool
}

func (k *memKV) Get(context.Context) (string, bool, error) { return k.value, k.set, nil }

func (k *memKV) Set(_ context.Context, v string) error {
	k.value, k.set = v, true
	if k.ev != nil {
		k.ev.add("save:%s", actionOf(v))
	}
	return nil
}

func (k *memKV) Delete(context.Context) error {
	k.value, k.set = "", false
	if k.ev != nil {
		k.ev.add("clear")
	}
	return nil
}

func actionOf(raw string) string {
	for _, a := range []Action{ActionClickAccount, ActionFilterAndSubmit, ActionGetTransactions} {
		if strings.Contains(raw, `"action":"`+string(a)+`"`) {
			return string(a)
		}
	}
	return raw
}

type fakeSolver struct {
	got  captcha.Image
	text string
	err  error
}

func (s *fakeSolver) Solve(_ context.Context, img captcha.Image) (string, error) {
	s.got = img
	return s.text, s.err
}

type resultSink struct {
	results []bank.Result
}

func (r *resultSink) Report(_ context.Context, res bank.Result) {
	r.results = append(r.results, res)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PollInterval = time.Millisecond
	cfg.PageTimeout = 30 * time.Millisecond
	cfg.ClickRetryDelay = time.Millisecond
	cfg.TableWait = time.Millisecond
	cfg.AccountSettle = 0
	cfg.DetailSettle = 0
	cfg.FilterSettle = 0
	return cfg
}

// portalNav maps the controls of the fixtures to the page they lead to.
func portalNav() map[string]string {
	return map[string]string{
		SubmitSelectors[0]: "account_list",
		"1234 5678":        "detail_no_data",
		FilterButtonValue:  "detail_with_data",
	}
}
