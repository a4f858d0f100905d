package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/grez-lucas/vn-bank-sync/internal/scraper/bank"
)

// Page wraps a rod tab with context-scoped, non-panicking operations.
// Lookups that find nothing return bank.ErrElementNotFound immediately;
// only WaitFor waits.
type Page struct {
	rp *rod.Page

	closeOnce sync.Once
	closeErr  error
}

func newPage(rp *rod.Page) *Page {
	return &Page{rp: rp}
}

// Rod exposes the underlying page for callers that need raw access.
func (p *Page) Rod() *rod.Page {
	return p.rp
}

func (p *Page) with(ctx context.Context) *rod.Page {
	return p.rp.Context(ctx)
}

func (p *Page) find(ctx context.Context, selector string) (*rod.Element, error) {
	has, el, err := p.with(ctx).Has(selector)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, fmt.Errorf("%w: %s", bank.ErrElementNotFound, selector)
	}
	return el, nil
}

func (p *Page) HTML(ctx context.Context) (string, error) {
	return p.with(ctx).HTML()
}

func (p *Page) Text(ctx context.Context, selector string) (string, error) {
	el, err := p.find(ctx, selector)
	if err != nil {
		return "", err
	}
	return el.Text()
}

func (p *Page) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	_, err := p.with(ctx).Timeout(timeout).Element(selector)
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: waiting for %s", bank.ErrTimeout, selector)
	}
	return err
}

func (p *Page) ExtractTable(ctx context.Context, selector string) (string, error) {
	el, err := p.find(ctx, selector)
	if err != nil {
		return "", err
	}
	return el.HTML()
}

// Click dispatches a DOM click, which also reaches elements that are
// covered or scrolled out of view.
func (p *Page) Click(ctx context.Context, selector string) error {
	el, err := p.find(ctx, selector)
	if err != nil {
		return err
	}
	_, err = el.Eval(`() => this.click()`)
	return err
}

func (p *Page) ClickMatching(ctx context.Context, selector string, match func(text, value string) bool) error {
	els, err := p.with(ctx).Elements(selector)
	if err != nil {
		return err
	}

	for _, el := range els {
		text, err := el.Text()
		if err != nil {
			continue
		}
		var value string
		if v, err := el.Attribute("value"); err == nil && v != nil {
			value = *v
		}

		if match(text, value) {
			_, err = el.Eval(`() => this.click()`)
			return err
		}
	}
	return fmt.Errorf("%w: no match for %s", bank.ErrElementNotFound, selector)
}

// FillField sets the value directly and fires input and change events,
// as the portals read the field on submit rather than on keystrokes.
func (p *Page) FillField(ctx context.Context, selector, value string) error {
	el, err := p.find(ctx, selector)
	if err != nil {
		return err
	}
	_, err = el.Eval(`(v) => {
		this.value = v;
		this.dispatchEvent(new Event('input', { bubbles: true }));
		this.dispatchEvent(new Event('change', { bubbles: true }));
	}`, value)
	return err
}

func (p *Page) Value(ctx context.Context, selector string) (string, error) {
	el, err := p.find(ctx, selector)
	if err != nil {
		return "", err
	}
	v, err := el.Property("value")
	if err != nil {
		return "", err
	}
	if v.Nil() {
		return "", nil
	}
	return v.Str(), nil
}

// Resource fetches the bytes behind an element's src through the page, so
// the session cookies apply.
func (p *Page) Resource(ctx context.Context, selector string) ([]byte, string, error) {
	el, err := p.find(ctx, selector)
	if err != nil {
		return nil, "", err
	}
	data, err := el.Resource()
	if err != nil {
		return nil, "", fmt.Errorf("fetch resource %s: %w", selector, err)
	}
	return data, http.DetectContentType(data), nil
}

// TypeText focuses the element and types text one key at a time.
func (p *Page) TypeText(ctx context.Context, selector, text string, delay time.Duration) error {
	el, err := p.find(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.Focus(); err != nil {
		return err
	}
	if delay <= 0 {
		return TypeFast(el, text)
	}
	return TypeHuman(ctx, el, text, delay)
}

// PressKey sends a named key ("Enter", "Escape") to the focused element.
func (p *Page) PressKey(ctx context.Context, name string) error {
	var key input.Key
	switch name {
	case "Enter":
		key = input.Enter
	case "Escape":
		key = input.Escape
	case "Tab":
		key = input.Tab
	default:
		return fmt.Errorf("unsupported key %q", name)
	}
	return p.with(ctx).Keyboard.Type(key)
}

// WaitLoad waits for the window load event of the current document.
func (p *Page) WaitLoad(ctx context.Context) error {
	return p.with(ctx).WaitLoad()
}

// Settle waits until the DOM of the page and its visible frames stops
// changing.
func (p *Page) Settle(ctx context.Context) error {
	return WaitForIFrames(p.with(ctx))
}

func (p *Page) LocalStorage(ctx context.Context, key string) (string, error) {
	res, err := p.with(ctx).Eval(`(k) => localStorage.getItem(k)`, key)
	if err != nil {
		return "", fmt.Errorf("read localStorage %s: %w", key, err)
	}
	if res.Value.Nil() {
		return "", nil
	}
	return res.Value.Str(), nil
}

// SessionStorage is one sessionStorage key of this tab.
func (p *Page) SessionStorage(key string) *StorageItem {
	return &StorageItem{page: p, key: key}
}

// Close closes the tab. Later calls return the first result.
func (p *Page) Close(context.Context) error {
	p.closeOnce.Do(func() {
		p.closeErr = p.rp.Close()
	})
	return p.closeErr
}

// StorageItem reads and writes a single sessionStorage entry. The entry
// lives as long as the tab and survives reloads.
type StorageItem struct {
	page *Page
	key  string
}

func (s *StorageItem) Get(ctx context.Context) (string, bool, error) {
	res, err := s.page.with(ctx).Eval(`(k) => sessionStorage.getItem(k)`, s.key)
	if err != nil {
		return "", false, err
	}
	if res.Value.Nil() {
		return "", false, nil
	}
	return res.Value.Str(), true, nil
}

func (s *StorageItem) Set(ctx context.Context, value string) error {
	_, err := s.page.with(ctx).Eval(`(k, v) => sessionStorage.setItem(k, v)`, s.key, value)
	return err
}

func (s *StorageItem) Delete(ctx context.Context) error {
	_, err := s.page.with(ctx).Eval(`(k) => sessionStorage.removeItem(k)`, s.key)
	return err
}
