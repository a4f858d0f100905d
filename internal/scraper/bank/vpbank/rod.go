package vpbank

import (
	"context"

	"github.com/grez-lucas/vn-bank-sync/internal/scraper/browser"
)

// FromRod adapts a launched browser to the flow.
func FromRod(b *browser.Browser) Browser {
	return rodBrowser{b: b}
}

type rodBrowser struct {
	b *browser.Browser
}

func (r rodBrowser) OpenTab(ctx context.Context, url string) (Tab, error) {
	p, err := r.b.OpenTab(ctx, url)
	if err != nil {
		return nil, err
	}
	return rodTab{p: p}, nil
}

func (r rodBrowser) Cookies(ctx context.Context, domain string) (map[string]string, error) {
	return r.b.Cookies(ctx, domain)
}

type rodTab struct {
	p *browser.Page
}

func (t rodTab) LocalStorage(ctx context.Context, key string) (string, error) {
	return t.p.LocalStorage(ctx, key)
}

func (t rodTab) Close() error {
	return t.p.Close(context.Background())
}
