// Package browser provides utilities for browser automation with Rod.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
	"github.com/rs/zerolog"
)

type options struct {
	headless    bool
	bin         string
	userDataDir string
	timeout     time.Duration
	hijack      func(*rod.Hijack)
}

type Option func(*options)

func Headless(enabled bool) Option {
	return func(o *options) { o.headless = enabled }
}

// WithBin points the launcher at a specific Chrome binary instead of the
// one it downloads.
func WithBin(path string) Option {
	return func(o *options) { o.bin = path }
}

// WithUserDataDir reuses a Chrome profile, keeping logins between runs.
func WithUserDataDir(dir string) Option {
	return func(o *options) { o.userDataDir = dir }
}

// WithTimeout bounds every navigation.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithHijacker routes every request of every tab through h. Replay tests
// use it to serve recorded sessions.
func WithHijacker(h func(*rod.Hijack)) Option {
	return func(o *options) { o.hijack = h }
}

// Browser is one launched Chrome process. Tabs are stealth pages.
type Browser struct {
	rod      *rod.Browser
	launcher *launcher.Launcher
	router   *rod.HijackRouter
	timeout  time.Duration
}

func New(ctx context.Context, opts ...Option) (*Browser, error) {
	o := options{headless: true, timeout: 60 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}

	l := launcher.New().Context(ctx).Headless(o.headless)
	if o.bin != "" {
		l = l.Bin(o.bin)
	}
	if o.userDataDir != "" {
		l = l.UserDataDir(o.userDataDir)
	}

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	rb := rod.New().ControlURL(u)
	if err := rb.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	b := &Browser{rod: rb, launcher: l, timeout: o.timeout}

	if o.hijack != nil {
		b.router = rb.HijackRequests()
		if err := b.router.Add("*", "", o.hijack); err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("hijack requests: %w", err)
		}
		go b.router.Run()
	}

	zerolog.Ctx(ctx).Debug().Bool("headless", o.headless).Msg("browser launched")
	return b, nil
}

// Close stops request hijacking, the browser and its process.
func (b *Browser) Close() error {
	var errs []error
	if b.router != nil {
		errs = append(errs, b.router.Stop())
	}
	errs = append(errs, b.rod.Close())
	b.launcher.Kill()
	return errors.Join(errs...)
}

// OpenTab opens a stealth tab on url and waits for its load event.
func (b *Browser) OpenTab(ctx context.Context, url string) (*Page, error) {
	rp, err := stealth.Page(b.rod)
	if err != nil {
		return nil, fmt.Errorf("open tab: %w", err)
	}
	page := newPage(rp)

	nav := rp.Context(ctx).Timeout(b.timeout)
	if err := nav.Navigate(url); err != nil {
		_ = page.Close(ctx)
		return nil, fmt.Errorf("navigate to %s: %w", url, err)
	}
	if err := nav.WaitLoad(); err != nil {
		_ = page.Close(ctx)
		return nil, fmt.Errorf("wait load %s: %w", url, err)
	}

	zerolog.Ctx(ctx).Debug().Str("url", url).Msg("tab opened")
	return page, nil
}

// Cookies returns the browser's cookies whose domain is domain or one of
// its subdomains, keyed by name.
func (b *Browser) Cookies(ctx context.Context, domain string) (map[string]string, error) {
	all, err := b.rod.Context(ctx).GetCookies()
	if err != nil {
		return nil, fmt.Errorf("get cookies: %w", err)
	}

	want := strings.TrimPrefix(domain, ".")
	out := make(map[string]string)
	for _, c := range all {
		d := strings.TrimPrefix(c.Domain, ".")
		if d == want || strings.HasSuffix(d, "."+want) {
			out[c.Name] = c.Value
		}
	}
	return out, nil
}
