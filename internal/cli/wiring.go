package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/grez-lucas/vn-bank-sync/internal/captcha"
	"github.com/grez-lucas/vn-bank-sync/internal/scraper/bank"
	"github.com/grez-lucas/vn-bank-sync/internal/scraper/bank/acb"
	"github.com/grez-lucas/vn-bank-sync/internal/scraper/bank/fbbill"
	"github.com/grez-lucas/vn-bank-sync/internal/scraper/bank/vpbank"
	"github.com/grez-lucas/vn-bank-sync/internal/scraper/browser"
	"github.com/grez-lucas/vn-bank-sync/internal/sink"
)

func (app *App) launchBrowser(ctx context.Context) (*browser.Browser, error) {
	bc := app.Config.Browser
	opts := []browser.Option{browser.Headless(bc.Headless)}
	if bc.Timeout > 0 {
		opts = append(opts, browser.WithTimeout(bc.Timeout))
	}
	if bc.Bin != "" {
		opts = append(opts, browser.WithBin(bc.Bin))
	}
	if bc.UserDataDir != "" {
		opts = append(opts, browser.WithUserDataDir(bc.UserDataDir))
	}
	return browser.New(ctx, opts...)
}

func (app *App) rodFetcher(ctx context.Context, code bank.BankCode) (bank.TransactionFetcher, io.Closer, error) {
	switch code {
	case bank.BankVPBank:
		cfg, err := app.vpbankConfig()
		if err != nil {
			return nil, nil, err
		}
		b, err := app.launchBrowser(ctx)
		if err != nil {
			return nil, nil, err
		}
		return vpbank.New(vpbank.FromRod(b),
			vpbank.WithConfig(cfg),
			vpbank.WithStatusRecorder(app.Accounts),
		), b, nil

	case bank.BankACB:
		cfg, err := app.acbConfig()
		if err != nil {
			return nil, nil, err
		}
		if app.Config.Captcha.URL == "" {
			return nil, nil, errors.New("captcha.url is required for ACB")
		}
		b, err := app.launchBrowser(ctx)
		if err != nil {
			return nil, nil, err
		}
		solver := captcha.New(app.Config.Captcha.URL, captcha.WithMode(captcha.Mode(app.Config.Captcha.Mode)))
		return acb.NewRunner(acb.RodOpener(b), solver, cfg,
			acb.WithStatusRecorder(app.Accounts),
		), b, nil
	}
	return nil, nil, fmt.Errorf("unsupported bank %q", code)
}

func (app *App) vpbankConfig() (vpbank.Config, error) {
	cfg := vpbank.DefaultConfig()
	loc, err := app.Config.Location()
	if err != nil {
		return cfg, err
	}
	cfg.Location = loc

	c := app.Config.VPBank
	if c.BaseURL != "" {
		cfg.BaseURL = c.BaseURL
	}
	if c.TokenTTL > 0 {
		cfg.TokenTTL = c.TokenTTL
	}
	if c.PageSize > 0 {
		cfg.PageSize = c.PageSize
	}
	cfg.Legacy = c.Legacy
	return cfg, nil
}

func (app *App) acbConfig() (acb.Config, error) {
	cfg := acb.DefaultConfig()
	loc, err := app.Config.Location()
	if err != nil {
		return cfg, err
	}
	cfg.Location = loc

	c := app.Config.ACB
	if c.LoginURL != "" {
		cfg.LoginURL = c.LoginURL
	}
	if c.PollInterval > 0 {
		cfg.PollInterval = c.PollInterval
	}
	if c.PageTimeout > 0 {
		cfg.PageTimeout = c.PageTimeout
	}
	if c.MaxLoads > 0 {
		cfg.MaxLoads = c.MaxLoads
	}
	return cfg, nil
}

func (app *App) billConfig() fbbill.Config {
	cfg := fbbill.DefaultConfig()
	if u := app.Config.Facebook.BillingURL; u != "" {
		cfg.BillingURL = u
	}
	if d := app.Config.Facebook.KeyDelay; d > 0 {
		cfg.KeyDelay = d
	}
	return cfg
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func (app *App) rodBillDriver(ctx context.Context) (fbbill.Driver, io.Closer, error) {
	b, err := app.launchBrowser(ctx)
	if err != nil {
		return nil, nil, err
	}
	page, err := b.OpenTab(ctx, app.billConfig().BillingURL)
	if err != nil {
		_ = b.Close()
		return nil, nil, err
	}
	return page, closerFunc(func() error {
		return errors.Join(page.Close(context.Background()), b.Close())
	}), nil
}

// webhook returns the configured webhook, or nil when none is set.
func (app *App) webhook() *sink.Webhook {
	c := app.Config.Webhook
	if c.URL == "" {
		return nil
	}
	return sink.New(c.URL, sink.WithTimeout(c.Timeout), sink.WithBatchSize(c.BatchSize))
}

func (app *App) defaultPoster() sink.Poster {
	if w := app.webhook(); w != nil {
		return w
	}
	return &linePoster{w: app.Out}
}

// linePoster prints every payload as one JSON line. It stands in for the
// webhook when none is configured.
type linePoster struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *linePoster) Post(_ context.Context, payload any) sink.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := json.NewEncoder(p.w).Encode(payload); err != nil {
		return sink.Result{Error: fmt.Sprintf("encode payload: %v", err)}
	}
	return sink.Result{OK: true}
}

// closeQuietly closes c after a run, logging instead of failing.
func (app *App) closeQuietly(c io.Closer, what string) {
	if c == nil {
		return
	}
	done := make(chan error, 1)
	go func() { done <- c.Close() }()
	select {
	case err := <-done:
		if err != nil {
			app.Logger.Debug().Err(err).Str("what", what).Msg("close")
		}
	case <-time.After(10 * time.Second):
		app.Logger.Warn().Str("what", what).Msg("close timed out")
	}
}
