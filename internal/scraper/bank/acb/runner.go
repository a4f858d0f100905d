package acb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/grez-lucas/vn-bank-sync/internal/scraper/bank"
	"github.com/rs/zerolog"
)

// Tab is a Driver that can also wait for the next page load and for the
// loaded DOM to stop changing.
type Tab interface {
	Driver
	WaitLoad(ctx context.Context) error
	Settle(ctx context.Context) error
}

// Opener opens a tab on url and returns the flow state store scoped to it.
type Opener func(ctx context.Context, url string) (Tab, Store, error)

// Runner pulls ACB transactions by opening a fresh tab and following the
// page flow until it reports a result.
type Runner struct {
	open     Opener
	solver   Solver
	cfg      Config
	recorder bank.StatusRecorder
}

var _ bank.TransactionFetcher = (*Runner)(nil)

type RunnerOption func(*Runner)

func WithStatusRecorder(r bank.StatusRecorder) RunnerOption {
	return func(rn *Runner) { rn.recorder = r }
}

func NewRunner(open Opener, solver Solver, cfg Config, opts ...RunnerOption) *Runner {
	r := &Runner{open: open, solver: solver, cfg: cfg}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FetchTransactions never returns a Go error; failures are folded into the
// result. The tab is closed on every path.
func (r *Runner) FetchTransactions(ctx context.Context, req bank.FetchRequest) bank.Result {
	res := r.run(ctx, req)
	r.record(ctx, req.Account, res)
	return res
}

func (r *Runner) run(ctx context.Context, req bank.FetchRequest) bank.Result {
	log := zerolog.Ctx(ctx).With().Str("bank", string(bank.BankACB)).Logger()
	ctx = log.WithContext(ctx)

	tab, store, err := r.open(ctx, r.cfg.LoginURL)
	if err != nil {
		return bank.Failure(bank.BankACB, &bank.ScraperError{
			BankCode:  bank.BankACB,
			Operation: "open tab",
			Kind:      bank.KindFatal,
			Cause:     err,
		})
	}
	defer func() {
		if err := tab.Close(ctx); err != nil {
			log.Debug().Err(err).Msg("closing tab")
		}
	}()

	var (
		mu     sync.Mutex
		result *bank.Result
	)
	reporter := ReporterFunc(func(_ context.Context, res bank.Result) {
		mu.Lock()
		defer mu.Unlock()
		if result == nil {
			result = &res
		}
	})
	done := func() *bank.Result {
		mu.Lock()
		defer mu.Unlock()
		return result
	}

	m := NewMachine(tab, store, r.solver, reporter, r.cfg)

	date := req.Date
	if date == "" && !req.From.IsZero() {
		date = req.From.In(m.cfg.Location).Format(FilterDateLayout)
	}

	_ = m.Start(ctx, Request{
		Username:      req.Account.Username,
		Password:      req.Account.Password,
		AccountNumber: req.Account.AccountNumber,
		Date:          date,
	})

	for loads := 0; done() == nil && loads < r.cfg.MaxLoads; loads++ {
		st, err := store.Load(ctx)
		if err != nil {
			log.Error().Err(err).Int("loads", loads).Msg("reading flow state")
			_ = store.Clear(ctx)
			return bank.Failure(bank.BankACB, &bank.ScraperError{
				BankCode:  bank.BankACB,
				Operation: "load flow state",
				Kind:      bank.KindFatal,
				Cause:     err,
			})
		}
		if st == nil {
			break
		}

		if err := tab.WaitLoad(ctx); err != nil {
			log.Debug().Err(err).Msg("waiting for page load")
		}
		if err := tab.Settle(ctx); err != nil {
			log.Debug().Err(err).Msg("waiting for the page to settle")
		}
		_ = m.OnLoad(ctx)
	}

	if res := done(); res != nil {
		return *res
	}

	_ = store.Clear(ctx)
	return bank.Failure(bank.BankACB, &bank.ScraperError{
		BankCode:  bank.BankACB,
		Operation: "follow page flow",
		Kind:      bank.KindTiming,
		Cause:     bank.ErrTimeout,
		Details:   fmt.Sprintf("no result after %d page loads", r.cfg.MaxLoads),
	})
}

func (r *Runner) record(ctx context.Context, acc bank.Account, res bank.Result) {
	if r.recorder == nil || acc.ID == "" {
		return
	}
	acc.BankID = bank.BankACB
	acc.LastChecked = time.Now()
	acc.Status = bank.StatusOffline
	if res.Success {
		acc.Status = bank.StatusOnline
	}
	if err := r.recorder.RecordStatus(ctx, acc); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("account", acc.ID).Msg("record account status")
	}
}
