// Package acb drives ACB Online through its rendered pages. Every step that
// submits a form or follows a link destroys the page, so the next step is
// persisted in the tab's sessionStorage and resumed by OnLoad.
package acb

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/grez-lucas/vn-bank-sync/internal/captcha"
	"github.com/grez-lucas/vn-bank-sync/internal/poll"
	"github.com/grez-lucas/vn-bank-sync/internal/scraper/bank"
	"github.com/rs/zerolog"
)

// FilterDateLayout is how the statement filter inputs take dates.
const FilterDateLayout = "02/01/2006"

type Config struct {
	LoginURL string
	Location *time.Location

	PollInterval time.Duration
	PageTimeout  time.Duration

	ClickAttempts   int
	ClickRetryDelay time.Duration
	TableWait       time.Duration

	AccountSettle time.Duration
	DetailSettle  time.Duration
	FilterSettle  time.Duration

	// MaxLoads bounds how many page loads a Runner follows.
	MaxLoads int
}

func DefaultConfig() Config {
	return Config{
		LoginURL:        DefaultLoginURL,
		Location:        vnZone,
		PollInterval:    time.Second,
		PageTimeout:     15 * time.Second,
		ClickAttempts:   3,
		ClickRetryDelay: 2 * time.Second,
		TableWait:       5 * time.Second,
		AccountSettle:   1500 * time.Millisecond,
		DetailSettle:    2 * time.Second,
		FilterSettle:    500 * time.Millisecond,
		MaxLoads:        8,
	}
}

// Request starts a flow.
type Request struct {
	Username      string
	Password      string
	AccountNumber string
	// Date is dd/mm/yyyy; empty or malformed means yesterday to today.
	Date string
}

// Machine is the page flow bound to one tab. It holds no state between
// calls besides what the Store persists.
type Machine struct {
	cfg      Config
	driver   Driver
	store    Store
	solver   Solver
	reporter Reporter
	now      func() time.Time
}

func NewMachine(d Driver, s Store, solver Solver, r Reporter, cfg Config) *Machine {
	if cfg.Location == nil {
		cfg.Location = vnZone
	}
	return &Machine{
		cfg:      cfg,
		driver:   d,
		store:    s,
		solver:   solver,
		reporter: r,
		now:      time.Now,
	}
}

// Start begins a flow on whatever page the tab currently shows. Any state
// left by an earlier flow is discarded first.
func (m *Machine) Start(ctx context.Context, req Request) error {
	st := FlowState{AccountNumber: req.AccountNumber, Date: req.Date}

	if err := m.store.Clear(ctx); err != nil {
		return m.fail(ctx, st, err)
	}

	page, err := m.currentPage(ctx)
	if err != nil {
		return m.fail(ctx, st, err)
	}

	log := zerolog.Ctx(ctx).With().Str("bank", string(bank.BankACB)).Logger()
	log.Info().Str("page", string(page)).Str("account", req.AccountNumber).Msg("starting flow")

	switch page {
	case PageLogin:
		err = m.advance(ctx, st, ActionClickAccount, func() error {
			return m.login(ctx, req.Username, req.Password)
		})
	case PageAccountList:
		err = m.advance(ctx, st, ActionFilterAndSubmit, func() error {
			return m.clickAccount(ctx, req.AccountNumber)
		})
	case PageDetailNoData:
		err = m.advance(ctx, st, ActionGetTransactions, func() error {
			return m.filterAndSubmit(ctx, req.Date)
		})
	case PageDetailWithData:
		err = m.finish(ctx, st)
	default:
		err = &bank.ScraperError{
			BankCode:  bank.BankACB,
			Operation: "detect page",
			Kind:      bank.KindFatal,
			Cause:     bank.ErrUnknownPage,
		}
	}

	if err != nil {
		return m.fail(ctx, st, err)
	}
	return nil
}

// OnLoad is the single entry point after every page load. It is a no-op
// when nothing is pending.
func (m *Machine) OnLoad(ctx context.Context) error {
	st, err := m.store.Load(ctx)
	if err != nil {
		return m.fail(ctx, FlowState{}, err)
	}
	if st == nil {
		return nil
	}

	log := zerolog.Ctx(ctx).With().Str("bank", string(bank.BankACB)).Str("action", string(st.Action)).Logger()
	log.Debug().Str("account", st.AccountNumber).Msg("resuming flow")

	switch st.Action {
	case ActionClickAccount:
		err = m.resume(ctx, PageAccountList, m.cfg.AccountSettle, func() error {
			return m.advance(ctx, *st, ActionFilterAndSubmit, func() error {
				return m.clickAccount(ctx, st.AccountNumber)
			})
		})
	case ActionFilterAndSubmit:
		err = m.resume(ctx, PageDetailNoData, m.cfg.DetailSettle, func() error {
			return m.advance(ctx, *st, ActionGetTransactions, func() error {
				return m.filterAndSubmit(ctx, st.Date)
			})
		})
	case ActionGetTransactions:
		err = m.resume(ctx, PageDetailWithData, m.cfg.DetailSettle, func() error {
			return m.finish(ctx, *st)
		})
	default:
		err = fmt.Errorf("%w: unknown action %q", bank.ErrUnknownPage, st.Action)
	}

	if err != nil {
		return m.fail(ctx, *st, err)
	}
	return nil
}

// resume waits for the page a step expects, lets it settle, then runs it.
func (m *Machine) resume(ctx context.Context, want Page, settle time.Duration, step func() error) error {
	if err := m.waitForPage(ctx, want); err != nil {
		return err
	}
	if err := poll.Sleep(ctx, settle); err != nil {
		return err
	}
	return step()
}

// advance persists the next step, then runs the action that navigates
// away. The write happens first so it cannot race the unload.
func (m *Machine) advance(ctx context.Context, st FlowState, next Action, action func() error) error {
	saved := FlowState{
		Action:        next,
		AccountNumber: st.AccountNumber,
		Date:          st.Date,
		AttemptCount:  st.AttemptCount,
		StartTime:     m.now().UnixMilli(),
	}
	if err := m.store.Save(ctx, saved); err != nil {
		return err
	}
	return action()
}

func (m *Machine) currentPage(ctx context.Context) (Page, error) {
	html, err := m.driver.HTML(ctx)
	if err != nil {
		return PageUnknown, fmt.Errorf("read page: %w", err)
	}
	return DetectPage(html)
}

func (m *Machine) waitForPage(ctx context.Context, want Page) error {
	_, err := poll.Until(ctx, m.cfg.PollInterval, m.cfg.PageTimeout, func(ctx context.Context) (Page, bool, error) {
		page, err := m.currentPage(ctx)
		if err != nil {
			// Mid-navigation reads fail; try again on the next tick.
			return page, false, nil
		}
		return page, page == want, nil
	})
	if errors.Is(err, poll.ErrTimeout) {
		return &bank.ScraperError{
			BankCode:  bank.BankACB,
			Operation: "wait for " + string(want),
			Kind:      bank.KindTiming,
			Cause:     bank.ErrTimeout,
			Details:   err.Error(),
		}
	}
	return err
}

func (m *Machine) login(ctx context.Context, username, password string) error {
	data, mimeType, err := m.driver.Resource(ctx, SelectorCaptchaImage)
	if err != nil {
		return &bank.ScraperError{BankCode: bank.BankACB, Operation: "fetch captcha", Kind: bank.KindFatal, Cause: err}
	}

	text, err := m.solver.Solve(ctx, captcha.Image{
		Base64:   base64.StdEncoding.EncodeToString(data),
		MimeType: mimeType,
	})
	if err != nil {
		return &bank.ScraperError{BankCode: bank.BankACB, Operation: "solve captcha", Kind: bank.KindFatal, Cause: err}
	}

	fields := []struct{ selector, value string }{
		{SelectorUserInput, username},
		{SelectorPasswordInput, password},
		{SelectorCaptchaInput, text},
	}
	for _, f := range fields {
		if err := m.driver.FillField(ctx, f.selector, f.value); err != nil {
			return &bank.ScraperError{BankCode: bank.BankACB, Operation: "fill login form", Kind: bank.KindFatal, Cause: err, Details: f.selector}
		}
	}

	for _, sel := range SubmitSelectors {
		err := m.driver.Click(ctx, sel)
		if errors.Is(err, bank.ErrElementNotFound) {
			continue
		}
		if err != nil {
			return &bank.ScraperError{BankCode: bank.BankACB, Operation: "submit login", Kind: bank.KindFatal, Cause: err}
		}
		zerolog.Ctx(ctx).Info().Msg("login form submitted")
		return nil
	}

	return &bank.ScraperError{
		BankCode:  bank.BankACB,
		Operation: "submit login",
		Kind:      bank.KindFatal,
		Cause:     bank.ErrElementNotFound,
		Details:   "no submit button",
	}
}

func (m *Machine) clickAccount(ctx context.Context, accountNumber string) error {
	target := stripSpaces(accountNumber)
	log := zerolog.Ctx(ctx)

	err := poll.Retry(ctx, m.cfg.ClickAttempts, m.cfg.ClickRetryDelay, func(ctx context.Context, attempt int) error {
		log.Debug().Int("attempt", attempt).Str("account", accountNumber).Msg("clicking account")

		if err := m.driver.WaitFor(ctx, SelectorAccountTable, m.cfg.TableWait); err != nil {
			return err
		}

		err := m.driver.ClickMatching(ctx, SelectorAccountLinks, func(text, _ string) bool {
			return stripSpaces(text) == target
		})
		if errors.Is(err, bank.ErrElementNotFound) {
			return fmt.Errorf("%w: %s not in table", bank.ErrAccountNotFound, accountNumber)
		}
		return err
	})
	if err != nil {
		return &bank.ScraperError{
			BankCode:  bank.BankACB,
			Operation: "click account",
			Kind:      bank.KindFatal,
			Cause:     err,
			Details:   fmt.Sprintf("gave up after %d attempts", m.cfg.ClickAttempts),
		}
	}
	return nil
}

func (m *Machine) filterAndSubmit(ctx context.Context, date string) error {
	noInputs := func(cause error) error {
		return &bank.ScraperError{
			BankCode:  bank.BankACB,
			Operation: "filter by date",
			Kind:      bank.KindFatal,
			Cause:     bank.ErrNoDateInputs,
			Details:   cause.Error(),
		}
	}

	if err := m.driver.WaitFor(ctx, SelectorFromDate, m.cfg.TableWait); err != nil {
		return noInputs(err)
	}

	from, to := filterRange(date, m.now().In(m.cfg.Location))
	zerolog.Ctx(ctx).Info().Str("from", from).Str("to", to).Msg("setting date range")

	if err := m.driver.FillField(ctx, SelectorFromDate, from); err != nil {
		return noInputs(err)
	}
	if err := m.driver.FillField(ctx, SelectorToDate, to); err != nil {
		return noInputs(err)
	}

	if err := poll.Sleep(ctx, m.cfg.FilterSettle); err != nil {
		return err
	}

	err := m.driver.ClickMatching(ctx, SelectorFilterButtons, func(_, value string) bool {
		return value == FilterButtonValue
	})
	if err != nil {
		return &bank.ScraperError{
			BankCode:  bank.BankACB,
			Operation: "submit filter",
			Kind:      bank.KindFatal,
			Cause:     err,
			Details:   fmt.Sprintf("button %q", FilterButtonValue),
		}
	}
	return nil
}

// filterRange returns the From/To values for the date filter. A valid
// date is used for both ends.
func filterRange(date string, now time.Time) (from, to string) {
	if date != "" {
		if d, err := time.ParseInLocation("2/1/2006", date, now.Location()); err == nil {
			s := d.Format(FilterDateLayout)
			return s, s
		}
	}
	return now.AddDate(0, 0, -1).Format(FilterDateLayout), now.Format(FilterDateLayout)
}

func (m *Machine) finish(ctx context.Context, st FlowState) error {
	tableHTML, err := m.driver.ExtractTable(ctx, SelectorTransactionTable)
	if err != nil {
		return fmt.Errorf("%w: %v", bank.ErrParsingFailed, err)
	}
	pageText, err := m.driver.Text(ctx, "body")
	if err != nil {
		return fmt.Errorf("read page text: %w", err)
	}

	ex, err := ExtractTransactions(tableHTML, pageText)
	if err != nil {
		return err
	}

	// The inputs show what the portal actually applied.
	from, _ := m.driver.Value(ctx, SelectorFromDate)
	to, _ := m.driver.Value(ctx, SelectorToDate)

	if err := m.store.Clear(ctx); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("clearing flow state")
	}

	valid := ex.Valid
	res := bank.Result{
		Success:       true,
		Message:       fmt.Sprintf("extracted %d transactions", len(ex.Transactions)),
		Bank:          bank.BankACB,
		AccountNumber: st.AccountNumber,
		FromDate:      from,
		ToDate:        to,
		Count:         len(ex.Transactions),
		Transactions:  ex.Transactions,
		Valid:         &valid,
		Errors:        ex.Errors,
	}

	log := zerolog.Ctx(ctx)
	if !valid {
		log.Warn().Strs("errors", ex.Errors).Msg("statement totals do not match")
	}
	log.Info().Int("count", res.Count).Str("account", st.AccountNumber).Msg("transactions extracted")

	m.reporter.Report(ctx, res)

	if err := m.driver.Close(ctx); err != nil {
		log.Debug().Err(err).Msg("closing tab")
	}
	return nil
}

// fail clears the persisted state and reports err as the flow's result.
func (m *Machine) fail(ctx context.Context, st FlowState, err error) error {
	log := zerolog.Ctx(ctx)
	if clearErr := m.store.Clear(ctx); clearErr != nil {
		log.Warn().Err(clearErr).Msg("clearing flow state")
	}
	log.Error().Err(err).Str("action", string(st.Action)).Msg("flow failed")

	res := bank.Failure(bank.BankACB, err)
	res.AccountNumber = st.AccountNumber
	m.reporter.Report(ctx, res)
	return err
}
