// Package vpbank drives the VPBank NEO portal: it takes a device id and
// cookies from a real browser tab, logs in against the authentication
// service and reads accounts and transactions through OData $batch calls.
package vpbank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/grez-lucas/vn-bank-sync/internal/poll"
	"github.com/grez-lucas/vn-bank-sync/internal/scraper/bank"
	"github.com/grez-lucas/vn-bank-sync/internal/scraper/bank/odata"
	"github.com/rs/zerolog"
)

// State is a step of the authentication flow. The flow only moves forward;
// StateFailed is reachable from every step.
type State string

const (
	StateInit                State = "INIT"
	StateLoggingIn           State = "LOGGING_IN"
	StateLoggedIn            State = "LOGGED_IN"
	StateAccountsFetched     State = "ACCOUNTS_FETCHED"
	StateTransactionsFetched State = "TRANSACTIONS_FETCHED"
	StateDone                State = "DONE"
	StateFailed              State = "FAILED"
)

// Browser opens tabs and exposes the cookie jar of the browser profile.
type Browser interface {
	OpenTab(ctx context.Context, url string) (Tab, error)
	Cookies(ctx context.Context, domain string) (map[string]string, error)
}

// Tab is one browsing context owned by the flow.
type Tab interface {
	LocalStorage(ctx context.Context, key string) (string, error)
	Close() error
}

type Config struct {
	BaseURL  string
	Location *time.Location
	// TokenTTL is how long a token key is recorded as valid after login.
	TokenTTL time.Duration
	PageSize int
	// Legacy switches the transactions read to the $filter query over
	// the transfer service.
	Legacy bool

	CookieAttempts   int
	CookieRetryDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		BaseURL:          DefaultBaseURL,
		Location:         time.FixedZone("ICT", 7*60*60),
		TokenTTL:         15 * time.Minute,
		PageSize:         200,
		CookieAttempts:   3,
		CookieRetryDelay: time.Second,
	}
}

// Flow runs one authentication flow at a time.
type Flow struct {
	cfg      Config
	browser  Browser
	client   *http.Client
	recorder bank.StatusRecorder

	state   State
	session *bank.Session
}

type Option func(*Flow)

func WithConfig(cfg Config) Option {
	return func(f *Flow) {
		f.cfg = cfg
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(f *Flow) {
		f.client = c
	}
}

// WithStatusRecorder marks the account online or offline after each run.
func WithStatusRecorder(r bank.StatusRecorder) Option {
	return func(f *Flow) {
		f.recorder = r
	}
}

func New(b Browser, opts ...Option) *Flow {
	f := &Flow{
		cfg:     DefaultConfig(),
		browser: b,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// State returns the step the last run reached.
func (f *Flow) State() State {
	return f.state
}

// FetchTransactions logs in with the account's credentials and reads its
// transactions between req.From and req.To. The returned Result carries
// either the raw OData transaction objects or the failure message.
func (f *Flow) FetchTransactions(ctx context.Context, req bank.FetchRequest) bank.Result {
	f.session = bank.NewSession(bank.BankVPBank)
	defer f.session.Reset()

	logger := zerolog.Ctx(ctx).With().
		Str("bank", string(bank.BankVPBank)).
		Str("session", f.session.ID).
		Logger()
	ctx = logger.WithContext(ctx)

	res, err := f.run(ctx, req)
	if err != nil {
		failedAt := f.state
		f.state = StateFailed
		logger.Error().Err(err).Str("state", string(failedAt)).Msg("flow failed")
		f.record(ctx, req.Account, false)
		return bank.Failure(bank.BankVPBank, err)
	}

	f.transition(ctx, StateDone)
	f.record(ctx, req.Account, true)
	return res
}

func (f *Flow) run(ctx context.Context, req bank.FetchRequest) (bank.Result, error) {
	f.transition(ctx, StateInit)
	if err := f.initSession(ctx); err != nil {
		return bank.Result{}, err
	}

	f.transition(ctx, StateLoggingIn)
	tab, err := f.browser.OpenTab(ctx, f.cfg.BaseURL)
	if err != nil {
		return bank.Result{}, f.wrap("Login", bank.KindFatal, err, "open tab")
	}
	defer closeTab(ctx, tab)

	if err := f.login(ctx, req.Account.Username, req.Account.Password); err != nil {
		return bank.Result{}, err
	}
	f.transition(ctx, StateLoggedIn)

	accountID, err := f.fetchAccountID(ctx)
	if err != nil {
		return bank.Result{}, err
	}
	f.session.SelectedAccountID = accountID
	f.transition(ctx, StateAccountsFetched)

	from, to := dayRange(req.From, req.To, f.cfg.Location)
	txns, count, err := f.fetchTransactions(ctx, accountID, from, to)
	if err != nil {
		return bank.Result{}, err
	}
	f.transition(ctx, StateTransactionsFetched)

	return bank.Result{
		Success:       true,
		Message:       fmt.Sprintf("fetched %d transactions", len(txns)),
		Bank:          bank.BankVPBank,
		AccountNumber: req.Account.AccountNumber,
		FromDate:      odata.Datetime(from),
		ToDate:        odata.Datetime(to),
		Count:         count,
		Transactions:  txns,
	}, nil
}

// initSession loads the portal in a throwaway tab to obtain the device id
// the portal generated and the cookies it set.
func (f *Flow) initSession(ctx context.Context) error {
	tab, err := f.browser.OpenTab(ctx, f.cfg.BaseURL)
	if err != nil {
		return f.wrap("InitSession", bank.KindFatal, err, "open tab")
	}
	defer closeTab(ctx, tab)

	f.refreshCookies(ctx)

	deviceID, err := tab.LocalStorage(ctx, DeviceIDKey)
	if err != nil {
		return f.wrap("InitSession", bank.KindFatal, fmt.Errorf("%w: %v", bank.ErrNoDeviceID, err), "")
	}
	if deviceID == "" {
		return f.wrap("InitSession", bank.KindFatal, bank.ErrNoDeviceID, "")
	}
	f.session.DeviceID = deviceID

	zerolog.Ctx(ctx).Debug().Int("cookies", len(f.session.Cookies)).Msg("session initialized")
	return nil
}

// refreshCookies re-reads the browser's cookies for the portal. Failures
// are retried and finally ignored; the flow carries on with what it has.
func (f *Flow) refreshCookies(ctx context.Context) {
	var cookies map[string]string
	err := poll.Retry(ctx, f.cfg.CookieAttempts, f.cfg.CookieRetryDelay, func(ctx context.Context, attempt int) error {
		c, err := f.browser.Cookies(ctx, CookieDomain)
		if err != nil {
			zerolog.Ctx(ctx).Debug().Err(err).Int("attempt", attempt).Msg("read cookies")
			return err
		}
		cookies = c
		return nil
	})
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("continuing without browser cookies")
		return
	}
	f.session.MergeCookies(cookies)
}

func (f *Flow) login(ctx context.Context, username, password string) error {
	body, err := json.Marshal(newLoginPayload(username, password))
	if err != nil {
		return f.wrap("Login", bank.KindFatal, err, "encode payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.cfg.BaseURL+LoginPath, bytes.NewReader(body))
	if err != nil {
		return f.wrap("Login", bank.KindFatal, err, "")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("device-id", f.session.DeviceID)
	req.Header.Set("Referer", f.cfg.BaseURL+RefererPath)
	req.Header.Set("DataServiceVersion", "2.0")
	req.Header.Set("channelType", "Web")
	if cookie := f.session.CookieHeader(); cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	resp, _, err := f.do(req)
	if err != nil {
		return f.wrap("Login", bank.KindFatal, err, "")
	}

	if resp.StatusCode != http.StatusCreated {
		return f.wrap("Login", bank.KindAuth, bank.ErrInvalidCredentials, fmt.Sprintf("status %d", resp.StatusCode))
	}

	f.session.TokenKey = resp.Header.Get("tokenkey")
	f.session.CSRFToken = resp.Header.Get("x-csrf-token")
	f.session.ExpiresAt = time.Now().Add(f.cfg.TokenTTL)
	if f.session.TokenKey == "" || f.session.CSRFToken == "" {
		zerolog.Ctx(ctx).Warn().
			Bool("tokenkey", f.session.TokenKey != "").
			Bool("csrf", f.session.CSRFToken != "").
			Msg("login succeeded without every token header")
	}

	f.refreshCookies(ctx)
	return nil
}

type depositAccount struct {
	ID     string `json:"Id"`
	Number string `json:"Number,omitempty"`
}

// fetchAccountID returns the id of the first deposit account the portal
// lists. The requested account number is not used to pick one.
func (f *Flow) fetchAccountID(ctx context.Context) (string, error) {
	d, err := f.batch(ctx, AccountServiceBatch, depositAccountsRequest(f.cfg.PageSize))
	if err != nil {
		return "", f.wrap("FetchAccounts", "", err, "")
	}

	var accounts odata.Collection[depositAccount]
	if err := json.Unmarshal(d, &accounts); err != nil {
		return "", f.wrap("FetchAccounts", bank.KindFatal, fmt.Errorf("%w: %v", bank.ErrParsingFailed, err), "")
	}
	if len(accounts.Results) == 0 {
		return "", f.wrap("FetchAccounts", bank.KindFatal, bank.ErrAccountNotFound, "no deposit accounts")
	}

	selected := accounts.Results[0]
	zerolog.Ctx(ctx).Debug().Int("accounts", len(accounts.Results)).Str("account_id", selected.ID).Msg("account selected")
	return selected.ID, nil
}

func (f *Flow) fetchTransactions(ctx context.Context, accountID string, from, to time.Time) ([]json.RawMessage, int, error) {
	if f.cfg.Legacy {
		d, err := f.batch(ctx, TransferServiceBatch, transfersRequest(0, f.cfg.PageSize, from, to))
		if err != nil {
			return nil, 0, f.wrap("FetchTransactions", "", err, "legacy transfers")
		}

		var transfers odata.Collection[json.RawMessage]
		if err := json.Unmarshal(d, &transfers); err != nil {
			return nil, 0, f.wrap("FetchTransactions", bank.KindFatal, fmt.Errorf("%w: %v", bank.ErrParsingFailed, err), "")
		}
		return transfers.Results, countOf(transfers), nil
	}

	d, err := f.batch(ctx, AccountServiceBatch, accountTransactionsRequest(accountID, from, to))
	if err != nil {
		return nil, 0, f.wrap("FetchTransactions", "", err, "")
	}

	var account struct {
		Transactions odata.Collection[json.RawMessage] `json:"DepositAccountTransactions"`
	}
	if err := json.Unmarshal(d, &account); err != nil {
		return nil, 0, f.wrap("FetchTransactions", bank.KindFatal, fmt.Errorf("%w: %v", bank.ErrParsingFailed, err), "")
	}
	if account.Transactions.Results == nil {
		account.Transactions.Results = []json.RawMessage{}
	}
	return account.Transactions.Results, countOf(account.Transactions), nil
}

func countOf[T any](c odata.Collection[T]) int {
	var n int
	if _, err := fmt.Sscan(c.Count, &n); err == nil {
		return n
	}
	return len(c.Results)
}

// batch posts one $batch request to the given service and returns the
// response's "d" payload.
func (f *Flow) batch(ctx context.Context, servicePath string, r odata.Request) (json.RawMessage, error) {
	b := odata.Build(r, odata.Tokens{TokenKey: f.session.TokenKey, CSRFToken: f.session.CSRFToken})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.cfg.BaseURL+servicePath, strings.NewReader(b.Body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", b.ContentType())
	req.Header.Set("Accept", "multipart/mixed")
	req.Header.Set("Cookie", f.session.CookieHeader())
	req.Header.Set("Referer", f.cfg.BaseURL+RefererPath)
	req.Header.Set("DataServiceVersion", "2.0")
	req.Header.Set("MaxDataServiceVersion", "2.0")
	req.Header.Set("TokenKey", f.session.TokenKey)
	req.Header.Set("x-csrf-token", f.session.CSRFToken)
	req.Header.Set("device-id", f.session.DeviceID)
	req.Header.Set("channelType", "Web")
	req.Header.Set("sap-contextid-accept", "header")
	req.Header.Set("sap-cancel-on-close", "true")
	req.Header.Set("Accept-Language", "vi")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	zerolog.Ctx(ctx).Debug().Str("request", b.RequestLine()).Str("boundary", b.Boundary).Msg("batch")

	resp, body, err := f.do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		// The gateway may still explain itself in an error envelope.
		if _, perr := odata.ParseResponse(resp.Header.Get("Content-Type"), body); perr != nil {
			if kind := bank.KindOf(perr); kind == bank.KindProtocol {
				return nil, perr
			}
		}
		return nil, fmt.Errorf("unexpected batch status %d", resp.StatusCode)
	}

	f.refreshCookies(ctx)
	return odata.ParseResponse(resp.Header.Get("Content-Type"), body)
}

// do sends req, reads the whole body and merges any Set-Cookie values into
// the session.
func (f *Flow) do(req *http.Request) (*http.Response, []byte, error) {
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}

	set := make(map[string]string)
	for _, c := range resp.Cookies() {
		set[c.Name] = c.Value
	}
	f.session.MergeCookies(set)

	return resp, body, nil
}

func (f *Flow) transition(ctx context.Context, next State) {
	zerolog.Ctx(ctx).Debug().Str("from", string(f.state)).Str("to", string(next)).Msg("transition")
	f.state = next
}

func (f *Flow) record(ctx context.Context, acc bank.Account, online bool) {
	if f.recorder == nil || acc.ID == "" {
		return
	}

	acc.BankID = bank.BankVPBank
	acc.LastChecked = time.Now()
	if online {
		acc.Status = bank.StatusOnline
		acc.AccessToken = f.session.TokenKey
		acc.TokenExpires = f.session.ExpiresAt
	} else {
		acc.Status = bank.StatusOffline
		acc.AccessToken = ""
		acc.TokenExpires = time.Time{}
	}

	if err := f.recorder.RecordStatus(ctx, acc); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("account", acc.ID).Msg("record account status")
	}
}

func (f *Flow) wrap(op string, kind bank.ErrorKind, err error, details string) error {
	return &bank.ScraperError{
		BankCode:  bank.BankVPBank,
		Operation: op,
		Kind:      kind,
		Cause:     err,
		Details:   details,
	}
}

func closeTab(ctx context.Context, tab Tab) {
	if err := tab.Close(); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Msg("close tab")
	}
}
