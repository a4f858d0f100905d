package bank

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Session holds the credentials correlated across the requests of one
// authentication flow. It is owned by that flow and reset when it ends.
type Session struct {
	ID        string
	BankCode  BankCode
	ExpiresAt time.Time

	Cookies           map[string]string
	DeviceID          string
	CSRFToken         string
	TokenKey          string
	SelectedAccountID string
}

func NewSession(code BankCode) *Session {
	return &Session{
		ID:       uuid.NewString(),
		BankCode: code,
		Cookies:  make(map[string]string),
	}
}

// MergeCookies overwrites the stored cookies with the given ones.
func (s *Session) MergeCookies(cookies map[string]string) {
	if s.Cookies == nil {
		s.Cookies = make(map[string]string, len(cookies))
	}
	for name, value := range cookies {
		s.Cookies[name] = value
	}
}

// CookieHeader renders the stored cookies as a Cookie header value, sorted
// by name. Cookies with an empty name or value are left out.
func (s *Session) CookieHeader() string {
	names := make([]string, 0, len(s.Cookies))
	for name, value := range s.Cookies {
		if name == "" || value == "" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + "=" + s.Cookies[name]
	}
	return strings.Join(parts, "; ")
}

// Reset discards every credential held by the session.
func (s *Session) Reset() {
	s.Cookies = make(map[string]string)
	s.DeviceID = ""
	s.CSRFToken = ""
	s.TokenKey = ""
	s.SelectedAccountID = ""
	s.ExpiresAt = time.Time{}
}

type AccountStatus string

const (
	StatusOnline  AccountStatus = "online"
	StatusOffline AccountStatus = "offline"
)

// Account is a bank login managed by the user. Password is never persisted
// with the account record; it lives in a SecretStore.
type Account struct {
	ID            string        `json:"id"`
	BankID        BankCode      `json:"-"`
	Username      string        `json:"username"`
	Password      string        `json:"-"`
	AccountNumber string        `json:"accountNumber"`
	Status        AccountStatus `json:"status"`
	AccessToken   string        `json:"accessToken,omitempty"`
	TokenExpires  time.Time     `json:"tokenExpires,omitzero"`
	LastChecked   time.Time     `json:"lastChecked,omitzero"`
}

// FetchRequest is the input of a transaction history pull.
type FetchRequest struct {
	Account Account
	From    time.Time
	To      time.Time
	// Date is the single dd/mm/yyyy day requested from page-driven flows.
	// Empty means the portal's default window.
	Date string
}

// Result is the shape every flow hands back to its caller.
type Result struct {
	Success       bool      `json:"success"`
	Message       string    `json:"message,omitempty"`
	Kind          ErrorKind `json:"kind,omitempty"`
	Bank          BankCode  `json:"bank,omitempty"`
	AccountNumber string    `json:"accountNumber,omitempty"`
	FromDate      string    `json:"fromDate,omitempty"`
	ToDate        string    `json:"toDate,omitempty"`
	Count         int       `json:"count"`
	Transactions  any       `json:"transactions,omitempty"`
	Valid         *bool     `json:"valid,omitempty"`
	Errors        []string  `json:"errors,omitempty"`
}
