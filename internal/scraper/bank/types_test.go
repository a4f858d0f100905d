package bank

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_CookieHeader(t *testing.T) {
	s := NewSession(BankVPBank)
	s.MergeCookies(map[string]string{
		"SAP_SESSIONID": "abc",
		"empty":         "",
		"JSESSIONID":    "xyz",
	})
	s.MergeCookies(map[string]string{"SAP_SESSIONID": "def"})

	assert.Equal(t, "JSESSIONID=xyz; SAP_SESSIONID=def", s.CookieHeader())
}

func TestSession_Reset(t *testing.T) {
	s := NewSession(BankVPBank)
	s.MergeCookies(map[string]string{"a": "1"})
	s.DeviceID = "dev"
	s.TokenKey = "T1"
	s.CSRFToken = "C1"
	s.SelectedAccountID = "A1"

	s.Reset()

	assert.Empty(t, s.Cookies)
	assert.Empty(t, s.DeviceID)
	assert.Empty(t, s.TokenKey)
	assert.Empty(t, s.CSRFToken)
	assert.Empty(t, s.SelectedAccountID)
	assert.NotEmpty(t, s.ID, "session id survives a reset")
}

func TestParseBankCode(t *testing.T) {
	tests := []struct {
		in      string
		want    BankCode
		wantErr bool
	}{
		{"acb", BankACB, false},
		{" VPBank ", BankVPBank, false},
		{"vcb", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBankCode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFailure(t *testing.T) {
	t.Run("protocol error surfaces server text verbatim", func(t *testing.T) {
		err := &ScraperError{
			BankCode:  BankVPBank,
			Operation: "FetchAccounts",
			Cause:     &ProtocolError{Message: "Phiên làm việc đã hết hạn"},
		}

		res := Failure(BankVPBank, err)

		assert.False(t, res.Success)
		assert.Equal(t, "Phiên làm việc đã hết hạn", res.Message)
		assert.Equal(t, KindProtocol, res.Kind)
	})

	t.Run("explicit kind wins", func(t *testing.T) {
		err := &ScraperError{BankCode: BankACB, Operation: "Filter", Kind: KindFatal, Cause: ErrNoDateInputs}

		res := Failure(BankACB, err)

		assert.Equal(t, KindFatal, res.Kind)
		assert.Equal(t, "[ACB] Filter failed: date filter inputs not found", res.Message)
	})
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"login rejected", fmt.Errorf("login: %w", ErrInvalidCredentials), KindAuth},
		{"timeout", fmt.Errorf("wait: %w", ErrTimeout), KindTiming},
		{"protocol", &ProtocolError{Message: "x"}, KindProtocol},
		{"anything else", errors.New("boom"), KindFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}
