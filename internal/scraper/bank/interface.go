// Package bank defines the common structs and logic used throughout bank
// implementations.
package bank

import (
	"context"
	"fmt"
	"strings"
)

// TransactionFetcher pulls the transaction history of one account. Failures
// are reported through the returned Result, never as a Go error.
type TransactionFetcher interface {
	FetchTransactions(ctx context.Context, req FetchRequest) Result
}

// StatusRecorder persists the online/offline state and token of an account
// after a flow ran against it.
type StatusRecorder interface {
	RecordStatus(ctx context.Context, acc Account) error
}

type BankCode string

const (
	BankACB    BankCode = "ACB"
	BankVPBank BankCode = "VPBANK"

	// BankFacebook tags errors of the billing lookup, which is not a bank
	// account and cannot be parsed from user input.
	BankFacebook BankCode = "FACEBOOK"
)

// ParseBankCode accepts a bank id in any case ("acb", "VPBank").
func ParseBankCode(s string) (BankCode, error) {
	switch code := BankCode(strings.ToUpper(strings.TrimSpace(s))); code {
	case BankACB, BankVPBank:
		return code, nil
	default:
		return "", fmt.Errorf("unsupported bank %q", s)
	}
}
