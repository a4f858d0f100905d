package acb

import (
	"context"
	"encoding/json"
	"fmt"
)

// Action is the step a reloaded page has to perform next.
type Action string

const (
	ActionClickAccount    Action = "CLICK_ACCOUNT"
	ActionFilterAndSubmit Action = "FILTER_AND_SUBMIT"
	ActionGetTransactions Action = "GET_TRANSACTIONS"
)

// FlowState is the persisted descriptor of a pending flow. StartTime is
// Unix milliseconds.
type FlowState struct {
	Action        Action `json:"action"`
	AccountNumber string `json:"accountNumber"`
	Date          string `json:"date,omitempty"`
	AttemptCount  int    `json:"attemptCount"`
	StartTime     int64  `json:"startTime"`
}

// Store persists at most one FlowState for the lifetime of a tab.
type Store interface {
	// Load returns nil without error when nothing is pending.
	Load(ctx context.Context) (*FlowState, error)
	Save(ctx context.Context, st FlowState) error
	Clear(ctx context.Context) error
}

// KV is a single string slot, such as one sessionStorage key.
type KV interface {
	Get(ctx context.Context) (string, bool, error)
	Set(ctx context.Context, value string) error
	Delete(ctx context.Context) error
}

type sessionStore struct {
	kv KV
}

// NewSessionStore keeps the flow state JSON-encoded in kv.
func NewSessionStore(kv KV) Store {
	return &sessionStore{kv: kv}
}

func (s *sessionStore) Load(ctx context.Context) (*FlowState, error) {
	raw, ok, err := s.kv.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load flow state: %w", err)
	}
	if !ok || raw == "" {
		return nil, nil
	}

	var st FlowState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, fmt.Errorf("decode flow state: %w", err)
	}
	return &st, nil
}

func (s *sessionStore) Save(ctx context.Context, st FlowState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode flow state: %w", err)
	}
	if err := s.kv.Set(ctx, string(raw)); err != nil {
		return fmt.Errorf("save flow state: %w", err)
	}
	return nil
}

func (s *sessionStore) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx); err != nil {
		return fmt.Errorf("clear flow state: %w", err)
	}
	return nil
}
