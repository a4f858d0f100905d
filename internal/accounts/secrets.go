package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/grez-lucas/vn-bank-sync/internal/scraper/bank"
)

// SecretStore holds account passwords, keyed by account id.
type SecretStore interface {
	Password(ctx context.Context, accountID string) (string, error)
	SetPassword(ctx context.Context, accountID, password string) error
	DeletePassword(ctx context.Context, accountID string) error
}

// FileSecrets is a SecretStore backed by a JSON file readable only by the
// owner. It is not encrypted.
type FileSecrets struct {
	path string
	mu   sync.Mutex
}

var _ SecretStore = (*FileSecrets)(nil)

func NewFileSecrets(path string) *FileSecrets {
	return &FileSecrets{path: path}
}

func (f *FileSecrets) load() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read secrets: %w", err)
	}

	m := map[string]string{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode secrets: %w", err)
		}
	}
	return m, nil
}

func (f *FileSecrets) save(m map[string]string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(f.path, data, 0o600)
}

func (f *FileSecrets) Password(ctx context.Context, accountID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	m, err := f.load()
	if err != nil {
		return "", err
	}
	pw, ok := m[accountID]
	if !ok {
		return "", fmt.Errorf("%w: no password for %s", ErrNotFound, accountID)
	}
	return pw, nil
}

func (f *FileSecrets) SetPassword(ctx context.Context, accountID, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	m, err := f.load()
	if err != nil {
		return err
	}
	m[accountID] = password
	return f.save(m)
}

func (f *FileSecrets) DeletePassword(ctx context.Context, accountID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	m, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := m[accountID]; !ok {
		return nil
	}
	delete(m, accountID)
	return f.save(m)
}

// WithPassword returns acc with its password filled in from secrets.
func WithPassword(ctx context.Context, secrets SecretStore, acc bank.Account) (bank.Account, error) {
	pw, err := secrets.Password(ctx, acc.ID)
	if err != nil {
		return bank.Account{}, err
	}
	acc.Password = pw
	return acc, nil
}
