// Package accounts keeps the user's bank logins in a local JSON file,
// grouped by bank. Passwords are never written there; they go through a
// SecretStore.
package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/grez-lucas/vn-bank-sync/internal/scraper/bank"
	"github.com/rs/zerolog"
)

var (
	ErrNotFound  = errors.New("account not found")
	ErrDuplicate = errors.New("account already exists")
)

// FileStore persists accounts as {"<bankId>": [account, ...]}.
type FileStore struct {
	path string
	mu   sync.Mutex
}

var _ bank.StatusRecorder = (*FileStore)(nil)

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

type document map[bank.BankCode][]bank.Account

func (s *FileStore) load() (document, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read accounts: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return document{}, nil
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode accounts %s: %w", s.path, err)
	}
	for code, list := range doc {
		for i := range list {
			list[i].BankID = code
		}
	}
	return doc, nil
}

func (s *FileStore) save(doc document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode accounts: %w", err)
	}
	return writeFileAtomic(s.path, data, 0o644)
}

// List returns the accounts of one bank, in insertion order.
func (s *FileStore) List(ctx context.Context, code bank.BankCode) ([]bank.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	return doc[code], nil
}

// Add stores a new account with a fresh id and offline status. The
// password field is ignored.
func (s *FileStore) Add(ctx context.Context, acc bank.Account) (bank.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return bank.Account{}, err
	}
	for _, existing := range doc[acc.BankID] {
		if existing.Username == acc.Username && existing.AccountNumber == acc.AccountNumber {
			return bank.Account{}, fmt.Errorf("%w: %s %s", ErrDuplicate, acc.BankID, acc.Username)
		}
	}

	acc.ID = uuid.NewString()
	acc.Password = ""
	acc.Status = bank.StatusOffline
	doc[acc.BankID] = append(doc[acc.BankID], acc)

	if err := s.save(doc); err != nil {
		return bank.Account{}, err
	}
	zerolog.Ctx(ctx).Debug().Str("bank", string(acc.BankID)).Str("account", acc.ID).Msg("account added")
	return acc, nil
}

// Get looks an account up by id across every bank.
func (s *FileStore) Get(ctx context.Context, id string) (bank.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return bank.Account{}, err
	}
	for _, list := range doc {
		for _, acc := range list {
			if acc.ID == id {
				return acc, nil
			}
		}
	}
	return bank.Account{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Find resolves key within a bank: an exact id first, then an account
// number, then a username.
func (s *FileStore) Find(ctx context.Context, code bank.BankCode, key string) (bank.Account, error) {
	list, err := s.List(ctx, code)
	if err != nil {
		return bank.Account{}, err
	}
	for _, match := range []func(bank.Account) bool{
		func(a bank.Account) bool { return a.ID == key },
		func(a bank.Account) bool { return a.AccountNumber == key },
		func(a bank.Account) bool { return a.Username == key },
	} {
		for _, acc := range list {
			if match(acc) {
				return acc, nil
			}
		}
	}
	return bank.Account{}, fmt.Errorf("%w: %s %s", ErrNotFound, code, key)
}

func (s *FileStore) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	for code, list := range doc {
		for i, acc := range list {
			if acc.ID != id {
				continue
			}
			doc[code] = append(list[:i], list[i+1:]...)
			if len(doc[code]) == 0 {
				delete(doc, code)
			}
			return s.save(doc)
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

// RecordStatus overwrites the status, token and last check of a stored
// account. Flows call it after every run.
func (s *FileStore) RecordStatus(ctx context.Context, acc bank.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	list := doc[acc.BankID]
	for i := range list {
		if list[i].ID != acc.ID {
			continue
		}
		list[i].Status = acc.Status
		list[i].AccessToken = acc.AccessToken
		list[i].TokenExpires = acc.TokenExpires
		list[i].LastChecked = acc.LastChecked
		return s.save(doc)
	}
	return fmt.Errorf("%w: %s", ErrNotFound, acc.ID)
}

// writeFileAtomic replaces path through a temp file in the same directory.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
