package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	ac "github.com/panyam/authcore"
)

// AccountStore keeps each account as a JSON file, with index files for
// emails and live tokens:
//
//	accounts/<id>.json
//	emails/<sha256(email)>.json   -> account id
//	tokens/<token>.json           -> account id and token type
//
// Email index files are hard-linked into place, which fails if the file
// exists, so uniqueness holds even across processes sharing the directory. Read-modify-write sequences are
// serialized by an in-process mutex only.
type AccountStore struct {
	StoragePath string
	mu          sync.Mutex
}

var _ ac.CredentialStore = (*AccountStore)(nil)

func NewAccountStore(storagePath string) *AccountStore {
	return &AccountStore{StoragePath: storagePath}
}

type emailEntry struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
}

type tokenEntry struct {
	AccountID string       `json:"account_id"`
	Type      ac.TokenType `json:"type"`
}

func (s *AccountStore) accountPath(id string) (string, error) {
	if id == "" || id != filepath.Base(id) || id == "." || id == ".." {
		return "", fmt.Errorf("invalid account id %q", id)
	}
	return filepath.Join(s.StoragePath, "accounts", id+".json"), nil
}

func (s *AccountStore) emailPath(email string) string {
	sum := sha256.Sum256([]byte(ac.NormalizeEmail(email)))
	return filepath.Join(s.StoragePath, "emails", hex.EncodeToString(sum[:])+".json")
}

func (s *AccountStore) tokenPath(token string) (string, bool) {
	if _, err := hex.DecodeString(token); err != nil || token == "" {
		return "", false
	}
	return filepath.Join(s.StoragePath, "tokens", token+".json"), true
}

func readJSON(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomicFile(path, data)
}

func (s *AccountStore) load(id string) (*ac.Account, error) {
	path, err := s.accountPath(id)
	if err != nil {
		return nil, ac.ErrAccountNotFound
	}
	var account ac.Account
	if err := readJSON(path, &account); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ac.ErrAccountNotFound
		}
		return nil, ac.NewStorageError("read account", err)
	}
	return &account, nil
}

func (s *AccountStore) FindByID(ctx context.Context, id string) (*ac.Account, error) {
	return s.load(id)
}

func (s *AccountStore) FindByEmail(ctx context.Context, email string) (*ac.Account, error) {
	var entry emailEntry
	if err := readJSON(s.emailPath(email), &entry); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ac.ErrAccountNotFound
		}
		return nil, ac.NewStorageError("read email index", err)
	}
	return s.load(entry.AccountID)
}

func (s *AccountStore) findByToken(token string, kind ac.TokenType) (*ac.Account, error) {
	path, ok := s.tokenPath(token)
	if !ok {
		return nil, ac.ErrAccountNotFound
	}
	var entry tokenEntry
	if err := readJSON(path, &entry); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ac.ErrAccountNotFound
		}
		return nil, ac.NewStorageError("read token index", err)
	}
	if entry.Type != kind {
		return nil, ac.ErrAccountNotFound
	}
	return s.load(entry.AccountID)
}

func (s *AccountStore) FindByVerificationToken(ctx context.Context, token string) (*ac.Account, error) {
	account, err := s.findByToken(token, ac.TokenTypeEmailVerification)
	if err != nil {
		return nil, err
	}
	if account.VerificationToken != token {
		return nil, ac.ErrAccountNotFound
	}
	return account, nil
}

func (s *AccountStore) FindByResetToken(ctx context.Context, token string, now time.Time) (*ac.Account, error) {
	account, err := s.findByToken(token, ac.TokenTypePasswordReset)
	if err != nil {
		return nil, err
	}
	if !account.ResetValid(token, now) {
		return nil, ac.ErrAccountNotFound
	}
	return account, nil
}

func (s *AccountStore) Create(ctx context.Context, account *ac.Account) error {
	account.Email = ac.NormalizeEmail(account.Email)
	if err := account.Validate(); err != nil {
		return err
	}
	path, err := s.accountPath(account.ID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("account %s already exists", account.ID)
	}
	if err := s.claimEmail(account.Email, account.ID); err != nil {
		return err
	}
	if err := s.write(path, account, nil); err != nil {
		os.Remove(s.emailPath(account.Email))
		return err
	}
	return nil
}

// claimEmail creates the email index file, failing if it already exists.
func (s *AccountStore) claimEmail(email, id string) error {
	path := s.emailPath(email)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return ac.NewStorageError("create email index", err)
	}
	data, err := json.Marshal(emailEntry{AccountID: id, Email: email})
	if err != nil {
		return ac.NewStorageError("encode email index", err)
	}
	err = createExclusiveFile(path, data)
	if errors.Is(err, os.ErrExist) {
		return ac.ErrDuplicateEmail
	}
	if err != nil {
		return ac.NewStorageError("create email index", err)
	}
	return nil
}

// write persists account and reconciles token index files against prev.
func (s *AccountStore) write(path string, account, prev *ac.Account) error {
	account.UpdatedAt = time.Now()
	if err := writeJSON(path, account); err != nil {
		return ac.NewStorageError("write account", err)
	}
	if err := s.syncToken(prevToken(prev, true), account.VerificationToken, account.ID, ac.TokenTypeEmailVerification); err != nil {
		return ac.NewStorageError("write token index", err)
	}
	if err := s.syncToken(prevToken(prev, false), account.ResetPasswordToken, account.ID, ac.TokenTypePasswordReset); err != nil {
		return ac.NewStorageError("write token index", err)
	}
	return nil
}

func prevToken(prev *ac.Account, verification bool) string {
	if prev == nil {
		return ""
	}
	if verification {
		return prev.VerificationToken
	}
	return prev.ResetPasswordToken
}

// syncToken drops the stale index file and writes the new one. Index files
// are hints; lookups always confirm against the account record.
func (s *AccountStore) syncToken(old, current, accountID string, kind ac.TokenType) error {
	if old != "" && old != current {
		if path, ok := s.tokenPath(old); ok {
			os.Remove(path)
		}
	}
	if current == "" || current == old {
		return nil
	}
	path, ok := s.tokenPath(current)
	if !ok {
		return fmt.Errorf("token is not hex encoded")
	}
	return writeJSON(path, tokenEntry{AccountID: accountID, Type: kind})
}

func (s *AccountStore) Save(ctx context.Context, account *ac.Account) error {
	account.Email = ac.NormalizeEmail(account.Email)
	if err := account.Validate(); err != nil {
		return err
	}
	path, err := s.accountPath(account.ID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, err := s.load(account.ID)
	if err != nil {
		return err
	}
	if prev.Email != account.Email {
		return fmt.Errorf("account %s: email cannot change", account.ID)
	}
	return s.write(path, account.Clone(), prev)
}

func (s *AccountStore) Update(ctx context.Context, id string, mutate func(*ac.Account) error) (*ac.Account, error) {
	path, err := s.accountPath(id)
	if err != nil {
		return nil, ac.ErrAccountNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, err := s.load(id)
	if err != nil {
		return nil, err
	}
	next := prev.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.Email = prev.Email
	if err := next.Validate(); err != nil {
		return nil, err
	}
	if err := s.write(path, next, prev); err != nil {
		return nil, err
	}
	return next.Clone(), nil
}
