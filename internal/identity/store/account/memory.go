// Package account persists canonical accounts. The in-memory implementation
// backs unit tests and broker-less development; PostgresStore is production.
// Both enforce the same uniqueness facts and return the same sentinel errors
// so services cannot tell them apart.
package account

import (
	"context"
	"strings"
	"sync"

	"mercato/internal/identity/models"
	id "mercato/pkg/domain"
	"mercato/pkg/platform/sentinel"
)

// InMemory keeps accounts in a map guarded by a RWMutex. Uniqueness of email
// and username among non-deleted rows is checked on every write, mirroring
// the partial unique indexes in the postgres schema.
type InMemory struct {
	mu       sync.RWMutex
	accounts map[id.AccountID]*models.Account
}

func NewInMemory() *InMemory {
	return &InMemory{accounts: make(map[id.AccountID]*models.Account)}
}

func (s *InMemory) FindByID(_ context.Context, accountID id.AccountID) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[accountID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneNormalized(acct), nil
}

// FindByEmail matches the stored email exactly (case-sensitive, as stored).
// Deleted accounts are returned too: the reconciler needs to see them to
// drive restoration.
func (s *InMemory) FindByEmail(_ context.Context, email string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, acct := range s.accounts {
		if acct.Email == email {
			return cloneNormalized(acct), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// FindBySubjectID matches the provider identity pair.
func (s *InMemory) FindBySubjectID(_ context.Context, provider, subjectID string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, acct := range s.accounts {
		if acct.Provider == provider && acct.SubjectID == subjectID && acct.SubjectID != "" {
			return cloneNormalized(acct), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// UsernameTaken probes handle availability, case-insensitively like the
// lower(username) index. With excludeAnonymized set, deleted accounts do not
// occupy their historical username.
func (s *InMemory) UsernameTaken(_ context.Context, username string, excludeAnonymized bool) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, acct := range s.accounts {
		if !strings.EqualFold(acct.Username, username) {
			continue
		}
		if excludeAnonymized && isDeleted(acct) {
			continue
		}
		return true, nil
	}
	return false, nil
}

// Insert adds a new account, failing with ErrConflict when the email or
// username is already held by a non-deleted account.
func (s *InMemory) Insert(_ context.Context, acct *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[acct.ID]; ok {
		return sentinel.ErrConflict
	}
	if err := s.checkUniqueness(acct); err != nil {
		return err
	}
	s.accounts[acct.ID] = clone(acct)
	return nil
}

// Update overwrites an existing account, re-checking uniqueness because
// restoration rewrites the email.
func (s *InMemory) Update(_ context.Context, acct *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[acct.ID]; !ok {
		return sentinel.ErrNotFound
	}
	if err := s.checkUniqueness(acct); err != nil {
		return err
	}
	s.accounts[acct.ID] = clone(acct)
	return nil
}

// Execute runs validate then mutate under the store lock, the in-memory
// equivalent of SELECT ... FOR UPDATE. The stored row is re-read inside the
// lock so a stale caller cannot apply a transition over a state it no longer
// reflects.
func (s *InMemory) Execute(_ context.Context, accountID id.AccountID, validate func(*models.Account) error, mutate func(*models.Account)) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[accountID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	working := cloneNormalized(acct)
	if err := validate(working); err != nil {
		return nil, err
	}
	mutate(working)
	if err := s.checkUniqueness(working); err != nil {
		return nil, err
	}
	s.accounts[accountID] = clone(working)
	return cloneNormalized(working), nil
}

// ListDeletedIDs returns the IDs of all anonymized accounts. The orphan
// cleaner uses this to scan for applications whose owner no longer exists.
func (s *InMemory) ListDeletedIDs(_ context.Context) ([]id.AccountID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []id.AccountID
	for _, acct := range s.accounts {
		if isDeleted(acct) {
			out = append(out, acct.ID)
		}
	}
	return out, nil
}

// Snapshot captures the current rows and returns a function restoring them.
// tx.MemoryRunner uses it to roll back multi-store units.
func (s *InMemory) Snapshot() func() {
	s.mu.RLock()
	copied := make(map[id.AccountID]*models.Account, len(s.accounts))
	for key, acct := range s.accounts {
		copied[key] = clone(acct)
	}
	s.mu.RUnlock()
	return func() {
		s.mu.Lock()
		s.accounts = copied
		s.mu.Unlock()
	}
}

func (s *InMemory) checkUniqueness(candidate *models.Account) error {
	if isDeleted(candidate) {
		return nil
	}
	for _, acct := range s.accounts {
		if acct.ID == candidate.ID || isDeleted(acct) {
			continue
		}
		// Case-insensitive on both, matching the lower(email) and
		// lower(username) partial indexes.
		if strings.EqualFold(acct.Email, candidate.Email) {
			return sentinel.ErrConflict
		}
		if strings.EqualFold(acct.Username, candidate.Username) {
			return sentinel.ErrConflict
		}
	}
	return nil
}

func isDeleted(acct *models.Account) bool {
	c := *acct
	models.NormalizeLegacyDeleted(&c)
	return c.IsDeleted()
}

func clone(acct *models.Account) *models.Account {
	c := *acct
	return &c
}

// cloneNormalized copies the row and upgrades legacy anonymized rows to carry
// the deleted status tag, so callers only ever test the tag.
func cloneNormalized(acct *models.Account) *models.Account {
	c := *acct
	models.NormalizeLegacyDeleted(&c)
	return &c
}
