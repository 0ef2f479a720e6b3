// Package application persists vendor applications. As with the account
// store, the in-memory and postgres implementations enforce the same facts
// and speak the same sentinel errors.
package application

import (
	"context"
	"sync"

	"mercato/internal/vendorapp/models"
	id "mercato/pkg/domain"
	"mercato/pkg/platform/sentinel"
)

// InMemory keeps applications in maps guarded by a RWMutex. The one-per-
// account fact is checked on insert, mirroring the unique index on
// account_id in the postgres schema.
type InMemory struct {
	mu        sync.RWMutex
	apps      map[id.ApplicationID]*models.VendorApplication
	byAccount map[id.AccountID]id.ApplicationID
}

func NewInMemory() *InMemory {
	return &InMemory{
		apps:      make(map[id.ApplicationID]*models.VendorApplication),
		byAccount: make(map[id.AccountID]id.ApplicationID),
	}
}

func (s *InMemory) FindByID(_ context.Context, appID id.ApplicationID) (*models.VendorApplication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.apps[appID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(app), nil
}

func (s *InMemory) FindByAccountID(_ context.Context, accountID id.AccountID) (*models.VendorApplication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	appID, ok := s.byAccount[accountID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(s.apps[appID]), nil
}

func (s *InMemory) Insert(_ context.Context, app *models.VendorApplication) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apps[app.ID]; ok {
		return sentinel.ErrConflict
	}
	if _, ok := s.byAccount[app.AccountID]; ok {
		return sentinel.ErrConflict
	}
	s.apps[app.ID] = clone(app)
	s.byAccount[app.AccountID] = app.ID
	return nil
}

func (s *InMemory) Update(_ context.Context, app *models.VendorApplication) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apps[app.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.apps[app.ID] = clone(app)
	return nil
}

func (s *InMemory) Delete(_ context.Context, appID id.ApplicationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[appID]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(s.byAccount, app.AccountID)
	delete(s.apps, appID)
	return nil
}

// Execute runs validate then mutate under the store lock, re-reading the
// stored row so a stale admin client cannot apply a transition over a state
// it no longer reflects.
func (s *InMemory) Execute(_ context.Context, appID id.ApplicationID, validate func(*models.VendorApplication) error, mutate func(*models.VendorApplication)) (*models.VendorApplication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[appID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	working := clone(app)
	if err := validate(working); err != nil {
		return nil, err
	}
	mutate(working)
	s.apps[appID] = clone(working)
	return clone(working), nil
}

// ListByAccountIDs returns every application owned by one of the given
// accounts. The orphan cleaner feeds it the set of anonymized account IDs.
func (s *InMemory) ListByAccountIDs(_ context.Context, accountIDs []id.AccountID) ([]*models.VendorApplication, error) {
	wanted := make(map[id.AccountID]struct{}, len(accountIDs))
	for _, accountID := range accountIDs {
		wanted[accountID] = struct{}{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.VendorApplication
	for _, app := range s.apps {
		if _, ok := wanted[app.AccountID]; ok {
			out = append(out, clone(app))
		}
	}
	return out, nil
}

// Snapshot captures the current rows and returns a function restoring them.
// tx.MemoryRunner uses it to roll back multi-store units.
func (s *InMemory) Snapshot() func() {
	s.mu.RLock()
	apps := make(map[id.ApplicationID]*models.VendorApplication, len(s.apps))
	for key, app := range s.apps {
		apps[key] = clone(app)
	}
	byAccount := make(map[id.AccountID]id.ApplicationID, len(s.byAccount))
	for key, appID := range s.byAccount {
		byAccount[key] = appID
	}
	s.mu.RUnlock()
	return func() {
		s.mu.Lock()
		s.apps = apps
		s.byAccount = byAccount
		s.mu.Unlock()
	}
}

func clone(app *models.VendorApplication) *models.VendorApplication {
	c := *app
	c.Documents = append([]models.DocumentRef{}, app.Documents...)
	return &c
}
