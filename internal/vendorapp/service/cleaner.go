package service

import (
	"context"
	"errors"

	id "mercato/pkg/domain"
	"mercato/pkg/platform/audit"
	"mercato/pkg/platform/sentinel"
)

// CleanupOrphans deletes vendor applications whose owning account has been
// anonymized. The owner no longer meaningfully exists, so the record is
// removed outright; no export or archive happens here.
//
// Idempotent: a second sweep finds nothing. Races with a concurrent sweep
// are benign because a row already gone counts as not removed by us.
func (s *Service) CleanupOrphans(ctx context.Context) ([]id.ApplicationID, error) {
	deletedOwners, err := s.accounts.ListDeletedIDs(ctx)
	if err != nil {
		return nil, translateStoreErr(err, "account")
	}
	if len(deletedOwners) == 0 {
		return nil, nil
	}

	orphans, err := s.applications.ListByAccountIDs(ctx, deletedOwners)
	if err != nil {
		return nil, translateStoreErr(err, "application")
	}

	var removed []id.ApplicationID
	for _, app := range orphans {
		if err := s.applications.Delete(ctx, app.ID); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				continue
			}
			return removed, translateStoreErr(err, "application")
		}
		removed = append(removed, app.ID)
	}

	if len(removed) > 0 {
		if s.metrics != nil {
			s.metrics.OrphansRemoved.Add(float64(len(removed)))
		}
		s.logAudit(ctx, audit.EventOrphansRemoved, "count", len(removed))
	}
	return removed, nil
}

// CleanupForAccount removes the given account's application when the account
// has been anonymized. Narrower than a full sweep; used when the caller
// already knows which owner went away.
func (s *Service) CleanupForAccount(ctx context.Context, accountID id.AccountID) ([]id.ApplicationID, error) {
	owner, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, translateStoreErr(err, "account")
	}
	if !owner.IsDeleted() {
		return nil, nil
	}

	app, err := s.applications.FindByAccountID(ctx, accountID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, translateStoreErr(err, "application")
	}
	if err := s.applications.Delete(ctx, app.ID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, translateStoreErr(err, "application")
	}

	if s.metrics != nil {
		s.metrics.OrphansRemoved.Inc()
	}
	s.logAudit(ctx, audit.EventOrphansRemoved,
		"account_id", accountID.String(), "count", 1)
	return []id.ApplicationID{app.ID}, nil
}
