package service

import (
	"context"
	"errors"

	"mercato/internal/identity/models"
	id "mercato/pkg/domain"
	dErrors "mercato/pkg/domain-errors"
	"mercato/pkg/email"
	"mercato/pkg/platform/audit"
	"mercato/pkg/platform/sentinel"
	"mercato/pkg/requestcontext"
)

// Reconcile resolves a federated assertion to exactly one canonical account.
//
// Precedence: a subject-ID match wins over an email match; an account
// already linked to this exact provider identity is authoritative even if its
// email was changed since. With no subject match, the email match drives
// restore (anonymized account), link (unlinked account), or the preserved
// fail-open conflict path. With no match at all, a new account is created.
//
// Creation races are resolved optimistically: on a uniqueness violation the
// whole decision is re-run once, because the second pass will find the row
// the winning request just created. A second conflict is a true collision and
// surfaces to the caller.
func (s *Service) Reconcile(ctx context.Context, assertion models.IdentityAssertion, roleIntent models.Role) (models.ReconciliationResult, error) {
	ctx, span := s.tracer.Start(ctx, "identity.Reconcile")
	defer span.End()

	if err := assertion.Validate(); err != nil {
		return models.ReconciliationResult{}, err
	}

	var result models.ReconciliationResult
	for attempt := 0; ; attempt++ {
		res, err := s.reconcileOnce(ctx, assertion)
		if err != nil {
			if attempt == 0 && isRecoverableRace(err) {
				s.logger.InfoContext(ctx, "reconciliation raced with a concurrent writer, re-running match",
					"provider", assertion.Provider, "error", err)
				continue
			}
			if errors.Is(err, sentinel.ErrConflict) || errors.Is(err, sentinel.ErrInvalidState) {
				return models.ReconciliationResult{}, dErrors.Wrap(err, dErrors.CodeConflict,
					"reconciliation collided twice, report to the user")
			}
			return models.ReconciliationResult{}, err
		}
		result = res
		break
	}

	s.countOutcome(result.Outcome)

	// Vendor-flavored logins opportunistically sweep applications orphaned by
	// earlier anonymizations.
	if roleIntent == models.RoleVendor {
		s.sweepOrphans(ctx)
	}
	return result, nil
}

func (s *Service) reconcileOnce(ctx context.Context, assertion models.IdentityAssertion) (models.ReconciliationResult, error) {
	match, err := s.Match(ctx, assertion)
	if err != nil {
		return models.ReconciliationResult{}, err
	}

	if acct := match.BySubjectID; acct != nil {
		// Idempotent re-login. A differing email is recorded but never
		// written back: replaying an old assertion must not clobber an email
		// the user legitimately changed.
		if acct.Email != assertion.Email {
			s.logger.WarnContext(ctx, "assertion email differs from stored email, keeping stored value",
				"account_id", acct.ID.String(), "provider", assertion.Provider)
		}
		s.logAudit(ctx, audit.EventAccountLinked,
			"account_id", acct.ID.String(), "email", acct.Email)
		return models.ReconciliationResult{Account: acct, Outcome: models.OutcomeLinked}, nil
	}

	if acct := match.ByEmail; acct != nil {
		if acct.IsDeleted() {
			return s.restore(ctx, acct.ID, assertion)
		}
		if !acct.IsLinked() {
			return s.link(ctx, acct.ID, assertion)
		}
		// Linked to a different subject: do not relink. The system chooses
		// availability here; the mismatch is recorded for review.
		if s.metrics != nil {
			s.metrics.SubjectMismatches.Inc()
		}
		s.logger.WarnContext(ctx, "assertion subject conflicts with linked account, not relinking",
			"account_id", acct.ID.String(), "provider", assertion.Provider)
		s.logAudit(ctx, audit.EventSubjectMismatch,
			"account_id", acct.ID.String(), "email", acct.Email,
			"reason", "email matched an account linked to a different subject")
		return models.ReconciliationResult{Account: acct, Outcome: models.OutcomeLinked}, nil
	}

	return s.create(ctx, assertion)
}

func (s *Service) restore(ctx context.Context, accountID id.AccountID, assertion models.IdentityAssertion) (models.ReconciliationResult, error) {
	now := requestcontext.Now(ctx)
	firstName, lastName := assertion.Names()

	acct, err := s.accounts.Execute(ctx, accountID,
		func(a *models.Account) error {
			if !a.IsDeleted() {
				// Someone beat us to restoration; re-running the match will
				// pick the row up on its new terms.
				return sentinel.ErrInvalidState
			}
			return nil
		},
		func(a *models.Account) {
			_ = a.Restore(assertion.Email, firstName, lastName, assertion.Provider, assertion.SubjectID, now)
		},
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) || errors.Is(err, sentinel.ErrConflict) {
			return models.ReconciliationResult{}, err
		}
		return models.ReconciliationResult{}, translateStoreErr(err, "account")
	}

	// The restored identity re-enters as a customer; whatever vendor state
	// the old incarnation left behind is now orphaned and gets swept.
	s.sweepOrphans(ctx)

	s.logAudit(ctx, audit.EventAccountRestored,
		"account_id", acct.ID.String(), "email", acct.Email)
	return models.ReconciliationResult{Account: acct, Outcome: models.OutcomeRestored}, nil
}

func (s *Service) link(ctx context.Context, accountID id.AccountID, assertion models.IdentityAssertion) (models.ReconciliationResult, error) {
	now := requestcontext.Now(ctx)

	acct, err := s.accounts.Execute(ctx, accountID,
		func(a *models.Account) error {
			if a.IsDeleted() {
				return sentinel.ErrInvalidState
			}
			return nil
		},
		func(a *models.Account) {
			// A concurrent identical assertion may have linked already;
			// linking is a no-op then.
			if !a.IsLinked() {
				_ = a.Link(assertion.Provider, assertion.SubjectID, now)
			}
		},
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			return models.ReconciliationResult{}, err
		}
		return models.ReconciliationResult{}, translateStoreErr(err, "account")
	}

	s.logAudit(ctx, audit.EventAccountLinked,
		"account_id", acct.ID.String(), "email", acct.Email)
	return models.ReconciliationResult{Account: acct, Outcome: models.OutcomeLinked}, nil
}

func (s *Service) create(ctx context.Context, assertion models.IdentityAssertion) (models.ReconciliationResult, error) {
	now := requestcontext.Now(ctx)

	username, err := s.AllocateUsername(ctx, email.LocalPart(assertion.Email), true)
	if err != nil {
		return models.ReconciliationResult{}, err
	}

	firstName, lastName := assertion.Names()
	acct, err := models.NewAccount(id.NewAccountID(), assertion.Email, username, firstName, lastName, now)
	if err != nil {
		return models.ReconciliationResult{}, err
	}
	acct.Provider = assertion.Provider
	acct.SubjectID = assertion.SubjectID

	// Role is always customer at creation, even for vendor-flavored logins:
	// promotion happens only through an approved application.
	if err := s.accounts.Insert(ctx, acct); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return models.ReconciliationResult{}, err
		}
		return models.ReconciliationResult{}, translateStoreErr(err, "account")
	}

	s.logAudit(ctx, audit.EventAccountCreated,
		"account_id", acct.ID.String(), "email", acct.Email)
	return models.ReconciliationResult{Account: acct, Outcome: models.OutcomeCreated}, nil
}

// isRecoverableRace reports whether the failure means a concurrent writer got
// there first and re-running the match will converge.
func isRecoverableRace(err error) bool {
	if errors.Is(err, sentinel.ErrConflict) || errors.Is(err, sentinel.ErrInvalidState) {
		return true
	}
	// A second allocation probe colliding surfaces as a coded conflict from
	// AllocateUsername; the retry re-probes.
	return dErrors.HasCode(err, dErrors.CodeConflict)
}

func (s *Service) sweepOrphans(ctx context.Context) {
	if s.cleaner == nil {
		return
	}
	removed, err := s.cleaner.CleanupOrphans(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "orphan application sweep failed", "error", err)
		return
	}
	if len(removed) > 0 {
		s.logger.InfoContext(ctx, "orphan applications removed", "count", len(removed))
	}
}
