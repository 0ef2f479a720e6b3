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

// RegisterLocal resolves a local credential registration to a canonical
// account. It shares the reconciler's email path: a registration against a
// freed (anonymized) address restores the row, a registration against a live
// address is declined, and anything else creates. No provider identity is
// attached.
func (s *Service) RegisterLocal(ctx context.Context, emailAddr, password, firstName, lastName string) (models.ReconciliationResult, error) {
	ctx, span := s.tracer.Start(ctx, "identity.RegisterLocal")
	defer span.End()

	if emailAddr == "" {
		return models.ReconciliationResult{}, dErrors.New(dErrors.CodeValidation, "email is required")
	}
	if len(password) < 8 {
		return models.ReconciliationResult{}, dErrors.New(dErrors.CodeValidation, "password must be at least 8 characters")
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return models.ReconciliationResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}

	var result models.ReconciliationResult
	for attempt := 0; ; attempt++ {
		res, err := s.registerLocalOnce(ctx, emailAddr, hash, firstName, lastName)
		if err != nil {
			if attempt == 0 && isRecoverableRace(err) {
				continue
			}
			if errors.Is(err, sentinel.ErrConflict) || errors.Is(err, sentinel.ErrInvalidState) {
				return models.ReconciliationResult{}, dErrors.Wrap(err, dErrors.CodeConflict,
					"registration collided twice, report to the user")
			}
			return models.ReconciliationResult{}, err
		}
		result = res
		break
	}
	s.countOutcome(result.Outcome)
	return result, nil
}

func (s *Service) registerLocalOnce(ctx context.Context, emailAddr, hash, firstName, lastName string) (models.ReconciliationResult, error) {
	now := requestcontext.Now(ctx)

	existing, err := s.accounts.FindByEmail(ctx, emailAddr)
	switch {
	case err == nil:
		if !existing.IsDeleted() {
			return models.ReconciliationResult{}, dErrors.New(dErrors.CodeConflict, "email is already registered")
		}
		acct, err := s.accounts.Execute(ctx, existing.ID,
			func(a *models.Account) error {
				if !a.IsDeleted() {
					return sentinel.ErrInvalidState
				}
				return nil
			},
			func(a *models.Account) {
				_ = a.Restore(emailAddr, firstName, lastName, "", "", now)
				a.PasswordHash = hash
			},
		)
		if err != nil {
			if errors.Is(err, sentinel.ErrInvalidState) || errors.Is(err, sentinel.ErrConflict) {
				return models.ReconciliationResult{}, err
			}
			return models.ReconciliationResult{}, translateStoreErr(err, "account")
		}
		s.sweepOrphans(ctx)
		s.logAudit(ctx, audit.EventAccountRestored,
			"account_id", acct.ID.String(), "email", acct.Email)
		return models.ReconciliationResult{Account: acct, Outcome: models.OutcomeRestored}, nil

	case errors.Is(err, sentinel.ErrNotFound):
		username, err := s.AllocateUsername(ctx, email.LocalPart(emailAddr), true)
		if err != nil {
			return models.ReconciliationResult{}, err
		}
		acct, err := models.NewAccount(id.NewAccountID(), emailAddr, username, firstName, lastName, now)
		if err != nil {
			return models.ReconciliationResult{}, err
		}
		acct.PasswordHash = hash
		if err := s.accounts.Insert(ctx, acct); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return models.ReconciliationResult{}, err
			}
			return models.ReconciliationResult{}, translateStoreErr(err, "account")
		}
		s.logAudit(ctx, audit.EventAccountCreated,
			"account_id", acct.ID.String(), "email", acct.Email)
		return models.ReconciliationResult{Account: acct, Outcome: models.OutcomeCreated}, nil

	default:
		return models.ReconciliationResult{}, translateStoreErr(err, "account")
	}
}

// AuthenticateLocal verifies a local credential. Failures never reveal which
// factor was wrong.
func (s *Service) AuthenticateLocal(ctx context.Context, emailAddr, password string) (*models.Account, error) {
	acct, err := s.accounts.FindByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, s.failedLogin(ctx, emailAddr)
		}
		return nil, translateStoreErr(err, "account")
	}
	if acct.IsDeleted() || acct.Status != models.StatusActive {
		return nil, s.failedLogin(ctx, emailAddr)
	}
	if acct.PasswordHash == "" || !s.hasher.Verify(acct.PasswordHash, password) {
		return nil, s.failedLogin(ctx, emailAddr)
	}
	return acct, nil
}

func (s *Service) failedLogin(ctx context.Context, emailAddr string) error {
	if s.metrics != nil {
		s.metrics.LocalLoginFailures.Inc()
	}
	s.logAudit(ctx, audit.EventLocalLoginFailed, "email", emailAddr)
	return dErrors.New(dErrors.CodeUnauthorized, "invalid email or password")
}

// DeleteAccount anonymizes an account: personal fields become reserved
// sentinels, the provider identity detaches, and the email and username are
// freed for a future registrant. The row itself is never removed.
func (s *Service) DeleteAccount(ctx context.Context, accountID id.AccountID) error {
	if accountID.IsNil() {
		return badRequest("account ID required")
	}
	now := requestcontext.Now(ctx)

	acct, err := s.accounts.Execute(ctx, accountID,
		func(a *models.Account) error {
			if a.IsDeleted() {
				return sentinel.ErrInvalidState
			}
			return nil
		},
		func(a *models.Account) {
			a.Anonymize(now)
		},
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			return dErrors.New(dErrors.CodeConflict, "account is already deleted")
		}
		return translateStoreErr(err, "account")
	}

	s.logAudit(ctx, audit.EventAccountAnonymized, "account_id", acct.ID.String())
	return nil
}
