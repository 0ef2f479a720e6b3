package service

import (
	"context"
	"errors"

	"mercato/internal/identity/models"
	"mercato/pkg/platform/sentinel"
)

// Match finds candidate accounts for an assertion: one by provider subject ID
// and one by exact email. Both candidates are returned; precedence between
// them is applied by Reconcile, never here. No side effects.
func (s *Service) Match(ctx context.Context, assertion models.IdentityAssertion) (models.MatchResult, error) {
	if err := assertion.Validate(); err != nil {
		return models.MatchResult{}, err
	}

	var result models.MatchResult

	bySubject, err := s.accounts.FindBySubjectID(ctx, assertion.Provider, assertion.SubjectID)
	switch {
	case err == nil:
		result.BySubjectID = bySubject
	case errors.Is(err, sentinel.ErrNotFound):
		// absent candidate, not an error
	default:
		return models.MatchResult{}, translateStoreErr(err, "account")
	}

	byEmail, err := s.accounts.FindByEmail(ctx, assertion.Email)
	switch {
	case err == nil:
		result.ByEmail = byEmail
	case errors.Is(err, sentinel.ErrNotFound):
	default:
		return models.MatchResult{}, translateStoreErr(err, "account")
	}

	return result, nil
}
