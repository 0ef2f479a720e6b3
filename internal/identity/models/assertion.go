package models

import (
	dErrors "mercato/pkg/domain-errors"
	"mercato/pkg/email"
)

// IdentityAssertion is the ephemeral claim presented after a successful
// external login: the provider's stable subject ID plus asserted profile
// fields. Never persisted.
type IdentityAssertion struct {
	Provider  string
	SubjectID string
	Email     string
	FirstName string
	LastName  string
}

// Validate checks the fields the reconciler cannot work without.
func (a IdentityAssertion) Validate() error {
	if a.Provider == "" {
		return dErrors.New(dErrors.CodeValidation, "assertion provider is required")
	}
	if a.SubjectID == "" {
		return dErrors.New(dErrors.CodeValidation, "assertion subject ID is required")
	}
	if a.Email == "" {
		return dErrors.New(dErrors.CodeValidation, "assertion email is required")
	}
	return nil
}

// Names returns the asserted display name, deriving one from the email local
// part when the provider sent none.
func (a IdentityAssertion) Names() (string, string) {
	if a.FirstName != "" || a.LastName != "" {
		return a.FirstName, a.LastName
	}
	return email.DeriveNameFromEmail(a.Email)
}

// Outcome describes how a reconciliation resolved.
type Outcome string

const (
	// OutcomeLinked covers idempotent re-login, fresh linking of an unlinked
	// account, and the preserved fail-open conflict path.
	OutcomeLinked Outcome = "linked"
	// OutcomeRestored means an anonymized account was brought back to life.
	OutcomeRestored Outcome = "restored"
	// OutcomeCreated means a brand new account was created.
	OutcomeCreated Outcome = "created"
)

// ReconciliationResult is what the reconciler hands back to the boundary.
type ReconciliationResult struct {
	Account *Account
	Outcome Outcome
}

// MatchResult carries both match candidates. Precedence between them is the
// reconciler's business, never the matcher's.
type MatchResult struct {
	BySubjectID *Account
	ByEmail     *Account
}
