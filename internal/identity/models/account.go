package models

import (
	"fmt"
	"strings"
	"time"

	id "mercato/pkg/domain"
	dErrors "mercato/pkg/domain-errors"
)

// Role is the account's marketplace role.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleVendor   Role = "vendor"
	RoleAdmin    Role = "admin"
)

// Status is the account lifecycle status. Deleted is an explicit tag: soft
// deletion anonymizes the row but keeps it for referential integrity.
type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
	StatusDeleted   Status = "deleted"
)

// Reserved sentinel values written by anonymization. Business logic tests the
// status tag; these exist for the anonymized row itself and for recognizing
// legacy rows that predate the tag (see NormalizeLegacyDeleted).
const (
	DeletedEmailDomain  = "deleted.local"
	DeletedNameSentinel = "Deleted User"
)

// Account is the canonical identity record.
//
// Invariants:
//   - Email is unique among non-deleted accounts
//   - Username is unique among non-deleted accounts
//   - At most one provider identity (Provider + SubjectID pair) at a time
//   - ID and CreatedAt are immutable after construction
//
// "Deletion" is anonymization: the email and name are rewritten to reserved
// sentinels and the status set to deleted, which frees the original email and
// username for reuse by a new registrant.
type Account struct {
	ID        id.AccountID `json:"id"`
	Email     string       `json:"email"`
	Username  string       `json:"username"`
	FirstName string       `json:"first_name"`
	LastName  string       `json:"last_name"`
	// Provider and SubjectID form the federated identity pair. Both empty
	// for local-only accounts.
	Provider  string `json:"provider,omitempty"`
	SubjectID string `json:"subject_id,omitempty"`
	Role      Role   `json:"role"`
	Status    Status `json:"status"`
	// PasswordHash is opaque to the core; empty for federated-only accounts.
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewAccount constructs an active customer account.
func NewAccount(accountID id.AccountID, email, username, firstName, lastName string, now time.Time) (*Account, error) {
	if email == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "account email cannot be empty")
	}
	if username == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "account username cannot be empty")
	}
	return &Account{
		ID:        accountID,
		Email:     email,
		Username:  username,
		FirstName: firstName,
		LastName:  lastName,
		Role:      RoleCustomer,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// IsDeleted reports whether the account has been anonymized. This tests the
// status tag only; callers dealing with legacy rows must run
// NormalizeLegacyDeleted first.
func (a *Account) IsDeleted() bool {
	return a.Status == StatusDeleted
}

// IsLinked reports whether a provider identity is attached.
func (a *Account) IsLinked() bool {
	return a.SubjectID != ""
}

// LinkedTo reports whether the account is linked to exactly this provider
// identity.
func (a *Account) LinkedTo(provider, subjectID string) bool {
	return a.Provider == provider && a.SubjectID == subjectID
}

// Link attaches a provider identity to an account that has none.
func (a *Account) Link(provider, subjectID string, now time.Time) error {
	if a.IsLinked() {
		return dErrors.New(dErrors.CodeInvariantViolation, "account already linked to a provider")
	}
	a.Provider = provider
	a.SubjectID = subjectID
	a.UpdatedAt = now
	return nil
}

// Anonymize soft-deletes the account: personal fields are overwritten with
// reserved sentinels, the provider identity is detached, and the status tag
// is set. The original email and username become reusable.
func (a *Account) Anonymize(now time.Time) {
	a.Email = AnonymizedEmail(a.ID)
	a.FirstName = DeletedNameSentinel
	a.LastName = ""
	a.Provider = ""
	a.SubjectID = ""
	a.Status = StatusDeleted
	a.UpdatedAt = now
}

// Restore reverses anonymization from a fresh assertion. The role always
// resets to customer: vendor standing must be re-earned through a new
// application, and the orphan cleaner removes whatever the old one left.
func (a *Account) Restore(email, firstName, lastName, provider, subjectID string, now time.Time) error {
	if !a.IsDeleted() {
		return dErrors.New(dErrors.CodeInvariantViolation, "only a deleted account can be restored")
	}
	a.Email = email
	a.FirstName = firstName
	a.LastName = lastName
	a.Provider = provider
	a.SubjectID = subjectID
	a.Role = RoleCustomer
	a.Status = StatusActive
	a.UpdatedAt = now
	return nil
}

// AnonymizedEmail generates the reserved address written by anonymization.
func AnonymizedEmail(accountID id.AccountID) string {
	return fmt.Sprintf("deleted_%s@%s", accountID.String(), DeletedEmailDomain)
}

// MatchesAnonymizedPattern reports whether an email follows the reserved
// anonymized shape. Confined to normalization; invariant checks elsewhere use
// the status tag.
func MatchesAnonymizedPattern(email string) bool {
	return strings.HasPrefix(email, "deleted_") && strings.HasSuffix(email, "@"+DeletedEmailDomain)
}

// NormalizeLegacyDeleted upgrades rows written before the status tag existed:
// if the personal fields carry the reserved sentinels but the tag is missing,
// it is set. Returns true when the account was normalized.
func NormalizeLegacyDeleted(a *Account) bool {
	if a.Status == StatusDeleted {
		return false
	}
	if MatchesAnonymizedPattern(a.Email) || a.FirstName == DeletedNameSentinel {
		a.Status = StatusDeleted
		return true
	}
	return false
}
