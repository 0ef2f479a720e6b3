// Package domain provides typed identifiers shared across the service.
//
// IDs are distinct named types over uuid.UUID so an AccountID can never be
// passed where an ApplicationID is expected. Parsing happens once, at trust
// boundaries (HTTP handlers, store scans); everything past the boundary works
// with typed values.
package domain

import (
	"github.com/google/uuid"

	dErrors "mercato/pkg/domain-errors"
)

// AccountID identifies a canonical account.
type AccountID uuid.UUID

// ApplicationID identifies a vendor application.
type ApplicationID uuid.UUID

// OrderID identifies an order summary handed back by the order collaborator.
type OrderID uuid.UUID

func (id AccountID) String() string     { return uuid.UUID(id).String() }
func (id ApplicationID) String() string { return uuid.UUID(id).String() }
func (id OrderID) String() string       { return uuid.UUID(id).String() }

func (id AccountID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id ApplicationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id OrderID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }

// The named types do not inherit uuid.UUID's text marshaling, so each one
// implements it explicitly. Without this, JSON would render IDs as byte
// arrays.

func (id AccountID) MarshalText() ([]byte, error)     { return []byte(id.String()), nil }
func (id ApplicationID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id OrderID) MarshalText() ([]byte, error)       { return []byte(id.String()), nil }

func (id *AccountID) UnmarshalText(b []byte) error {
	parsed, err := ParseAccountID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *ApplicationID) UnmarshalText(b []byte) error {
	parsed, err := ParseApplicationID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *OrderID) UnmarshalText(b []byte) error {
	parsed, err := ParseOrderID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// NewAccountID returns a fresh random account ID.
func NewAccountID() AccountID { return AccountID(uuid.New()) }

// NewApplicationID returns a fresh random application ID.
func NewApplicationID() ApplicationID { return ApplicationID(uuid.New()) }

// ParseAccountID parses an account ID from its string form. Empty strings,
// malformed UUIDs and the nil UUID are all rejected.
func ParseAccountID(s string) (AccountID, error) {
	u, err := parseUUID(s, "account ID")
	if err != nil {
		return AccountID{}, err
	}
	return AccountID(u), nil
}

// ParseApplicationID parses an application ID from its string form.
func ParseApplicationID(s string) (ApplicationID, error) {
	u, err := parseUUID(s, "application ID")
	if err != nil {
		return ApplicationID{}, err
	}
	return ApplicationID(u), nil
}

// ParseOrderID parses an order ID from its string form.
func ParseOrderID(s string) (OrderID, error) {
	u, err := parseUUID(s, "order ID")
	if err != nil {
		return OrderID{}, err
	}
	return OrderID(u), nil
}

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" is not a valid UUID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" must not be the nil UUID")
	}
	return u, nil
}
