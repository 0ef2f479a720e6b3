package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and platform clients return
// these (optionally wrapped) so services can translate them into coded domain
// errors without knowing which backend produced them.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: record does not exist in the store
// - ErrConflict: a uniqueness constraint (email, username) was violated
// - ErrAlreadyUsed: a one-shot resource (login state token) was already redeemed
// - ErrInvalidState: record is in the wrong state for the requested mutation
// - ErrUnavailable: store or broker temporarily unreachable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
