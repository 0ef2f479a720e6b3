package models

import (
	"time"

	identitymodels "mercato/internal/identity/models"
	id "mercato/pkg/domain"
	dErrors "mercato/pkg/domain-errors"
)

// Status is the vendor application lifecycle status.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusSuspended Status = "suspended"
)

// legalTransitions is the single source of truth for the application state
// machine. Anything not listed is an illegal transition and must not mutate
// any record.
//
//	pending   -> approved | rejected   (admin decision)
//	approved  -> suspended             (admin suspension, grace period)
//	suspended -> pending               (reapplication, record preserved)
//	rejected  -> pending               (explicit resubmission only)
var legalTransitions = map[Status][]Status{
	StatusPending:   {StatusApproved, StatusRejected},
	StatusApproved:  {StatusSuspended},
	StatusSuspended: {StatusPending},
	StatusRejected:  {StatusPending},
}

// CanTransitionTo consults the transition table.
func (s Status) CanTransitionTo(to Status) bool {
	for _, allowed := range legalTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// DocumentRef is an opaque handle to an uploaded identity/permit/proof
// artifact. The core stores whatever the document collaborator returned and
// never interprets it.
type DocumentRef string

// Limits are per-application resource caps, seeded from the subscription
// tier. Tier logic itself lives outside this core.
type Limits struct {
	Flavors int `json:"flavors"`
	Drums   int `json:"drums"`
	Orders  int `json:"orders"`
}

// DefaultLimits are the entry-tier caps applied at submission and reset on
// reapplication.
var DefaultLimits = Limits{Flavors: 5, Drums: 2, Orders: 50}

// VendorApplication is the subordinate record driving vendor standing.
//
// Invariants:
//   - At most one application per account (enforced by the lifecycle
//     controller plus a unique index, not by this struct)
//   - An approved application implies the owning account's role is vendor
//   - Status changes only along legalTransitions
//   - ID and CreatedAt are immutable; reapplication rewrites status in place
//     so the identifier and linked resource limits survive
type VendorApplication struct {
	ID        id.ApplicationID `json:"id"`
	AccountID id.AccountID     `json:"account_id"`
	// StoreName stays empty until the vendor completes store setup.
	StoreName string        `json:"store_name,omitempty"`
	Status    Status        `json:"status"`
	Documents []DocumentRef `json:"documents"`
	Limits    Limits        `json:"limits"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// NewApplication constructs a pending application with entry-tier limits.
func NewApplication(appID id.ApplicationID, accountID id.AccountID, storeName string, docs []DocumentRef, now time.Time) (*VendorApplication, error) {
	if accountID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "application requires an owning account")
	}
	return &VendorApplication{
		ID:        appID,
		AccountID: accountID,
		StoreName: storeName,
		Status:    StatusPending,
		Documents: docs,
		Limits:    DefaultLimits,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (a *VendorApplication) IsPending() bool   { return a.Status == StatusPending }
func (a *VendorApplication) IsApproved() bool  { return a.Status == StatusApproved }
func (a *VendorApplication) IsSuspended() bool { return a.Status == StatusSuspended }

// CanApprove checks the pending -> approved transition.
func (a *VendorApplication) CanApprove() error { return a.canMove(StatusApproved) }

// ApplyApprove transitions to approved. Call CanApprove first.
func (a *VendorApplication) ApplyApprove(now time.Time) {
	a.Status = StatusApproved
	a.UpdatedAt = now
}

// CanReject checks the pending -> rejected transition.
func (a *VendorApplication) CanReject() error { return a.canMove(StatusRejected) }

// ApplyReject transitions to rejected. Call CanReject first.
func (a *VendorApplication) ApplyReject(now time.Time) {
	a.Status = StatusRejected
	a.UpdatedAt = now
}

// CanSuspend checks the approved -> suspended transition.
func (a *VendorApplication) CanSuspend() error { return a.canMove(StatusSuspended) }

// ApplySuspend transitions to suspended. The account role stays vendor for
// the grace period; order intake is blocked by the order collaborator
// checking this status.
func (a *VendorApplication) ApplySuspend(now time.Time) {
	a.Status = StatusSuspended
	a.UpdatedAt = now
}

// CanReapply checks the suspended -> pending transition.
func (a *VendorApplication) CanReapply() error {
	if a.Status != StatusSuspended {
		return a.transitionErr(StatusPending)
	}
	return nil
}

// ApplyReapply rewrites the suspended application back to pending with a
// fresh document set. The record keeps its identity; limits reset to the
// entry tier.
func (a *VendorApplication) ApplyReapply(docs []DocumentRef, now time.Time) {
	a.Status = StatusPending
	a.Documents = docs
	a.Limits = DefaultLimits
	a.UpdatedAt = now
}

// CanResubmit checks the rejected -> pending transition. Resubmission is
// always explicit, never automatic.
func (a *VendorApplication) CanResubmit() error {
	if a.Status != StatusRejected {
		return a.transitionErr(StatusPending)
	}
	return nil
}

// ApplyResubmit rewrites a rejected application back to pending.
func (a *VendorApplication) ApplyResubmit(docs []DocumentRef, now time.Time) {
	a.Status = StatusPending
	a.Documents = docs
	a.UpdatedAt = now
}

func (a *VendorApplication) canMove(to Status) error {
	if !a.Status.CanTransitionTo(to) {
		return a.transitionErr(to)
	}
	return nil
}

func (a *VendorApplication) transitionErr(to Status) error {
	return dErrors.Newf(dErrors.CodeInvalidTransition,
		"cannot move application from %s to %s", a.Status, to)
}

// RoleFor returns the account role implied by an application status.
func RoleFor(status Status) identitymodels.Role {
	switch status {
	case StatusApproved, StatusSuspended:
		// Suspended keeps the vendor role through the grace period.
		return identitymodels.RoleVendor
	default:
		return identitymodels.RoleCustomer
	}
}
