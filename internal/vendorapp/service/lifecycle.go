package service

import (
	"context"
	"errors"

	identitymodels "mercato/internal/identity/models"
	"mercato/internal/vendorapp/models"
	id "mercato/pkg/domain"
	dErrors "mercato/pkg/domain-errors"
	"mercato/pkg/platform/audit"
	"mercato/pkg/platform/sentinel"
	"mercato/pkg/requestcontext"
)

// Submit files a vendor application for an account.
//
// Legal entry points:
//   - no existing application: a new pending record is created
//   - existing pending record: idempotent resubmission, the same record is
//     returned and nothing is written (this also covers a previously
//     suspended application that an external auto-return process already
//     flipped back to pending; only the stored status matters here)
//
// An approved application is an AlreadyVendor policy rejection; a rejected
// one requires an explicit Resubmit; a suspended one requires Reapply.
// The account role stays customer until approval.
func (s *Service) Submit(ctx context.Context, accountID id.AccountID, storeName string, docs []models.DocumentRef) (models.LifecycleResult, error) {
	ctx, span := s.tracer.Start(ctx, "vendorapp.Submit")
	defer span.End()

	if accountID.IsNil() {
		return models.LifecycleResult{}, dErrors.New(dErrors.CodeBadRequest, "account ID required")
	}

	owner, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.LifecycleResult{}, dErrors.New(dErrors.CodeNotFound, "account not found")
		}
		return models.LifecycleResult{}, translateStoreErr(err, "account")
	}
	if owner.IsDeleted() {
		return models.LifecycleResult{}, dErrors.New(dErrors.CodePolicyRejection, "a deleted account cannot apply")
	}

	// Applications left behind by earlier anonymizations are swept before a
	// new record can collide with them.
	if _, err := s.CleanupOrphans(ctx); err != nil {
		s.logger.WarnContext(ctx, "orphan sweep before submission failed", "error", err)
	}

	existing, err := s.applications.FindByAccountID(ctx, accountID)
	switch {
	case err == nil:
		switch existing.Status {
		case models.StatusPending:
			// Idempotent resubmission: same record, no duplicate.
			return models.LifecycleResult{Application: existing, AccountRole: owner.Role}, nil
		case models.StatusApproved:
			return models.LifecycleResult{}, dErrors.New(dErrors.CodePolicyRejection, "account is already a vendor")
		case models.StatusRejected:
			return models.LifecycleResult{}, dErrors.New(dErrors.CodePolicyRejection,
				"a rejected application must be resubmitted explicitly")
		case models.StatusSuspended:
			return models.LifecycleResult{}, dErrors.New(dErrors.CodePolicyRejection,
				"a suspended application must go through reapplication")
		}
	case errors.Is(err, sentinel.ErrNotFound):
		// no application yet
	default:
		return models.LifecycleResult{}, translateStoreErr(err, "application")
	}

	now := requestcontext.Now(ctx)
	app, err := models.NewApplication(id.NewApplicationID(), accountID, storeName, docs, now)
	if err != nil {
		return models.LifecycleResult{}, err
	}
	if err := s.applications.Insert(ctx, app); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// A concurrent submission won; return its record.
			if racedApp, findErr := s.applications.FindByAccountID(ctx, accountID); findErr == nil {
				return models.LifecycleResult{Application: racedApp, AccountRole: owner.Role}, nil
			}
			return models.LifecycleResult{}, dErrors.New(dErrors.CodePolicyRejection, "an application already exists for this account")
		}
		return models.LifecycleResult{}, translateStoreErr(err, "application")
	}

	s.countTransition("submit")
	s.logAudit(ctx, audit.EventApplicationSubmit,
		"account_id", accountID.String(), "application_id", app.ID.String())
	return models.LifecycleResult{Application: app, AccountRole: owner.Role}, nil
}

// Approve moves a pending application to approved and promotes the owning
// account to vendor. Both writes happen in one transactional unit: if the
// role change fails, the application stays pending and approval can be
// retried.
func (s *Service) Approve(ctx context.Context, appID id.ApplicationID) (models.LifecycleResult, error) {
	ctx, span := s.tracer.Start(ctx, "vendorapp.Approve")
	defer span.End()

	now := requestcontext.Now(ctx)
	app, role, err := s.decide(ctx, appID, identitymodels.RoleVendor,
		func(a *models.VendorApplication) error { return a.CanApprove() },
		func(a *models.VendorApplication) { a.ApplyApprove(now) },
	)
	if err != nil {
		return models.LifecycleResult{}, err
	}

	s.countTransition("approve")
	s.logAudit(ctx, audit.EventApplicationApprove,
		"account_id", app.AccountID.String(), "application_id", app.ID.String())
	return models.LifecycleResult{Application: app, AccountRole: role}, nil
}

// Reject moves a pending application to rejected; the account role remains
// customer.
func (s *Service) Reject(ctx context.Context, appID id.ApplicationID, reason string) (models.LifecycleResult, error) {
	ctx, span := s.tracer.Start(ctx, "vendorapp.Reject")
	defer span.End()

	now := requestcontext.Now(ctx)
	app, role, err := s.decide(ctx, appID, identitymodels.RoleCustomer,
		func(a *models.VendorApplication) error { return a.CanReject() },
		func(a *models.VendorApplication) { a.ApplyReject(now) },
	)
	if err != nil {
		return models.LifecycleResult{}, err
	}

	s.countTransition("reject")
	s.logAudit(ctx, audit.EventApplicationReject,
		"account_id", app.AccountID.String(), "application_id", app.ID.String(), "reason", reason)
	return models.LifecycleResult{Application: app, AccountRole: role}, nil
}

// SuspensionPreview returns the application together with the owning
// account's in-flight orders, without mutating anything. Suspension with
// undisclosed in-flight work is disallowed by policy: the caller must show
// this list and pass the acknowledged IDs back to Suspend.
func (s *Service) SuspensionPreview(ctx context.Context, appID id.ApplicationID) (models.LifecycleResult, error) {
	app, err := s.applications.FindByID(ctx, appID)
	if err != nil {
		return models.LifecycleResult{}, translateStoreErr(err, "application")
	}
	orders, err := s.inFlightOrders(ctx, app.AccountID)
	if err != nil {
		return models.LifecycleResult{}, err
	}
	return models.LifecycleResult{Application: app, AccountRole: models.RoleFor(app.Status), InFlightOrders: orders}, nil
}

// Suspend moves an approved application to suspended. The in-flight order
// list is recomputed at suspension time and must match what the caller
// acknowledged; the vendor keeps their role through the grace period so
// those orders can still be completed, while new order intake is blocked by
// the order collaborator checking the stored status.
func (s *Service) Suspend(ctx context.Context, appID id.ApplicationID, acknowledged []id.OrderID) (models.LifecycleResult, error) {
	ctx, span := s.tracer.Start(ctx, "vendorapp.Suspend")
	defer span.End()

	app, err := s.applications.FindByID(ctx, appID)
	if err != nil {
		return models.LifecycleResult{}, translateStoreErr(err, "application")
	}

	orders, err := s.inFlightOrders(ctx, app.AccountID)
	if err != nil {
		return models.LifecycleResult{}, err
	}
	if !acknowledgesAll(acknowledged, orders) {
		return models.LifecycleResult{}, dErrors.Newf(dErrors.CodePolicyRejection,
			"suspension requires acknowledging all %d in-flight orders", len(orders))
	}

	now := requestcontext.Now(ctx)
	app, err = s.transition(ctx, appID,
		func(a *models.VendorApplication) error { return a.CanSuspend() },
		func(a *models.VendorApplication) { a.ApplySuspend(now) },
	)
	if err != nil {
		return models.LifecycleResult{}, err
	}

	s.countTransition("suspend")
	s.logAudit(ctx, audit.EventApplicationSuspend,
		"account_id", app.AccountID.String(), "application_id", app.ID.String())
	return models.LifecycleResult{
		Application:    app,
		AccountRole:    identitymodels.RoleVendor,
		InFlightOrders: orders,
	}, nil
}

// Reapply rewrites a suspended application back to pending with a fresh
// document set. The record keeps its identifier and linked limits reset to
// the entry tier; the account returns to customer until re-approval.
func (s *Service) Reapply(ctx context.Context, appID id.ApplicationID, docs []models.DocumentRef) (models.LifecycleResult, error) {
	ctx, span := s.tracer.Start(ctx, "vendorapp.Reapply")
	defer span.End()

	now := requestcontext.Now(ctx)
	app, role, err := s.decide(ctx, appID, identitymodels.RoleCustomer,
		func(a *models.VendorApplication) error { return a.CanReapply() },
		func(a *models.VendorApplication) { a.ApplyReapply(docs, now) },
	)
	if err != nil {
		return models.LifecycleResult{}, err
	}

	s.countTransition("reapply")
	s.logAudit(ctx, audit.EventApplicationReapply,
		"account_id", app.AccountID.String(), "application_id", app.ID.String())
	return models.LifecycleResult{Application: app, AccountRole: role}, nil
}

// Resubmit rewrites a rejected application back to pending. Explicit only;
// nothing moves a rejected application automatically.
func (s *Service) Resubmit(ctx context.Context, appID id.ApplicationID, docs []models.DocumentRef) (models.LifecycleResult, error) {
	ctx, span := s.tracer.Start(ctx, "vendorapp.Resubmit")
	defer span.End()

	now := requestcontext.Now(ctx)
	app, err := s.transition(ctx, appID,
		func(a *models.VendorApplication) error { return a.CanResubmit() },
		func(a *models.VendorApplication) { a.ApplyResubmit(docs, now) },
	)
	if err != nil {
		return models.LifecycleResult{}, err
	}

	s.countTransition("resubmit")
	s.logAudit(ctx, audit.EventApplicationSubmit,
		"account_id", app.AccountID.String(), "application_id", app.ID.String(), "reason", "resubmission")
	return models.LifecycleResult{Application: app, AccountRole: identitymodels.RoleCustomer}, nil
}

// decide applies a lifecycle transition and the matching role change on the
// owning account as one unit through the tx runner. If either write fails,
// the runner rolls the whole unit back, so the application status and the
// account role can never drift apart.
func (s *Service) decide(ctx context.Context, appID id.ApplicationID, role identitymodels.Role, validate func(*models.VendorApplication) error, mutate func(*models.VendorApplication)) (*models.VendorApplication, identitymodels.Role, error) {
	var app *models.VendorApplication
	var appliedRole identitymodels.Role
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		app, err = s.transition(ctx, appID, validate, mutate)
		if err != nil {
			return err
		}
		appliedRole, err = s.applyRole(ctx, app.AccountID, role)
		return err
	})
	if err != nil {
		return nil, "", err
	}
	return app, appliedRole, nil
}

// transition applies a validated mutation through the store's Execute. The
// stored state is re-validated under the row lock, so an illegal transition
// never mutates any record, and a stale client loses to whoever wrote first.
func (s *Service) transition(ctx context.Context, appID id.ApplicationID, validate func(*models.VendorApplication) error, mutate func(*models.VendorApplication)) (*models.VendorApplication, error) {
	app, err := s.applications.Execute(ctx, appID, validate, mutate)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvalidTransition) {
			s.countIllegal()
			return nil, err
		}
		return nil, translateStoreErr(err, "application")
	}
	return app, nil
}

// applyRole sets the owning account's role, keeping the invariant that an
// approved application implies a vendor account.
func (s *Service) applyRole(ctx context.Context, accountID id.AccountID, role identitymodels.Role) (identitymodels.Role, error) {
	now := requestcontext.Now(ctx)
	acct, err := s.accounts.Execute(ctx, accountID,
		func(a *identitymodels.Account) error {
			if a.IsDeleted() {
				return sentinel.ErrInvalidState
			}
			return nil
		},
		func(a *identitymodels.Account) {
			if a.Role != identitymodels.RoleAdmin {
				a.Role = role
				a.UpdatedAt = now
			}
		},
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			return "", dErrors.New(dErrors.CodeConflict, "owning account was deleted")
		}
		return "", translateStoreErr(err, "account")
	}
	return acct.Role, nil
}

func (s *Service) inFlightOrders(ctx context.Context, accountID id.AccountID) ([]models.OrderSummary, error) {
	if s.orders == nil {
		return nil, nil
	}
	orders, err := s.orders.InFlightByAccount(ctx, accountID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "order collaborator unavailable")
	}
	return orders, nil
}

func acknowledgesAll(acknowledged []id.OrderID, orders []models.OrderSummary) bool {
	seen := make(map[id.OrderID]struct{}, len(acknowledged))
	for _, orderID := range acknowledged {
		seen[orderID] = struct{}{}
	}
	for _, order := range orders {
		if _, ok := seen[order.ID]; !ok {
			return false
		}
	}
	return true
}
