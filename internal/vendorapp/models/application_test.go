package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	identitymodels "mercato/internal/identity/models"
	id "mercato/pkg/domain"
	dErrors "mercato/pkg/domain-errors"
)

type ApplicationSuite struct {
	suite.Suite
	now time.Time
}

func (s *ApplicationSuite) SetupTest() {
	s.now = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
}

func TestApplicationSuite(t *testing.T) {
	suite.Run(t, new(ApplicationSuite))
}

func (s *ApplicationSuite) newApp(status Status) *VendorApplication {
	app, err := NewApplication(id.NewApplicationID(), id.NewAccountID(), "Jane's Drums",
		[]DocumentRef{"doc-1"}, s.now)
	s.Require().NoError(err)
	app.Status = status
	return app
}

func (s *ApplicationSuite) TestTransitionTable() {
	type move struct {
		from Status
		to   Status
	}
	legal := map[move]bool{}
	for _, m := range []move{
		{StatusPending, StatusApproved},
		{StatusPending, StatusRejected},
		{StatusApproved, StatusSuspended},
		{StatusSuspended, StatusPending},
		{StatusRejected, StatusPending},
	} {
		legal[m] = true
	}

	all := []Status{StatusPending, StatusApproved, StatusRejected, StatusSuspended}
	for _, from := range all {
		for _, to := range all {
			expected := legal[move{from, to}]
			s.Equal(expected, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func (s *ApplicationSuite) TestConstruction() {
	s.Run("new applications are pending with entry-tier limits", func() {
		app := s.newApp(StatusPending)
		s.True(app.IsPending())
		s.Equal(DefaultLimits, app.Limits)
	})

	s.Run("an owning account is required", func() {
		_, err := NewApplication(id.NewApplicationID(), id.AccountID{}, "", nil, s.now)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
}

func (s *ApplicationSuite) TestGuardedTransitions() {
	s.Run("approve from pending", func() {
		app := s.newApp(StatusPending)
		s.Require().NoError(app.CanApprove())
		app.ApplyApprove(s.now)
		s.True(app.IsApproved())
	})

	s.Run("approve from rejected is illegal", func() {
		app := s.newApp(StatusRejected)
		err := app.CanApprove()
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
		s.Equal(StatusRejected, app.Status, "guard checks never mutate")
	})

	s.Run("suspend only from approved", func() {
		app := s.newApp(StatusApproved)
		s.Require().NoError(app.CanSuspend())
		app.ApplySuspend(s.now)
		s.True(app.IsSuspended())

		pending := s.newApp(StatusPending)
		s.Error(pending.CanSuspend())
	})

	s.Run("reapply resets documents and limits but keeps identity", func() {
		app := s.newApp(StatusSuspended)
		app.Limits = Limits{Flavors: 50, Drums: 20, Orders: 500}
		originalID := app.ID

		s.Require().NoError(app.CanReapply())
		app.ApplyReapply([]DocumentRef{"doc-2"}, s.now.Add(time.Hour))

		s.True(app.IsPending())
		s.Equal(originalID, app.ID)
		s.Equal([]DocumentRef{"doc-2"}, app.Documents)
		s.Equal(DefaultLimits, app.Limits, "limits reset to the entry tier")
	})

	s.Run("resubmit only from rejected", func() {
		app := s.newApp(StatusRejected)
		s.Require().NoError(app.CanResubmit())
		app.ApplyResubmit([]DocumentRef{"doc-3"}, s.now)
		s.True(app.IsPending())

		approved := s.newApp(StatusApproved)
		err := approved.CanResubmit()
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})
}

func (s *ApplicationSuite) TestRoleFor() {
	s.Equal(identitymodels.RoleVendor, RoleFor(StatusApproved))
	s.Equal(identitymodels.RoleVendor, RoleFor(StatusSuspended), "the grace period keeps the vendor role")
	s.Equal(identitymodels.RoleCustomer, RoleFor(StatusPending))
	s.Equal(identitymodels.RoleCustomer, RoleFor(StatusRejected))
}
