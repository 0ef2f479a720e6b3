package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	identitymodels "mercato/internal/identity/models"
	accountstore "mercato/internal/identity/store/account"
	"mercato/internal/vendorapp/models"
	applicationstore "mercato/internal/vendorapp/store/application"
	id "mercato/pkg/domain"
	"mercato/pkg/platform/audit"
	"mercato/pkg/requestcontext"
)

type CleanerSuite struct {
	suite.Suite
	accounts     *accountstore.InMemory
	applications *applicationstore.InMemory
	audit        *audit.MemoryPublisher
	service      *Service
	ctx          context.Context
	now          time.Time
}

func (s *CleanerSuite) SetupTest() {
	s.accounts = accountstore.NewInMemory()
	s.applications = applicationstore.NewInMemory()
	s.audit = audit.NewMemoryPublisher()
	s.service = New(s.applications, s.accounts, nil,
		WithAuditPublisher(s.audit),
	)
	s.now = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func TestCleanerSuite(t *testing.T) {
	suite.Run(t, new(CleanerSuite))
}

func (s *CleanerSuite) seedOwnerWithApp(anonymized bool) (*identitymodels.Account, *models.VendorApplication) {
	acct, err := identitymodels.NewAccount(id.NewAccountID(),
		id.NewAccountID().String()+"@example.com", id.NewAccountID().String(), "Jane", "Doe", s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.accounts.Insert(s.ctx, acct))

	app, err := models.NewApplication(id.NewApplicationID(), acct.ID, "Shop", nil, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.applications.Insert(s.ctx, app))

	if anonymized {
		acct.Anonymize(s.now)
		s.Require().NoError(s.accounts.Update(s.ctx, acct))
	}
	return acct, app
}

func (s *CleanerSuite) TestCleanupOrphans() {
	s.Run("removes applications of anonymized owners only", func() {
		_, orphaned := s.seedOwnerWithApp(true)
		_, kept := s.seedOwnerWithApp(false)

		removed, err := s.service.CleanupOrphans(s.ctx)
		s.Require().NoError(err)
		s.ElementsMatch([]id.ApplicationID{orphaned.ID}, removed)

		_, err = s.applications.FindByID(s.ctx, orphaned.ID)
		s.Require().Error(err)
		_, err = s.applications.FindByID(s.ctx, kept.ID)
		s.Require().NoError(err)

		s.Len(s.audit.ByAction(audit.EventOrphansRemoved), 1)
	})

	s.Run("a second sweep is a no-op", func() {
		s.seedOwnerWithApp(true)

		first, err := s.service.CleanupOrphans(s.ctx)
		s.Require().NoError(err)
		s.Len(first, 1)

		second, err := s.service.CleanupOrphans(s.ctx)
		s.Require().NoError(err)
		s.Empty(second)
	})

	s.Run("no deleted owners means nothing to do", func() {
		s.seedOwnerWithApp(false)
		removed, err := s.service.CleanupOrphans(s.ctx)
		s.Require().NoError(err)
		s.Empty(removed)
	})
}

func (s *CleanerSuite) TestCleanupForAccount() {
	s.Run("removes the anonymized owner's application", func() {
		acct, app := s.seedOwnerWithApp(true)

		removed, err := s.service.CleanupForAccount(s.ctx, acct.ID)
		s.Require().NoError(err)
		s.Equal([]id.ApplicationID{app.ID}, removed)
	})

	s.Run("a live owner's application is left alone", func() {
		acct, app := s.seedOwnerWithApp(false)

		removed, err := s.service.CleanupForAccount(s.ctx, acct.ID)
		s.Require().NoError(err)
		s.Empty(removed)

		_, err = s.applications.FindByID(s.ctx, app.ID)
		s.Require().NoError(err)
	})

	s.Run("an unknown account is a no-op", func() {
		removed, err := s.service.CleanupForAccount(s.ctx, id.NewAccountID())
		s.Require().NoError(err)
		s.Empty(removed)
	})
}
