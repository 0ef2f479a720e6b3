package account

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"mercato/internal/identity/models"
	id "mercato/pkg/domain"
	"mercato/pkg/platform/sentinel"
)

type InMemorySuite struct {
	suite.Suite
	store *InMemory
	now   time.Time
}

func (s *InMemorySuite) SetupTest() {
	s.store = NewInMemory()
	s.now = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
}

func TestInMemorySuite(t *testing.T) {
	suite.Run(t, new(InMemorySuite))
}

func (s *InMemorySuite) seed(email, username string) *models.Account {
	acct, err := models.NewAccount(id.NewAccountID(), email, username, "Jane", "Doe", s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Insert(context.Background(), acct))
	return acct
}

func (s *InMemorySuite) TestLookups() {
	ctx := context.Background()

	s.Run("find by ID", func() {
		acct := s.seed("jane@example.com", "jane")
		found, err := s.store.FindByID(ctx, acct.ID)
		s.Require().NoError(err)
		s.Equal(acct.Email, found.Email)
	})

	s.Run("find by email", func() {
		acct := s.seed("by.email@example.com", "by_email")
		found, err := s.store.FindByEmail(ctx, "by.email@example.com")
		s.Require().NoError(err)
		s.Equal(acct.ID, found.ID)
	})

	s.Run("find by subject pair", func() {
		acct := s.seed("linked@example.com", "linked")
		acct.Provider = "google"
		acct.SubjectID = "sub-42"
		s.Require().NoError(s.store.Update(ctx, acct))

		found, err := s.store.FindBySubjectID(ctx, "google", "sub-42")
		s.Require().NoError(err)
		s.Equal(acct.ID, found.ID)

		_, err = s.store.FindBySubjectID(ctx, "github", "sub-42")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("missing rows return ErrNotFound", func() {
		_, err := s.store.FindByID(ctx, id.NewAccountID())
		s.Require().ErrorIs(err, sentinel.ErrNotFound)

		_, err = s.store.FindByEmail(ctx, "nobody@example.com")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("unlinked accounts never match an empty subject probe", func() {
		s.seed("plain@example.com", "plain")
		_, err := s.store.FindBySubjectID(ctx, "", "")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *InMemorySuite) TestUniqueness() {
	ctx := context.Background()

	s.Run("duplicate email conflicts", func() {
		s.seed("dup@example.com", "dup1")
		acct, err := models.NewAccount(id.NewAccountID(), "dup@example.com", "dup2", "J", "D", s.now)
		s.Require().NoError(err)
		s.Require().ErrorIs(s.store.Insert(ctx, acct), sentinel.ErrConflict)
	})

	s.Run("duplicate username conflicts case-insensitively", func() {
		s.seed("case@example.com", "Casey")
		acct, err := models.NewAccount(id.NewAccountID(), "other@example.com", "casey", "J", "D", s.now)
		s.Require().NoError(err)
		s.Require().ErrorIs(s.store.Insert(ctx, acct), sentinel.ErrConflict)
	})

	s.Run("duplicate email conflicts case-insensitively", func() {
		s.seed("mixed@example.com", "mixed1")
		acct, err := models.NewAccount(id.NewAccountID(), "Mixed@Example.com", "mixed2", "J", "D", s.now)
		s.Require().NoError(err)
		s.Require().ErrorIs(s.store.Insert(ctx, acct), sentinel.ErrConflict)
	})

	s.Run("an anonymized row frees its email and username", func() {
		acct := s.seed("freed@example.com", "freed")
		acct.Anonymize(s.now)
		s.Require().NoError(s.store.Update(ctx, acct))

		again, err := models.NewAccount(id.NewAccountID(), "freed@example.com", "freed", "J", "D", s.now)
		s.Require().NoError(err)
		s.Require().NoError(s.store.Insert(ctx, again))
	})
}

func (s *InMemorySuite) TestUsernameTaken() {
	ctx := context.Background()

	s.Run("live holder occupies the handle", func() {
		s.seed("taken@example.com", "taken")
		taken, err := s.store.UsernameTaken(ctx, "taken", true)
		s.Require().NoError(err)
		s.True(taken)
	})

	s.Run("anonymized holder does not occupy when excluded", func() {
		acct := s.seed("gone@example.com", "gone")
		acct.Anonymize(s.now)
		s.Require().NoError(s.store.Update(ctx, acct))

		taken, err := s.store.UsernameTaken(ctx, "gone", true)
		s.Require().NoError(err)
		s.False(taken)

		taken, err = s.store.UsernameTaken(ctx, "gone", false)
		s.Require().NoError(err)
		s.True(taken)
	})

	s.Run("the probe is case-insensitive like the insert arbiter", func() {
		s.seed("kai@example.com", "kai")
		taken, err := s.store.UsernameTaken(ctx, "Kai", true)
		s.Require().NoError(err)
		s.True(taken)
	})

	s.Run("free handle is free", func() {
		taken, err := s.store.UsernameTaken(ctx, "nobody", true)
		s.Require().NoError(err)
		s.False(taken)
	})
}

func (s *InMemorySuite) TestExecute() {
	ctx := context.Background()

	s.Run("validate failure leaves the row untouched", func() {
		acct := s.seed("exec@example.com", "exec")
		_, err := s.store.Execute(ctx, acct.ID,
			func(a *models.Account) error { return sentinel.ErrInvalidState },
			func(a *models.Account) { a.Email = "clobbered@example.com" },
		)
		s.Require().ErrorIs(err, sentinel.ErrInvalidState)

		found, err := s.store.FindByID(ctx, acct.ID)
		s.Require().NoError(err)
		s.Equal("exec@example.com", found.Email)
	})

	s.Run("mutation persists and the updated row is returned", func() {
		acct := s.seed("mut@example.com", "mut")
		updated, err := s.store.Execute(ctx, acct.ID,
			func(a *models.Account) error { return nil },
			func(a *models.Account) { a.Role = models.RoleVendor },
		)
		s.Require().NoError(err)
		s.Equal(models.RoleVendor, updated.Role)

		found, err := s.store.FindByID(ctx, acct.ID)
		s.Require().NoError(err)
		s.Equal(models.RoleVendor, found.Role)
	})

	s.Run("uniqueness is re-checked after mutation", func() {
		s.seed("holder@example.com", "holder")
		acct := s.seed("mover@example.com", "mover")
		_, err := s.store.Execute(ctx, acct.ID,
			func(a *models.Account) error { return nil },
			func(a *models.Account) { a.Email = "holder@example.com" },
		)
		s.Require().ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("missing row returns ErrNotFound", func() {
		_, err := s.store.Execute(ctx, id.NewAccountID(),
			func(a *models.Account) error { return nil },
			func(a *models.Account) {},
		)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *InMemorySuite) TestListDeletedIDs() {
	ctx := context.Background()

	live := s.seed("live@example.com", "live")
	tagged := s.seed("tagged@example.com", "tagged")
	tagged.Anonymize(s.now)
	s.Require().NoError(s.store.Update(ctx, tagged))

	// A legacy row carries the sentinel name but no status tag; the store
	// normalizes it on the way out.
	legacy := s.seed("legacy@example.com", "legacy")
	legacy.FirstName = models.DeletedNameSentinel
	s.Require().NoError(s.store.Update(ctx, legacy))

	ids, err := s.store.ListDeletedIDs(ctx)
	s.Require().NoError(err)
	s.ElementsMatch([]id.AccountID{tagged.ID, legacy.ID}, ids)
	s.NotContains(ids, live.ID)

	found, err := s.store.FindByID(ctx, legacy.ID)
	s.Require().NoError(err)
	s.True(found.IsDeleted(), "legacy rows are normalized on read")
}
