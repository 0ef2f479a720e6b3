package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"mercato/internal/identity/models"
	accountstore "mercato/internal/identity/store/account"
	id "mercato/pkg/domain"
	dErrors "mercato/pkg/domain-errors"
	"mercato/pkg/platform/sentinel"
	"mercato/pkg/requestcontext"
	"mercato/pkg/secrets"
)

// contendedStore delegates to the in-memory account store but makes the
// first Insert lose to a concurrent writer: the winner's row lands in the
// store and the caller gets the uniqueness conflict, exactly what a second
// request committing first looks like.
type contendedStore struct {
	*accountstore.InMemory
	winner *models.Account
	raced  bool
}

func (c *contendedStore) Insert(ctx context.Context, acct *models.Account) error {
	if !c.raced {
		c.raced = true
		if err := c.InMemory.Insert(ctx, c.winner); err != nil {
			return err
		}
		return sentinel.ErrConflict
	}
	return c.InMemory.Insert(ctx, acct)
}

type RaceSuite struct {
	suite.Suite
	ctx context.Context
	now time.Time
}

func (s *RaceSuite) SetupTest() {
	s.now = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func TestRaceSuite(t *testing.T) {
	suite.Run(t, new(RaceSuite))
}

func (s *RaceSuite) account(email, username string) *models.Account {
	acct, err := models.NewAccount(id.NewAccountID(), email, username, "Mira", "Lane", s.now)
	s.Require().NoError(err)
	return acct
}

func (s *RaceSuite) TestReconcileConvergesOnLostCreationRace() {
	winner := s.account("mira@example.com", "mira")
	winner.Provider = "google"
	winner.SubjectID = "sub-9"

	store := &contendedStore{InMemory: accountstore.NewInMemory(), winner: winner}
	svc := New(store, secrets.NewHasher())

	result, err := svc.Reconcile(s.ctx, models.IdentityAssertion{
		Provider:  "google",
		SubjectID: "sub-9",
		Email:     "mira@example.com",
		FirstName: "Mira",
		LastName:  "Lane",
	}, models.RoleCustomer)
	s.Require().NoError(err)
	s.True(store.raced, "the first insert lost the race")
	s.Equal(models.OutcomeLinked, result.Outcome, "the re-run match finds the winner's row")
	s.Equal(winner.ID, result.Account.ID)
}

func (s *RaceSuite) TestRegisterLocalLostRaceOnEmail() {
	store := &contendedStore{
		InMemory: accountstore.NewInMemory(),
		winner:   s.account("mira@example.com", "mira"),
	}
	svc := New(store, secrets.NewHasher())

	// The retry finds the winner holding the email and reports a clean
	// conflict instead of the double-collision failure.
	_, err := svc.RegisterLocal(s.ctx, "mira@example.com", "password123", "Mira", "Lane")
	s.Require().Error(err)
	s.True(store.raced)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.Contains(err.Error(), "already registered")
}

func (s *RaceSuite) TestRegisterLocalLostRaceOnUsername() {
	// The winner holds only the handle; the retry re-probes and settles on
	// the next suffix.
	store := &contendedStore{
		InMemory: accountstore.NewInMemory(),
		winner:   s.account("other@example.com", "mira"),
	}
	svc := New(store, secrets.NewHasher())

	result, err := svc.RegisterLocal(s.ctx, "mira@example.com", "password123", "Mira", "Lane")
	s.Require().NoError(err)
	s.True(store.raced)
	s.Equal(models.OutcomeCreated, result.Outcome)
	s.Equal("mira1", result.Account.Username)
}
