//go:build integration

package loginstate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"mercato/pkg/platform/sentinel"
	"mercato/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	ctx   context.Context
	redis *containers.RedisContainer
	store *RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.redis = containers.NewRedisContainer(s.T())
	s.store = NewRedis(s.redis.Client, time.Minute)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(s.ctx))
}

func (s *RedisStoreSuite) TestOneShotRedemption() {
	token, err := s.store.Issue(s.ctx)
	s.Require().NoError(err)
	s.Require().NotEmpty(token)

	s.Require().NoError(s.store.Redeem(s.ctx, token))
	s.Require().ErrorIs(s.store.Redeem(s.ctx, token), sentinel.ErrAlreadyUsed)
}

// Redemption uses GETDEL, so exactly one process wins even when the issue and
// the redeem happen through different store instances.
func (s *RedisStoreSuite) TestRedemptionAcrossInstances() {
	token, err := s.store.Issue(s.ctx)
	s.Require().NoError(err)

	other := NewRedis(s.redis.Client, time.Minute)
	s.Require().NoError(other.Redeem(s.ctx, token))
	s.Require().ErrorIs(s.store.Redeem(s.ctx, token), sentinel.ErrAlreadyUsed)
}

func (s *RedisStoreSuite) TestUnknownTokenIsRefused() {
	s.Require().ErrorIs(s.store.Redeem(s.ctx, "never-issued"), sentinel.ErrAlreadyUsed)
}

func (s *RedisStoreSuite) TestExpiredTokenIsRefused() {
	short := NewRedis(s.redis.Client, 50*time.Millisecond)
	token, err := short.Issue(s.ctx)
	s.Require().NoError(err)

	s.Eventually(func() bool {
		return s.store.Redeem(s.ctx, token) != nil
	}, 2*time.Second, 25*time.Millisecond)
}
