package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"compliancelab/internal/decision"
	"compliancelab/internal/submission/models"
	"compliancelab/pkg/platform/sentinel"
)

type RedisStoreSuite struct {
	storeContract
	mr     *miniredis.Miniredis
	client *redis.Client
}

func TestRedisStoreSuite(t *testing.T) {
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupTest() {
	s.mr = miniredis.RunT(s.T())
	s.client = redis.NewClient(&redis.Options{Addr: s.mr.Addr()})
	s.store = NewRedis(s.client)
}

func (s *RedisStoreSuite) TearDownTest() {
	_ = s.client.Close()
}

// TestIndexesByCreationTime verifies the sorted-set index and record keys.
func (s *RedisStoreSuite) TestIndexesByCreationTime() {
	sub := s.create(0, "acme", decision.DecisionOKToSubmit)

	s.True(s.mr.Exists(redisKey(sub.ID)))
	score, err := s.mr.ZScore(redisCreatedZSet, sub.ID)
	s.Require().NoError(err)
	s.Equal(float64(baseTime.UnixMicro()), score)
}

// TestDanglingIndexEntryIsSkipped verifies a removed record key does not
// break listing.
func (s *RedisStoreSuite) TestDanglingIndexEntryIsSkipped() {
	kept := s.create(0, "acme", decision.DecisionOKToSubmit)
	gone := s.create(0, "acme", decision.DecisionOKToSubmit)
	s.mr.Del(redisKey(gone.ID))

	items, total, err := s.store.List(context.Background(), models.ListFilter{})
	s.Require().NoError(err)
	s.Equal(1, total)
	s.Equal([]string{kept.ID}, ids(items))
}

// TestFailedIndexWriteLeavesNoRecord verifies a create whose index write
// fails can be retried and then shows up in listings.
func (s *RedisStoreSuite) TestFailedIndexWriteLeavesNoRecord() {
	s.Require().NoError(s.mr.Set(redisCreatedZSet, "not a sorted set"))

	sub := newSubmission("acme", decision.DecisionOKToSubmit)
	sub.ID = "sub-retry"
	err := s.store.Create(at(0), sub)
	s.Require().ErrorIs(err, sentinel.ErrUnavailable)

	_, err = s.store.FindByID(context.Background(), "sub-retry")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	s.mr.Del(redisCreatedZSet)
	retry := newSubmission("acme", decision.DecisionOKToSubmit)
	retry.ID = "sub-retry"
	s.Require().NoError(s.store.Create(at(time.Minute), retry))

	items, total, err := s.store.List(context.Background(), models.ListFilter{})
	s.Require().NoError(err)
	s.Equal(1, total)
	s.Equal([]string{"sub-retry"}, ids(items))
}

// TestUnavailable verifies connection failures surface as ErrUnavailable.
func (s *RedisStoreSuite) TestUnavailable() {
	s.mr.Close()

	_, err := s.store.FindByID(context.Background(), "any")
	s.Require().ErrorIs(err, sentinel.ErrUnavailable)

	_, err = s.store.Stats(context.Background())
	s.Require().ErrorIs(err, sentinel.ErrUnavailable)
}
