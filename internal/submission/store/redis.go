package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"compliancelab/internal/submission/models"
	"compliancelab/pkg/platform/sentinel"
	"compliancelab/pkg/requestcontext"
)

const (
	redisKeyPrefix   = "submission:"
	redisTracePrefix = "submission_trace:"
	redisCreatedZSet = "submissions:by_created"

	// maxWatchRetries bounds optimistic-lock retries on contended updates.
	maxWatchRetries = 8
)

// Redis stores each submission as a JSON string and indexes ids in a sorted
// set scored by creation time in microseconds.
type Redis struct {
	client redis.UniversalClient
}

func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

func redisKey(id string) string {
	return redisKeyPrefix + id
}

func redisTraceKey(traceID string) string {
	return redisTracePrefix + traceID
}

func (s *Redis) Create(ctx context.Context, sub *models.Submission) error {
	sub.PrepareForInsert(requestcontext.Now(ctx))
	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("encode submission: %w", err)
	}

	// The trace claim maps trace_id to its submission and keeps trace ids unique.
	claimed, err := s.client.SetNX(ctx, redisTraceKey(sub.TraceID), sub.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("redis setnx trace: %w", errors.Join(err, sentinel.ErrUnavailable))
	}
	if !claimed {
		return fmt.Errorf("trace %s: %w", sub.TraceID, sentinel.ErrConflict)
	}

	created, err := s.client.SetNX(ctx, redisKey(sub.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("redis setnx: %w", errors.Join(err, s.undoCreate(ctx, sub, false), sentinel.ErrUnavailable))
	}
	if !created {
		if undoErr := s.undoCreate(ctx, sub, false); undoErr != nil {
			return fmt.Errorf("submission %s: %w", sub.ID, errors.Join(undoErr, sentinel.ErrConflict))
		}
		return fmt.Errorf("submission %s: %w", sub.ID, sentinel.ErrConflict)
	}
	if err := s.client.ZAdd(ctx, redisCreatedZSet, redis.Z{
		Score:  float64(sub.CreatedAt.UnixMicro()),
		Member: sub.ID,
	}).Err(); err != nil {
		// Unindexed records would be invisible to List yet block the id, so
		// the value is removed again. MULTI would not help: Redis does not
		// roll back a transaction when one command fails.
		return fmt.Errorf("redis zadd: %w", errors.Join(err, s.undoCreate(ctx, sub, true), sentinel.ErrUnavailable))
	}
	return nil
}

// undoCreate releases the keys a failed Create wrote. It runs detached from
// ctx so a cancelled request still cleans up.
func (s *Redis) undoCreate(ctx context.Context, sub *models.Submission, record bool) error {
	keys := []string{redisTraceKey(sub.TraceID)}
	if record {
		keys = append(keys, redisKey(sub.ID))
	}
	if err := s.client.Del(context.WithoutCancel(ctx), keys...).Err(); err != nil {
		return fmt.Errorf("undo create: %w", err)
	}
	return nil
}

func (s *Redis) FindByID(ctx context.Context, id string) (*models.Submission, error) {
	data, err := s.client.Get(ctx, redisKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", errors.Join(err, sentinel.ErrUnavailable))
	}
	return decodeSubmission(data)
}

// List walks the creation index newest first. Filtering happens client side;
// the store is sized for a demo work queue, not for millions of rows.
func (s *Redis) List(ctx context.Context, filter models.ListFilter) ([]*models.Submission, int, error) {
	all, err := s.loadAll(ctx)
	if err != nil {
		return nil, 0, err
	}
	matched := make([]*models.Submission, 0, len(all))
	for _, sub := range all {
		if filter.Matches(sub) {
			matched = append(matched, sub)
		}
	}
	return filter.Apply(matched), len(matched), nil
}

// UpdateStatus runs inside WATCH so a concurrent writer forces a retry
// instead of a lost update.
func (s *Redis) UpdateStatus(ctx context.Context, id string, next models.Status, guard models.StatusGuard) (*models.Submission, error) {
	now := requestcontext.Now(ctx)
	key := redisKey(id)
	var updated *models.Submission

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return err
		}
		sub, err := decodeSubmission(data)
		if err != nil {
			return err
		}
		if guard != nil {
			if err := guard(sub.Clone(), next); err != nil {
				return err
			}
		}
		sub.ApplyStatus(next, now)
		encoded, err := json.Marshal(sub)
		if err != nil {
			return fmt.Errorf("encode submission: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, 0)
			return nil
		})
		if err == nil {
			updated = sub
		}
		return err
	}

	for range maxWatchRetries {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, fmt.Errorf("update submission %s: %w", id, sentinel.ErrConflict)
}

func (s *Redis) Stats(ctx context.Context) (*models.Statistics, error) {
	all, err := s.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	st := models.NewStatistics()
	for _, sub := range all {
		st.Add(sub)
	}
	return st, nil
}

// loadAll returns every submission newest first.
func (s *Redis) loadAll(ctx context.Context) ([]*models.Submission, error) {
	ids, err := s.client.ZRevRange(ctx, redisCreatedZSet, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrevrange: %w", errors.Join(err, sentinel.ErrUnavailable))
	}
	if len(ids) == 0 {
		return []*models.Submission{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = redisKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", errors.Join(err, sentinel.ErrUnavailable))
	}

	out := make([]*models.Submission, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Index entry without a record; skip it.
			continue
		}
		sub, err := decodeSubmission([]byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	// Equal scores come back in reverse member order; re-sort to pin the
	// created_at ordering.
	models.SortNewestFirst(out)
	return out, nil
}

func decodeSubmission(data []byte) (*models.Submission, error) {
	var sub models.Submission
	if err := json.Unmarshal(data, &sub); err != nil {
		return nil, fmt.Errorf("decode submission: %w", err)
	}
	return &sub, nil
}
