package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"thumbnailer/internal/domain"
)

const (
	redisRequestPrefix = "thumbnail:request:"
	redisStatusPrefix  = "thumbnail:status:"
	redisAllKey        = "thumbnail:requests"

	redisMaxTxRetries = 8
)

// RedisStore keeps one JSON document per request plus sorted-set indexes
// (score = creation time) for all requests and per status. Updates use
// WATCH/MULTI so concurrent writers to the same record never interleave.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps a connected client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func redisRequestKey(id string) string { return redisRequestPrefix + id }

func redisStatusKey(s domain.Status) string { return redisStatusPrefix + string(s) }

func (s *RedisStore) Create(ctx context.Context, req *domain.GenerationRequest) error {
	if req == nil {
		return fmt.Errorf("%w: request is required", domain.ErrValidation)
	}
	if err := req.Validate(); err != nil {
		return err
	}
	doc, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	key := redisRequestKey(req.ID)
	score := float64(req.CreatedAt.UnixMicro())

	return s.withRetry(ctx, key, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: request %s already exists", domain.ErrValidation, req.ID)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, doc, 0)
			pipe.ZAdd(ctx, redisAllKey, redis.Z{Score: score, Member: req.ID})
			pipe.ZAdd(ctx, redisStatusKey(req.Status), redis.Z{Score: score, Member: req.ID})
			return nil
		})
		return err
	})
}

func (s *RedisStore) GetByID(ctx context.Context, id string) (*domain.GenerationRequest, error) {
	raw, err := s.client.Get(ctx, redisRequestKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get request: %w", err)
	}
	var req domain.GenerationRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	return &req, nil
}

func (s *RedisStore) Update(ctx context.Context, id string, update domain.RequestUpdate) (*domain.GenerationRequest, error) {
	key := redisRequestKey(id)
	var out domain.GenerationRequest

	err := s.withRetry(ctx, key, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return domain.ErrNotFound
			}
			return err
		}
		var current domain.GenerationRequest
		if err := json.Unmarshal(raw, &current); err != nil {
			return fmt.Errorf("decode request: %w", err)
		}
		previous := current.Status
		update.Apply(&current)
		if err := current.Validate(); err != nil {
			return err
		}
		doc, err := json.Marshal(current)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, doc, 0)
			if previous != current.Status {
				pipe.ZRem(ctx, redisStatusKey(previous), id)
				pipe.ZAdd(ctx, redisStatusKey(current.Status), redis.Z{
					Score:  float64(current.CreatedAt.UnixMicro()),
					Member: id,
				})
			}
			return nil
		})
		if err != nil {
			return err
		}
		out = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListByStatus returns matching requests oldest first. An empty status lists all.
func (s *RedisStore) ListByStatus(ctx context.Context, status domain.Status) ([]domain.GenerationRequest, error) {
	index := redisAllKey
	if status != "" {
		index = redisStatusKey(status)
	}
	ids, err := s.client.ZRange(ctx, index, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list request ids: %w", err)
	}
	out := make([]domain.GenerationRequest, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = redisRequestKey(id)
	}
	docs, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load requests: %w", err)
	}
	for _, doc := range docs {
		raw, ok := doc.(string)
		if !ok {
			continue
		}
		var req domain.GenerationRequest
		if err := json.Unmarshal([]byte(raw), &req); err != nil {
			return nil, fmt.Errorf("decode request: %w", err)
		}
		if status != "" && req.Status != status {
			continue
		}
		out = append(out, req)
	}
	return out, nil
}

func (s *RedisStore) withRetry(ctx context.Context, key string, fn func(tx *redis.Tx) error) error {
	for attempt := 0; attempt < redisMaxTxRetries; attempt++ {
		err := s.client.Watch(ctx, fn, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("redis: too much contention on %s", key)
}

var _ domain.RequestStore = (*RedisStore)(nil)
