package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/fntranslate/livetranslate/internal/errors"
)

const redisPrefix = "lt:tc:"

// RedisStore keeps each entry in a hash under lt:tc:<xxhash>. Expiry replaces pruning.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// OpenRedis connects with a redis:// URL and verifies the connection.
func OpenRedis(ctx context.Context, url string, ttl time.Duration) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ConfigInvalid, "parse redis url")
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, apperrors.Wrap(err, apperrors.Unavailable, "connect to redis")
	}
	return NewRedisStore(client, ttl), nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Get reads one entry. A digest collision shows up as a text mismatch and is treated as a miss.
func (s *RedisStore) Get(ctx context.Context, k Key) (Entry, bool, error) {
	res, err := s.client.HGetAll(ctx, redisPrefix+k.Hash()).Result()
	if err != nil {
		return Entry{}, false, apperrors.Wrap(err, apperrors.CacheFailed, "redis hgetall")
	}
	if len(res) == 0 || res["text"] != k.Text {
		return Entry{}, false, nil
	}
	created, _ := strconv.ParseInt(res["created_at"], 10, 64)
	return Entry{
		Key:         k,
		SourceText:  res["source_text"],
		Translation: res["translation"],
		CreatedAt:   time.Unix(created, 0),
	}, true, nil
}

// PutBatch writes entries in one pipeline. HSETNX on the text field keeps the first writer.
func (s *RedisStore) PutBatch(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	// Existence is checked first so a later put cannot overwrite an earlier translation.
	exists := make([]*redis.IntCmd, len(entries))
	pipe := s.client.Pipeline()
	for i, e := range entries {
		exists[i] = pipe.Exists(ctx, redisPrefix+e.Hash())
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.Wrap(err, apperrors.CacheFailed, "redis exists")
	}

	pipe = s.client.TxPipeline()
	queued := 0
	for i, e := range entries {
		if exists[i].Val() > 0 {
			continue
		}
		created := e.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		key := redisPrefix + e.Hash()
		pipe.HSet(ctx, key, map[string]any{
			"text":        e.Text,
			"source":      e.Source,
			"target":      e.Target,
			"source_text": e.SourceText,
			"translation": e.Translation,
			"created_at":  strconv.FormatInt(created.Unix(), 10),
		})
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		queued++
	}
	if queued == 0 {
		return nil
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.Wrap(err, apperrors.CacheFailed, "redis write batch")
	}
	return nil
}

// Prune is a no-op; entries expire through their TTL.
func (s *RedisStore) Prune(context.Context, time.Time) (int64, error) {
	return 0, nil
}

// Count scans the key prefix.
func (s *RedisStore) Count(ctx context.Context) (int64, error) {
	var n int64
	iter := s.client.Scan(ctx, 0, redisPrefix+"*", 500).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		return 0, apperrors.Wrap(err, apperrors.CacheFailed, "redis scan")
	}
	return n, nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
