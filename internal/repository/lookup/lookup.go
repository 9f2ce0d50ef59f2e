package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jgivc/dlmanager/internal/common"
	"github.com/jgivc/dlmanager/internal/entity"
	"github.com/redis/go-redis/v9"
)

const (
	KeyLookup    = "lk" // STRING. lk:{md5} -> JSON of entity.LookupResult, expires after the configured TTL.
	KeySeparator = ":"

	ScanCount = 1000
)

type lookupRepository struct {
	cl  *redis.Client
	ttl time.Duration
	log *slog.Logger
}

func NewLookupRepository(cl *redis.Client, ttl time.Duration, log *slog.Logger) *lookupRepository {
	return &lookupRepository{
		cl:  cl,
		ttl: ttl,
		log: log.With(slog.String("item", "LookupRepository")),
	}
}

// Get returns common.ErrNotCached when the hash has no stored result.
func (r *lookupRepository) Get(ctx context.Context, md5 string) (*entity.LookupResult, error) {
	data, err := r.cl.Get(ctx, getKey(KeyLookup, normalize(md5))).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, common.ErrNotCached
		}

		return nil, fmt.Errorf("cannot get lookup %s: %w", md5, err)
	}

	var res entity.LookupResult
	if err := json.Unmarshal(data, &res); err != nil {
		r.log.Warn("Cannot decode cached lookup, ignoring", slog.String("md5", md5), slog.Any("error", err))

		return nil, common.ErrNotCached
	}

	return &res, nil
}

func (r *lookupRepository) Save(ctx context.Context, md5 string, res *entity.LookupResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("cannot encode lookup %s: %w", md5, err)
	}

	if err := r.cl.Set(ctx, getKey(KeyLookup, normalize(md5)), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("cannot save lookup %s: %w", md5, err)
	}

	return nil
}

// Clear drops every cached lookup and returns the number of removed keys.
func (r *lookupRepository) Clear(ctx context.Context) (int64, error) {
	pattern := getKey(KeyLookup, "*")

	var (
		cursor       uint64
		deletedCount int64
	)

	for {
		keys, nextCursor, err := r.cl.Scan(ctx, cursor, pattern, ScanCount).Result()
		if err != nil {
			return deletedCount, fmt.Errorf("error scanning keys: %w", err)
		}

		if len(keys) > 0 {
			count, err := r.cl.Del(ctx, keys...).Result()
			if err != nil {
				return deletedCount, fmt.Errorf("error deleting keys: %w", err)
			}
			deletedCount += count
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	r.log.Info("Clear keys", slog.String("pattern", pattern), slog.Int64("key_count", deletedCount))

	return deletedCount, nil
}

func (r *lookupRepository) Ping(ctx context.Context) error {
	if err := r.cl.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("cannot ping redis: %w", err)
	}

	return nil
}

func normalize(md5 string) string {
	return strings.ToLower(strings.TrimSpace(md5))
}

func getKey(keys ...string) string {
	return strings.Join(keys, KeySeparator)
}
