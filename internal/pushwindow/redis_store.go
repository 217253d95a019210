package pushwindow

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maine/trendradar/internal/news"
)

const (
	defaultKeyPrefix = "trendradar:push:"
	// recordTTL keeps a day's set long enough to cover any timezone offset.
	recordTTL = 48 * time.Hour
)

// RedisRecordStore keeps one set of pushed kinds per day.
type RedisRecordStore struct {
	client redis.Cmdable
	prefix string
}

// NewRedisRecordStore creates a store on client. An empty prefix uses the default.
func NewRedisRecordStore(client redis.Cmdable, prefix string) *RedisRecordStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisRecordStore{client: client, prefix: prefix}
}

func (s *RedisRecordStore) key(date string) string {
	return s.prefix + date
}

// Load reads the record of date.
func (s *RedisRecordStore) Load(ctx context.Context, date string) (news.PushRecord, error) {
	members, err := s.client.SMembers(ctx, s.key(date)).Result()
	if err != nil {
		return news.PushRecord{}, fmt.Errorf("redis smembers: %w", err)
	}
	sort.Strings(members)

	rec := news.PushRecord{Date: date}
	for _, m := range members {
		rec.Kinds = append(rec.Kinds, news.ReportKind(m))
	}
	return rec, nil
}

// Append adds kind to the record of date and refreshes its TTL.
func (s *RedisRecordStore) Append(ctx context.Context, date string, kind news.ReportKind) error {
	key := s.key(date)
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, key, string(kind))
	pipe.Expire(ctx, key, recordTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis record push: %w", err)
	}
	return nil
}
