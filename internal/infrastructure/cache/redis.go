package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"letterbox/internal/application"
	"letterbox/internal/domain"

	"github.com/redis/go-redis/v9"
)

const (
	letterCacheVersionKey = "letterbox:letters:version"
	letterCacheKeyPrefix  = "letterbox:letters:v"
	defaultCacheTTL       = time.Hour
)

type Config struct {
	Addr string
	TTL  time.Duration
}

// CachedStore serves inbox queries from redis. Any write bumps a version
// counter so stale pages are never read.
type CachedStore struct {
	application.InboxStore
	cache *redis.Client
	ttl   time.Duration
}

// NewCachedStore passes every call straight to base when Addr is empty.
func NewCachedStore(base application.InboxStore, cfg Config) (*CachedStore, error) {
	if base == nil {
		return nil, errors.New("base store is required")
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		return &CachedStore{InboxStore: base}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return newCachedStore(base, client, cfg.TTL), nil
}

func newCachedStore(base application.InboxStore, client *redis.Client, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &CachedStore{InboxStore: base, cache: client, ttl: ttl}
}

func (s *CachedStore) Close() error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Close()
}

func (s *CachedStore) StoreLetters(ctx context.Context, recipient string, letters []domain.Letter) (int, error) {
	stored, err := s.InboxStore.StoreLetters(ctx, recipient, letters)
	if err != nil {
		return stored, err
	}
	if stored > 0 {
		s.invalidate(ctx)
	}
	return stored, nil
}

func (s *CachedStore) QueryLetters(ctx context.Context, filter application.LetterQueryFilter) ([]domain.StoredLetter, error) {
	if s.cache == nil {
		return s.InboxStore.QueryLetters(ctx, filter)
	}
	version, ok := s.cacheVersion(ctx)
	if !ok {
		return s.InboxStore.QueryLetters(ctx, filter)
	}
	key := letterCacheKey(version, filter)
	if cached, err := s.cache.Get(ctx, key).Result(); err == nil {
		var letters []domain.StoredLetter
		if err := json.Unmarshal([]byte(cached), &letters); err == nil {
			return letters, nil
		}
	}

	letters, err := s.InboxStore.QueryLetters(ctx, filter)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(letters)
	if err != nil {
		return letters, nil
	}
	_ = s.cache.Set(ctx, key, payload, s.ttl).Err()
	return letters, nil
}

func (s *CachedStore) Ping(ctx context.Context) error {
	if err := s.InboxStore.Ping(ctx); err != nil {
		return err
	}
	if s.cache == nil {
		return nil
	}
	return s.cache.Ping(ctx).Err()
}

func (s *CachedStore) cacheVersion(ctx context.Context) (string, bool) {
	version, err := s.cache.Get(ctx, letterCacheVersionKey).Result()
	if err == nil {
		return version, true
	}
	if errors.Is(err, redis.Nil) {
		return "0", true
	}
	return "", false
}

func (s *CachedStore) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Incr(ctx, letterCacheVersionKey).Err()
}

func letterCacheKey(version string, filter application.LetterQueryFilter) string {
	var b strings.Builder
	b.Grow(160)
	b.WriteString(letterCacheKeyPrefix)
	b.WriteString(version)
	b.WriteString(":to=")
	b.WriteString(strings.ToLower(filter.Recipient))
	b.WriteString(":from=")
	if filter.FromBlock != nil {
		b.WriteString(strconv.FormatUint(*filter.FromBlock, 10))
	} else {
		b.WriteString("any")
	}
	b.WriteString(":until=")
	if filter.ToBlock != nil {
		b.WriteString(strconv.FormatUint(*filter.ToBlock, 10))
	} else {
		b.WriteString("any")
	}
	b.WriteString(":limit=")
	b.WriteString(strconv.Itoa(application.NormalizeLetterLimit(filter.Limit)))
	return b.String()
}
