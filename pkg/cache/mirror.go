package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Sternrassler/storefront-gateway/pkg/catalog"
)

// DefaultMirrorPrefix namespaces mirrored keys in Redis.
const DefaultMirrorPrefix = "storefront"

var (
	// ErrCacheMiss indicates the requested key was not found in the mirror
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates a mirrored entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Mirror persists store entries to Redis so a restarted gateway can warm
// its in-memory store. The in-memory store stays authoritative; the mirror
// is only written behind and read at startup.
type Mirror struct {
	redis  *redis.Client
	prefix string
}

// NewMirror creates a mirror on top of a Redis client.
func NewMirror(redisClient *redis.Client, prefix string) *Mirror {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if prefix == "" {
		prefix = DefaultMirrorPrefix
	}
	return &Mirror{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (m *Mirror) redisKey(resource catalog.Resource, key string) string {
	return m.prefix + ":" + string(resource) + ":" + key
}

// parseKey splits a mirrored Redis key back into resource and cache key.
func (m *Mirror) parseKey(redisKey string) (catalog.Resource, string, bool) {
	rest, ok := strings.CutPrefix(redisKey, m.prefix+":")
	if !ok {
		return "", "", false
	}
	name, key, ok := strings.Cut(rest, ":")
	if !ok {
		return "", "", false
	}
	resource, err := catalog.ParseResource(name)
	if err != nil {
		return "", "", false
	}
	return resource, key, true
}

// Save writes an entry with a TTL of whatever remains of hardTTL.
// Entries already past hardTTL are not written.
func (m *Mirror) Save(ctx context.Context, resource catalog.Resource, entry *Entry, hardTTL time.Duration) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	ttl := hardTTL - entry.Age(time.Now())
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		MirrorErrors.WithLabelValues("save").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := m.redis.Set(ctx, m.redisKey(resource, entry.Key), data, ttl).Err(); err != nil {
		MirrorErrors.WithLabelValues("save").Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Load reads one mirrored entry. Returns ErrCacheMiss if absent.
func (m *Mirror) Load(ctx context.Context, resource catalog.Resource, key string) (*Entry, error) {
	data, err := m.redis.Get(ctx, m.redisKey(resource, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		MirrorErrors.WithLabelValues("load").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		MirrorErrors.WithLabelValues("load").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	if len(entry.Items) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidEntry)
	}
	return &entry, nil
}

// Warm loads every mirrored entry into store and returns how many were
// stored. Corrupted entries are skipped.
func (m *Mirror) Warm(ctx context.Context, store *Store) (int, error) {
	loaded := 0
	iter := m.redis.Scan(ctx, 0, m.prefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		resource, key, ok := m.parseKey(iter.Val())
		if !ok {
			continue
		}
		entry, err := m.Load(ctx, resource, key)
		if err != nil {
			if errors.Is(err, ErrCacheMiss) || errors.Is(err, ErrInvalidEntry) {
				continue
			}
			return loaded, err
		}
		if store.Put(resource, entry) {
			loaded++
		}
	}
	if err := iter.Err(); err != nil {
		MirrorErrors.WithLabelValues("warm").Inc()
		return loaded, fmt.Errorf("redis scan: %w", err)
	}
	return loaded, nil
}

// Reset deletes every mirrored entry.
func (m *Mirror) Reset(ctx context.Context) error {
	iter := m.redis.Scan(ctx, 0, m.prefix+":*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		MirrorErrors.WithLabelValues("reset").Inc()
		return fmt.Errorf("redis scan: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := m.redis.Del(ctx, keys...).Err(); err != nil {
		MirrorErrors.WithLabelValues("reset").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
