package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"

	"github.com/isey69/sale-forces-crm-sub000/internal/domain"
)

const idempotencyKeyPrefix = "crm:idem:"

// MemcachedIdempotencyStore shares replay records between server instances.
type MemcachedIdempotencyStore struct {
	client *memcache.Client
}

func NewMemcachedIdempotencyStore(client *memcache.Client) *MemcachedIdempotencyStore {
	return &MemcachedIdempotencyStore{client: client}
}

// Reserve claims key for a new request. When the key is already taken the
// stored record is returned and reserved is false.
func (s *MemcachedIdempotencyStore) Reserve(ctx context.Context, key string, fingerprint uint64, ttl time.Duration) (domain.IdempotencyRecord, bool, error) {
	pending := domain.IdempotencyRecord{Fingerprint: fingerprint}
	value, err := json.Marshal(pending)
	if err != nil {
		return domain.IdempotencyRecord{}, false, err
	}

	err = s.client.Add(&memcache.Item{
		Key:        idempotencyKeyPrefix + key,
		Value:      value,
		Expiration: expiration(ttl),
	})
	if err == nil {
		return pending, true, nil
	}
	if !errors.Is(err, memcache.ErrNotStored) {
		return domain.IdempotencyRecord{}, false, errors.Wrap(err, "reserve idempotency key")
	}

	item, err := s.client.Get(idempotencyKeyPrefix + key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		// expired between Add and Get
		return s.Reserve(ctx, key, fingerprint, ttl)
	}
	if err != nil {
		return domain.IdempotencyRecord{}, false, errors.Wrap(err, "load idempotency record")
	}

	var existing domain.IdempotencyRecord
	if err := json.Unmarshal(item.Value, &existing); err != nil {
		return domain.IdempotencyRecord{}, false, errors.Wrap(err, "decode idempotency record")
	}
	return existing, false, nil
}

func (s *MemcachedIdempotencyStore) Complete(ctx context.Context, key string, record domain.IdempotencyRecord, ttl time.Duration) error {
	value, err := json.Marshal(record)
	if err != nil {
		return err
	}
	err = s.client.Set(&memcache.Item{
		Key:        idempotencyKeyPrefix + key,
		Value:      value,
		Expiration: expiration(ttl),
	})
	return errors.Wrap(err, "store idempotency record")
}

func (s *MemcachedIdempotencyStore) Release(ctx context.Context, key string) error {
	err := s.client.Delete(idempotencyKeyPrefix + key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil
	}
	return errors.Wrap(err, "release idempotency key")
}

func expiration(ttl time.Duration) int32 {
	secs := int32(ttl / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// CacheIdempotencyStore keeps replay records in process. It is only correct
// for a single server instance.
type CacheIdempotencyStore struct {
	cache *cache.Cache
}

func NewCacheIdempotencyStore(defaultTTL time.Duration) *CacheIdempotencyStore {
	return &CacheIdempotencyStore{
		cache: cache.New(defaultTTL, 2*defaultTTL),
	}
}

func (s *CacheIdempotencyStore) Reserve(ctx context.Context, key string, fingerprint uint64, ttl time.Duration) (domain.IdempotencyRecord, bool, error) {
	pending := domain.IdempotencyRecord{Fingerprint: fingerprint}
	for {
		if err := s.cache.Add(key, pending, ttl); err == nil {
			return pending, true, nil
		}
		if cached, found := s.cache.Get(key); found {
			return cached.(domain.IdempotencyRecord), false, nil
		}
	}
}

func (s *CacheIdempotencyStore) Complete(ctx context.Context, key string, record domain.IdempotencyRecord, ttl time.Duration) error {
	s.cache.Set(key, record, ttl)
	return nil
}

func (s *CacheIdempotencyStore) Release(ctx context.Context, key string) error {
	s.cache.Delete(key)
	return nil
}
