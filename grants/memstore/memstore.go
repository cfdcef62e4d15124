// Package memstore is the in-memory reference implementation of the grant
// envelope store, backed by patrickmn/go-cache. The cache janitor reclaims
// expired entries in the background; correctness never depends on it because
// every read re-checks expiration against the store's clock.
package memstore

import (
	"sync"
	"time"

	"github.com/idpkit/idpkit/grants"
	gocache "github.com/patrickmn/go-cache"
)

const janitorInterval = 5 * time.Minute

var _ grants.Store = (*Store)(nil)

type Store struct {
	// mu serializes read-modify-write sequences (Take, Consume) that span
	// more than one cache operation.
	mu    sync.Mutex
	cache *gocache.Cache
	now   func() time.Time
}

type Option func(*Store)

// WithNowFunc overrides the expiry clock (primarily for testing).
func WithNowFunc(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func New(options ...Option) *Store {
	s := &Store{
		cache: gocache.New(gocache.NoExpiration, janitorInterval),
		now:   time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *Store) Create(grant *grants.PersistedGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ttl := grant.Expiration.Sub(s.now())
	if ttl <= 0 {
		return nil // already expired, nothing observable to store
	}
	cloned := *grant
	if err := s.cache.Add(grant.Key, &cloned, ttl); err != nil {
		return grants.ErrConflict
	}
	return nil
}

func (s *Store) Get(key string) (*grants.PersistedGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(key)
}

func (s *Store) Take(key, grantType string) (*grants.PersistedGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	grant, err := s.getLocked(key)
	if err != nil {
		return nil, err
	}
	if grantType != "" && grant.Type != grantType {
		return nil, grants.ErrNotFound
	}
	s.cache.Delete(key)
	return grant, nil
}

func (s *Store) Consume(key, grantType string) (*grants.PersistedGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	grant, err := s.getLocked(key)
	if err != nil {
		return nil, err
	}
	if grantType != "" && grant.Type != grantType {
		return nil, grants.ErrNotFound
	}
	if grant.ConsumedTime != nil {
		return nil, grants.ErrAlreadyConsumed
	}

	prior := *grant
	consumedAt := s.now()
	updated := *grant
	updated.ConsumedTime = &consumedAt
	s.cache.Set(key, &updated, updated.Expiration.Sub(consumedAt))
	return &prior, nil
}

func (s *Store) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Delete(key)
	return nil
}

func (s *Store) RemoveAll(filter grants.Filter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, item := range s.cache.Items() {
		grant, ok := item.Object.(*grants.PersistedGrant)
		if !ok {
			continue
		}
		if filter.Matches(grant) {
			s.cache.Delete(key)
		}
	}
	return nil
}

// getLocked applies the read-time expiry filter. The cache may still hold an
// entry the janitor has not swept, or one written under a test clock.
func (s *Store) getLocked(key string) (*grants.PersistedGrant, error) {
	v, ok := s.cache.Get(key)
	if !ok {
		return nil, grants.ErrNotFound
	}
	grant, ok := v.(*grants.PersistedGrant)
	if !ok {
		return nil, grants.ErrNotFound
	}
	if !s.now().Before(grant.Expiration) {
		s.cache.Delete(key)
		return nil, grants.ErrNotFound
	}
	cloned := *grant
	return &cloned, nil
}
