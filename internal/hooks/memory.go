package hooks

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

type entry struct {
	url     string
	expires time.Time
}

type MemoryStore struct {
	entries *xsync.MapOf[string, entry]
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: xsync.NewMapOf[string, entry](),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemoryStore) Register(_ context.Context, executionID, callbackURL string) error {
	s.entries.Store(executionID, entry{url: callbackURL, expires: s.now().Add(s.ttl)})
	return nil
}

func (s *MemoryStore) Contains(_ context.Context, executionID string) (bool, error) {
	_, ok := s.lookup(executionID)
	return ok, nil
}

func (s *MemoryStore) Get(_ context.Context, executionID string) (string, error) {
	e, ok := s.lookup(executionID)
	if !ok {
		return "", notFound(executionID)
	}
	return e.url, nil
}

func (s *MemoryStore) Remove(_ context.Context, executionID string) error {
	s.entries.Delete(executionID)
	return nil
}

// Purge drops expired registrations and returns how many were removed.
func (s *MemoryStore) Purge() int {
	now := s.now()
	removed := 0
	s.entries.Range(func(id string, e entry) bool {
		if s.ttl > 0 && now.After(e.expires) {
			s.entries.Delete(id)
			removed++
		}
		return true
	})
	return removed
}

func (s *MemoryStore) Len() int {
	return s.entries.Size()
}

func (s *MemoryStore) lookup(executionID string) (entry, bool) {
	e, ok := s.entries.Load(executionID)
	if !ok {
		return entry{}, false
	}
	if s.ttl > 0 && s.now().After(e.expires) {
		s.entries.Delete(executionID)
		return entry{}, false
	}
	return e, true
}
