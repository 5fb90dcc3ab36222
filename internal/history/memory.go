package history

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps history in process. It is used when no database is
// configured.
type MemoryStore struct {
	mu      sync.RWMutex
	limit   int
	entries []Entry
	now     func() time.Time
}

func NewMemoryStore(limit int) *MemoryStore {
	return &MemoryStore{limit: normalizeLimit(limit), now: time.Now}
}

func (s *MemoryStore) Add(ctx context.Context, entry Entry) (Entry, error) {
	entry = prepare(entry, s.now)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append([]Entry{entry}, s.entries...)
	if len(s.entries) > s.limit {
		s.entries = s.entries[:s.limit]
	}
	return entry, nil
}

func (s *MemoryStore) List(ctx context.Context) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, len(s.entries))
	for i, e := range s.entries {
		out[i] = copyEntry(e)
	}
	return out, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Entry, error) {
	id = strings.TrimSpace(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.ID == id {
			return copyEntry(e), nil
		}
	}
	return Entry{}, ErrNotFound
}

func (s *MemoryStore) Remove(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.entries {
		if e.ID == id {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.entries = nil
	s.mu.Unlock()
	return nil
}

func prepare(entry Entry, now func() time.Time) Entry {
	if strings.TrimSpace(entry.ID) == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now().UTC()
	}
	if entry.ImageURLs == nil {
		entry.ImageURLs = []string{}
	}
	return copyEntry(entry)
}

func copyEntry(e Entry) Entry {
	e.ImageURLs = append([]string(nil), e.ImageURLs...)
	return e
}

var _ Store = (*MemoryStore)(nil)
