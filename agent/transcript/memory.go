package transcript

import (
	"context"
	"sync"
	"time"

	contractx "github.com/tanpawarit/Chative-Finance-Assistant/agent/contract"
)

type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]contractx.TranscriptEntry
	now     func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string][]contractx.TranscriptEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Append(_ context.Context, entry contractx.TranscriptEntry) (contractx.TranscriptEntry, error) {
	entry, err := prepare(entry, s.now)
	if err != nil {
		return contractx.TranscriptEntry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.ConversationID] = append(s.entries[entry.ConversationID], entry)
	return entry, nil
}

func (s *MemoryStore) List(_ context.Context, conversationID string, limit int) ([]contractx.TranscriptEntry, error) {
	key, err := conversationKey(conversationID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return tail(s.entries[key], limit), nil
}

func (s *MemoryStore) Close() error {
	return nil
}
