package store

import (
	"context"
	"sort"
	"sync"

	"github.com/efreitasn/marketlab/internal/domain"
)

// MemoryStore is a thread-safe in-memory store for classes and their
// settlement history. Updates of one class are serialised; different classes
// proceed independently.
type MemoryStore struct {
	mu      sync.RWMutex
	classes map[string]*classEntry // class_id → entry
}

type classEntry struct {
	mu      sync.Mutex
	class   *domain.Class
	history []domain.HistoryRecord
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		classes: make(map[string]*classEntry),
	}
}

// EnsureClass creates the class in round 1 with the given unit value unless it
// already exists.
func (s *MemoryStore) EnsureClass(_ context.Context, classID string, unitValue int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.classes[classID]; !ok {
		s.classes[classID] = &classEntry{class: domain.NewClass(classID, unitValue)}
	}
	return nil
}

func (s *MemoryStore) entry(classID string) (*classEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.classes[classID]
	if !ok {
		return nil, domain.ErrClassNotFound
	}
	return e, nil
}

// Update runs fn on a deep copy of the class and commits the copy, together
// with its pending history, only if fn returns nil.
func (s *MemoryStore) Update(_ context.Context, classID string, fn func(*domain.Class) error) error {
	e, err := s.entry(classID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	working := e.class.Clone()
	if err := fn(working); err != nil {
		return err
	}

	if working.HistoryWiped {
		e.history = nil
	}
	e.history = append(e.history, working.PendingHistory...)
	working.PendingHistory = nil
	working.HistoryWiped = false
	e.class = working
	return nil
}

// Load returns a snapshot of the class.
func (s *MemoryStore) Load(_ context.Context, classID string) (*domain.Class, error) {
	e, err := s.entry(classID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.class.Clone(), nil
}

// History returns the settlement records of a class ordered by round, then
// participant id.
func (s *MemoryStore) History(_ context.Context, classID string) ([]domain.HistoryRecord, error) {
	e, err := s.entry(classID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	out := make([]domain.HistoryRecord, len(e.history))
	for i, r := range e.history {
		r.Valuations = append([]int64(nil), r.Valuations...)
		out[i] = r
	}
	e.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Round != out[j].Round {
			return out[i].Round < out[j].Round
		}
		return out[i].ParticipantID < out[j].ParticipantID
	})
	return out, nil
}
