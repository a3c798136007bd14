package store

import (
	"sort"
	"sync"

	"github.com/efreitasn/marketlab/internal/domain"
)

// WebhookStore is a thread-safe in-memory store for class webhooks.
// Primary index: webhook_id → webhook.
// Secondary index: class_id → event → webhook.
type WebhookStore struct {
	mu       sync.RWMutex
	webhooks map[string]*domain.Webhook            // webhook_id → webhook
	byClass  map[string]map[string]*domain.Webhook // class_id → event → webhook
}

// NewWebhookStore creates an empty WebhookStore.
func NewWebhookStore() *WebhookStore {
	return &WebhookStore{
		webhooks: make(map[string]*domain.Webhook),
		byClass:  make(map[string]map[string]*domain.Webhook),
	}
}

// Upsert inserts or updates a subscription keyed by (class_id, event). An
// existing subscription keeps its webhook_id and only takes the new URL. It
// returns the stored webhook and true if a new subscription was created.
func (s *WebhookStore) Upsert(w domain.Webhook) (domain.Webhook, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byClass[w.ClassID][w.Event]; ok {
		if existing.URL != w.URL {
			existing.URL = w.URL
			existing.UpdatedAt = w.UpdatedAt
		}
		return *existing, false
	}

	stored := w
	s.webhooks[w.WebhookID] = &stored
	if s.byClass[w.ClassID] == nil {
		s.byClass[w.ClassID] = make(map[string]*domain.Webhook)
	}
	s.byClass[w.ClassID][w.Event] = &stored
	return stored, true
}

// Get retrieves a webhook by ID. It returns domain.ErrWebhookNotFound if the
// webhook does not exist.
func (s *WebhookStore) Get(id string) (domain.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.webhooks[id]
	if !ok {
		return domain.Webhook{}, domain.ErrWebhookNotFound
	}
	return *w, nil
}

// ListByClass returns every webhook of a class ordered by event.
// Returns an empty slice if the class has no subscriptions.
func (s *WebhookStore) ListByClass(classID string) []domain.Webhook {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.byClass[classID]
	result := make([]domain.Webhook, 0, len(events))
	for _, w := range events {
		result = append(result, *w)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Event < result[j].Event
	})
	return result
}

// Delete removes a webhook of a class. It returns domain.ErrWebhookNotFound
// if no such webhook belongs to the class.
func (s *WebhookStore) Delete(classID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.webhooks[id]
	if !ok || w.ClassID != classID {
		return domain.ErrWebhookNotFound
	}

	delete(s.webhooks, id)
	if events, ok := s.byClass[w.ClassID]; ok {
		delete(events, w.Event)
		if len(events) == 0 {
			delete(s.byClass, w.ClassID)
		}
	}
	return nil
}

// GetByClassEvent returns the webhook for a class+event pair.
func (s *WebhookStore) GetByClassEvent(classID, event string) (domain.Webhook, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.byClass[classID][event]
	if !ok {
		return domain.Webhook{}, false
	}
	return *w, true
}
