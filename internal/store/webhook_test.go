package store

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/efreitasn/marketlab/internal/domain"
)

func newTestWebhook(id, classID, event, url string) domain.Webhook {
	now := time.Now()
	return domain.Webhook{
		WebhookID: id,
		ClassID:   classID,
		Event:     event,
		URL:       url,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestWebhookStore_Upsert_NewSubscription(t *testing.T) {
	s := NewWebhookStore()

	got, created := s.Upsert(newTestWebhook("wh-1", "class-1", domain.EventRoundCleared, "https://example.com/hook"))
	if !created {
		t.Fatal("expected Upsert to report a new subscription")
	}
	if got.WebhookID != "wh-1" {
		t.Fatalf("expected webhook ID wh-1, got %s", got.WebhookID)
	}

	stored, err := s.Get("wh-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.URL != "https://example.com/hook" {
		t.Fatalf("unexpected URL %s", stored.URL)
	}
}

func TestWebhookStore_Upsert_UpdateURL(t *testing.T) {
	s := NewWebhookStore()
	s.Upsert(newTestWebhook("wh-1", "class-1", domain.EventRoundCleared, "https://example.com/old"))

	w2 := newTestWebhook("wh-2", "class-1", domain.EventRoundCleared, "https://example.com/new")
	w2.UpdatedAt = time.Now().Add(time.Second)
	got, created := s.Upsert(w2)
	if created {
		t.Fatal("expected Upsert to update the existing subscription")
	}
	if got.WebhookID != "wh-1" {
		t.Fatalf("expected stable webhook ID wh-1, got %s", got.WebhookID)
	}
	if got.URL != "https://example.com/new" {
		t.Fatalf("expected URL to be updated, got %s", got.URL)
	}

	if _, err := s.Get("wh-2"); !errors.Is(err, domain.ErrWebhookNotFound) {
		t.Fatalf("expected ErrWebhookNotFound for wh-2, got %v", err)
	}
}

func TestWebhookStore_ListByClass(t *testing.T) {
	s := NewWebhookStore()
	s.Upsert(newTestWebhook("wh-1", "class-1", domain.EventRoundOpened, "https://example.com/a"))
	s.Upsert(newTestWebhook("wh-2", "class-1", domain.EventRoundCleared, "https://example.com/b"))
	s.Upsert(newTestWebhook("wh-3", "class-2", domain.EventRoundCleared, "https://example.com/c"))

	list := s.ListByClass("class-1")
	if len(list) != 2 {
		t.Fatalf("expected 2 webhooks, got %d", len(list))
	}
	if list[0].Event != domain.EventRoundCleared || list[1].Event != domain.EventRoundOpened {
		t.Fatalf("expected webhooks ordered by event, got %s, %s", list[0].Event, list[1].Event)
	}

	empty := s.ListByClass("class-3")
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected non-nil empty slice, got %v", empty)
	}
}

func TestWebhookStore_Delete(t *testing.T) {
	s := NewWebhookStore()
	s.Upsert(newTestWebhook("wh-1", "class-1", domain.EventRoundCleared, "https://example.com/hook"))

	if err := s.Delete("class-1", "wh-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.Get("wh-1"); !errors.Is(err, domain.ErrWebhookNotFound) {
		t.Fatalf("expected ErrWebhookNotFound after delete, got %v", err)
	}
	if _, ok := s.GetByClassEvent("class-1", domain.EventRoundCleared); ok {
		t.Fatal("expected secondary index to be cleaned up")
	}
}

func TestWebhookStore_Delete_WrongClass(t *testing.T) {
	s := NewWebhookStore()
	s.Upsert(newTestWebhook("wh-1", "class-1", domain.EventRoundCleared, "https://example.com/hook"))

	if err := s.Delete("class-2", "wh-1"); !errors.Is(err, domain.ErrWebhookNotFound) {
		t.Fatalf("expected ErrWebhookNotFound, got %v", err)
	}
	if _, err := s.Get("wh-1"); err != nil {
		t.Fatalf("webhook should survive a foreign delete: %v", err)
	}
}

func TestWebhookStore_ConcurrentAccess(t *testing.T) {
	s := NewWebhookStore()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Upsert(newTestWebhook(
				fmt.Sprintf("wh-%d", i),
				fmt.Sprintf("class-%d", i%10),
				domain.EventRoundCleared,
				fmt.Sprintf("https://example.com/hook/%d", i),
			))
		}(i)
	}
	wg.Wait()

	for i := 0; i < 10; i++ {
		if got := s.ListByClass(fmt.Sprintf("class-%d", i)); len(got) != 1 {
			t.Fatalf("class-%d: expected 1 webhook, got %d", i, len(got))
		}
	}

	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			s.ListByClass(fmt.Sprintf("class-%d", i%10))
		}(i)
		go func(i int) {
			defer wg.Done()
			s.Get(fmt.Sprintf("wh-%d", i))
		}(i)
	}
	wg.Wait()
}
