package service

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/efreitasn/marketlab/internal/domain"
	"github.com/efreitasn/marketlab/internal/metrics"
	"github.com/efreitasn/marketlab/internal/store"
)

// Valid webhook event types.
var validWebhookEvents = map[string]bool{
	domain.EventRoundCleared:    true,
	domain.EventRoundConfirmed:  true,
	domain.EventRoundOpened:     true,
	domain.EventExperimentReset: true,
}

// UpsertWebhookRequest represents the input for webhook registration.
type UpsertWebhookRequest struct {
	ClassID string
	URL     string
	Events  []string
}

// WebhookService handles webhook CRUD and lifecycle event dispatch.
type WebhookService struct {
	store   *store.WebhookStore
	client  *http.Client
	metrics *metrics.Metrics
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewWebhookService creates a new WebhookService with the given dependencies.
func NewWebhookService(
	webhookStore *store.WebhookStore,
	webhookTimeout time.Duration,
	m *metrics.Metrics,
	logger *slog.Logger,
) *WebhookService {
	if m == nil {
		m = metrics.NopMetrics()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookService{
		store: webhookStore,
		client: &http.Client{
			Timeout: webhookTimeout,
		},
		metrics: m,
		logger:  logger,
	}
}

// Upsert validates the request and creates or updates webhook subscriptions.
// Returns the resulting webhooks, whether any new subscriptions were created, and any error.
func (s *WebhookService) Upsert(req UpsertWebhookRequest) ([]domain.Webhook, bool, error) {
	if err := validateClassID(req.ClassID); err != nil {
		return nil, false, err
	}

	if req.URL == "" {
		return nil, false, &domain.ValidationError{Message: "url is required"}
	}
	if len(req.URL) > 2048 {
		return nil, false, &domain.ValidationError{Message: "url must be at most 2048 characters"}
	}
	parsed, err := url.ParseRequestURI(req.URL)
	if err != nil || !parsed.IsAbs() {
		return nil, false, &domain.ValidationError{Message: "url must be a valid absolute URL"}
	}
	if parsed.Scheme != "https" {
		return nil, false, &domain.ValidationError{Message: "url must use https scheme"}
	}

	if len(req.Events) == 0 {
		return nil, false, &domain.ValidationError{Message: "events must be a non-empty array"}
	}

	seen := make(map[string]bool, len(req.Events))
	events := make([]string, 0, len(req.Events))
	for _, event := range req.Events {
		if !validWebhookEvents[event] {
			return nil, false, &domain.ValidationError{
				Message: "Unknown event type: " + event +
					". Must be one of: round.cleared, round.confirmed, round.opened, experiment.reset",
			}
		}
		if !seen[event] {
			seen[event] = true
			events = append(events, event)
		}
	}

	now := time.Now().UTC().Truncate(time.Second)
	anyCreated := false
	webhooks := make([]domain.Webhook, 0, len(events))
	for _, event := range events {
		w, created := s.store.Upsert(domain.Webhook{
			WebhookID: uuid.New().String(),
			ClassID:   req.ClassID,
			Event:     event,
			URL:       req.URL,
			CreatedAt: now,
			UpdatedAt: now,
		})
		anyCreated = anyCreated || created
		webhooks = append(webhooks, w)
	}
	return webhooks, anyCreated, nil
}

// List returns all webhook subscriptions of a class.
func (s *WebhookService) List(classID string) ([]domain.Webhook, error) {
	if err := validateClassID(classID); err != nil {
		return nil, err
	}
	return s.store.ListByClass(classID), nil
}

// Get returns one webhook subscription of a class.
func (s *WebhookService) Get(classID, webhookID string) (domain.Webhook, error) {
	w, err := s.store.Get(webhookID)
	if err != nil {
		return domain.Webhook{}, err
	}
	if w.ClassID != classID {
		return domain.Webhook{}, domain.ErrWebhookNotFound
	}
	return w, nil
}

// Delete removes a webhook subscription of a class.
func (s *WebhookService) Delete(classID, webhookID string) error {
	return s.store.Delete(classID, webhookID)
}

// eventPayload is the JSON body of every lifecycle webhook.
type eventPayload struct {
	Event     string `json:"event"`
	Timestamp string `json:"timestamp"`
	ClassID   string `json:"class_id"`
	Data      any    `json:"data"`
}

// Dispatch sends event to the class's subscriber, if any. Delivery happens
// in the background and failures are only logged.
func (s *WebhookService) Dispatch(classID, event string, data any) {
	wh, ok := s.store.GetByClassEvent(classID, event)
	if !ok {
		return
	}

	payload := eventPayload{
		Event:     event,
		Timestamp: time.Now().UTC().Truncate(time.Second).Format(time.RFC3339),
		ClassID:   classID,
		Data:      data,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.deliver(wh, payload)
	}()
}

// Wait blocks until every in-flight delivery has finished.
func (s *WebhookService) Wait() {
	s.wg.Wait()
}

// deliver sends the payload via HTTP POST with the delivery headers.
func (s *WebhookService) deliver(wh domain.Webhook, payload eventPayload) {
	outcome := "error"
	defer func() {
		s.metrics.WebhookDeliveries.With("event", payload.Event, "outcome", outcome).Add(1)
	}()

	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("webhook payload encoding failed", "webhook_id", wh.WebhookID, "error", err)
		return
	}

	req, err := http.NewRequest(http.MethodPost, wh.URL, bytes.NewReader(body))
	if err != nil {
		s.logger.Warn("webhook request build failed", "webhook_id", wh.WebhookID, "error", err)
		return
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Delivery-Id", uuid.New().String())
	req.Header.Set("X-Webhook-Id", wh.WebhookID)
	req.Header.Set("X-Event-Type", payload.Event)

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("webhook delivery failed", "webhook_id", wh.WebhookID, "event", payload.Event, "error", err)
		return
	}
	resp.Body.Close()

	if resp.StatusCode >= 300 {
		s.logger.Warn("webhook rejected", "webhook_id", wh.WebhookID, "event", payload.Event, "status", resp.StatusCode)
		return
	}
	outcome = "ok"
}
