package domain

import "time"

// Lifecycle events a class webhook can subscribe to.
const (
	EventRoundCleared    = "round.cleared"
	EventRoundConfirmed  = "round.confirmed"
	EventRoundOpened     = "round.opened"
	EventExperimentReset = "experiment.reset"
)

// Webhook represents an administrator's subscription to a class event.
type Webhook struct {
	WebhookID string
	ClassID   string
	Event     string
	URL       string
	CreatedAt time.Time
	UpdatedAt time.Time
}
