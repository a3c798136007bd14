package domain

import "errors"

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes.
var (
	ErrClassNotFound        = errors.New("class_not_found")
	ErrParticipantNotFound  = errors.New("participant_not_found")
	ErrRoundNotOpen         = errors.New("round_not_open")
	ErrRoundAlreadyCleared  = errors.New("round_already_cleared")
	ErrRoundNotCleared      = errors.New("round_not_cleared")
	ErrRoundNotConfirmed    = errors.New("round_not_confirmed")
	ErrResultsNotPublic     = errors.New("results_not_public")
	ErrInsufficientBalance  = errors.New("insufficient_balance")
	ErrInsufficientHoldings = errors.New("insufficient_holdings")
	ErrWebhookNotFound      = errors.New("webhook_not_found")

	// ErrIntegrity marks state that violates a data invariant (for example a
	// declared valuation slot that holds no value). Operations that hit it
	// abort without committing anything.
	ErrIntegrity = errors.New("integrity_error")

	// ErrStoreUnavailable is returned once transient storage failures have
	// exhausted the configured retries. Callers may retry the whole request.
	ErrStoreUnavailable = errors.New("store_unavailable")
)

// ValidationError represents a request validation failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
