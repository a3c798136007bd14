package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{Message: "valuations must not exceed 5 entries"}
	if err.Error() != "valuations must not exceed 5 entries" {
		t.Errorf("Error() = %q, want %q", err.Error(), "valuations must not exceed 5 entries")
	}
}

func TestValidationError_As(t *testing.T) {
	wrapped := fmt.Errorf("submit: %w", &ValidationError{Message: "bad side"})
	var ve *ValidationError
	if !errors.As(wrapped, &ve) {
		t.Fatal("errors.As should find the wrapped ValidationError")
	}
	if ve.Message != "bad side" {
		t.Errorf("Message = %q, want %q", ve.Message, "bad side")
	}
}

func TestSentinelErrors_AreDistinct(t *testing.T) {
	errs := []error{
		ErrClassNotFound,
		ErrParticipantNotFound,
		ErrRoundNotOpen,
		ErrRoundAlreadyCleared,
		ErrRoundNotCleared,
		ErrRoundNotConfirmed,
		ErrResultsNotPublic,
		ErrInsufficientBalance,
		ErrInsufficientHoldings,
		ErrWebhookNotFound,
		ErrIntegrity,
		ErrStoreUnavailable,
	}

	for i := 0; i < len(errs); i++ {
		for j := i + 1; j < len(errs); j++ {
			if errors.Is(errs[i], errs[j]) {
				t.Errorf("sentinel errors %d and %d should be distinct", i, j)
			}
		}
	}
}
