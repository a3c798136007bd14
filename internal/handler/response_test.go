package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/efreitasn/marketlab/internal/domain"
	"github.com/efreitasn/marketlab/internal/service"
)

func decodeRaw(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var raw map[string]any
	if err := json.NewDecoder(w.Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	return raw
}

func TestWriteJSON_JoinResponse(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusCreated, joinResponse{
		ClassID:       "econ101",
		ParticipantID: "p1",
		Money:         500,
		Holdings:      3,
		Info:          120,
		JoinedAt:      formatTime(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)),
	})

	if w.Code != http.StatusCreated {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusCreated)
	}
	if got := w.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want %q", got, "application/json")
	}

	raw := decodeRaw(t, w)
	want := map[string]any{
		"class_id":       "econ101",
		"participant_id": "p1",
		"money":          float64(500),
		"holdings":       float64(3),
		"info":           float64(120),
		"joined_at":      "2024-03-01T12:00:00Z",
	}
	for k, v := range want {
		if raw[k] != v {
			t.Errorf("%s = %v, want %v", k, raw[k], v)
		}
	}
	if len(raw) != len(want) {
		t.Errorf("body has %d fields, want %d: %v", len(raw), len(want), raw)
	}
}

func TestWriteJSON_RoundResponse(t *testing.T) {
	price := int64(85)
	open := &service.RoundState{
		ClassID:      "c1",
		Number:       2,
		Phase:        domain.PhaseOpen,
		UnitValue:    100,
		Participants: 4,
		Submitted:    1,
		UpdatedAt:    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	cleared := *open
	cleared.Phase = domain.PhaseCleared
	cleared.Cleared = true
	cleared.ClearingPrice = &price

	t.Run("open round hides unit value and nulls clearing price", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteJSON(w, http.StatusOK, buildRoundResponse(open, false))

		raw := decodeRaw(t, w)
		if _, ok := raw["unit_value"]; ok {
			t.Errorf("unit_value present before clearing: %v", raw["unit_value"])
		}
		if v, ok := raw["clearing_price"]; !ok || v != nil {
			t.Errorf("clearing_price = %v (present %v), want explicit null", v, ok)
		}
		if raw["phase"] != "open" {
			t.Errorf("phase = %v, want open", raw["phase"])
		}
	})

	t.Run("cleared round shows unit value and price", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteJSON(w, http.StatusOK, buildRoundResponse(&cleared, true))

		raw := decodeRaw(t, w)
		if raw["unit_value"] != float64(100) {
			t.Errorf("unit_value = %v, want 100", raw["unit_value"])
		}
		if raw["clearing_price"] != float64(85) {
			t.Errorf("clearing_price = %v, want 85", raw["clearing_price"])
		}
		if raw["cleared"] != true || raw["confirmed"] != false {
			t.Errorf("cleared/confirmed = %v/%v, want true/false", raw["cleared"], raw["confirmed"])
		}
	})
}

func TestWriteJSON_EmptyValuationsEncodeAsArray(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusOK, submissionResponse{
		ClassID:       "c1",
		ParticipantID: "p1",
		Side:          "buy",
		Valuations:    nonNil(nil),
	})

	if body := w.Body.String(); !strings.Contains(body, `"valuations":[]`) {
		t.Errorf("body = %s, want valuations as an empty array", body)
	}
}

func TestFormatTime_ConvertsToUTC(t *testing.T) {
	loc := time.FixedZone("UTC-3", -3*60*60)
	got := formatTime(time.Date(2024, 3, 1, 9, 30, 15, 500, loc))
	if want := "2024-03-01T12:30:15Z"; got != want {
		t.Errorf("formatTime = %q, want %q", got, want)
	}
}

func TestWriteError_Envelope(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, http.StatusConflict, "round_already_cleared", "The current round has already been cleared")

	if w.Code != http.StatusConflict {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusConflict)
	}
	raw := decodeRaw(t, w)
	if len(raw) != 2 {
		t.Errorf("envelope has fields %v, want only error and message", raw)
	}
	if raw["error"] != "round_already_cleared" {
		t.Errorf("error = %v, want round_already_cleared", raw["error"])
	}
	if raw["message"] != "The current round has already been cleared" {
		t.Errorf("message = %v", raw["message"])
	}
}

func TestParseJSON(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		wantErr     bool
	}{
		{"submission", "application/json", `{"side":"buy","valuations":[120,90]}`, false},
		{"charset suffix", "application/json; charset=utf-8", `{"side":"sell","valuations":[]}`, false},
		{"missing content type", "", `{"side":"buy"}`, true},
		{"form content type", "application/x-www-form-urlencoded", `side=buy`, true},
		{"malformed", "application/json", `{"side":`, true},
		{"unknown field", "application/json", `{"side":"buy","price":10}`, true},
		{"empty body", "application/json", ``, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			if tt.contentType != "" {
				r.Header.Set("Content-Type", tt.contentType)
			}

			var req submitRequest
			err := ParseJSON(r, &req)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseJSON(%q) succeeded, want error", tt.body)
				}
				if !strings.Contains(err.Error(), "Content-Type: application/json") {
					t.Errorf("error = %q, should name the expected Content-Type", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if req.Side == "" {
				t.Errorf("side not decoded from %s", tt.body)
			}
		})
	}
}

type errorCase struct {
	name    string
	err     error
	status  int
	code    string
	message string
}

func runErrorCases(t *testing.T, write func(http.ResponseWriter, error), tests []errorCase) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			write(w, tt.err)

			if w.Code != tt.status {
				t.Errorf("status code = %d, want %d", w.Code, tt.status)
			}
			var resp errorResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode: %v", err)
			}
			if resp.Error != tt.code {
				t.Errorf("error = %q, want %q", resp.Error, tt.code)
			}
			if tt.message != "" && resp.Message != tt.message {
				t.Errorf("message = %q, want %q", resp.Message, tt.message)
			}
		})
	}
}

func TestWriteServiceError(t *testing.T) {
	runErrorCases(t, writeServiceError, []errorCase{
		{"validation", &domain.ValidationError{Message: "bad"}, http.StatusBadRequest, "validation_error", "bad"},
		{"wrapped validation", fmt.Errorf("submit: %w", &domain.ValidationError{Message: "bad"}), http.StatusBadRequest, "validation_error", "bad"},
		{"class not found", domain.ErrClassNotFound, http.StatusNotFound, "class_not_found", ""},
		{"integrity", fmt.Errorf("slot 2 empty: %w", domain.ErrIntegrity), http.StatusInternalServerError, "integrity_error", ""},
		{"store unavailable", fmt.Errorf("update class: %w: %w", domain.ErrStoreUnavailable, errors.New("40001")), http.StatusServiceUnavailable, "store_unavailable", ""},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal_error", "An unexpected error occurred"},
	})
}

func TestMapParticipantError(t *testing.T) {
	balance := fmt.Errorf("%w: bid of 600 exceeds money 500", domain.ErrInsufficientBalance)
	runErrorCases(t, mapParticipantError, []errorCase{
		{"participant not found", fmt.Errorf("get p9: %w", domain.ErrParticipantNotFound), http.StatusNotFound, "participant_not_found", ""},
		{"round not open", domain.ErrRoundNotOpen, http.StatusConflict, "round_not_open", ""},
		{"results not public", domain.ErrResultsNotPublic, http.StatusConflict, "results_not_public", ""},
		{"insufficient balance carries detail", balance, http.StatusConflict, "insufficient_balance", balance.Error()},
		{"insufficient holdings", domain.ErrInsufficientHoldings, http.StatusConflict, "insufficient_holdings", ""},
		{"falls through to shared mapping", domain.ErrClassNotFound, http.StatusNotFound, "class_not_found", ""},
		{"admin code not mapped here", domain.ErrRoundAlreadyCleared, http.StatusInternalServerError, "internal_error", ""},
	})
}

func TestMapAdminError(t *testing.T) {
	runErrorCases(t, mapAdminError, []errorCase{
		{"already cleared", fmt.Errorf("clear c1: %w", domain.ErrRoundAlreadyCleared), http.StatusConflict, "round_already_cleared", ""},
		{"not cleared", domain.ErrRoundNotCleared, http.StatusConflict, "round_not_cleared", ""},
		{"not confirmed", domain.ErrRoundNotConfirmed, http.StatusConflict, "round_not_confirmed", ""},
		{"store unavailable", domain.ErrStoreUnavailable, http.StatusServiceUnavailable, "store_unavailable", ""},
		{"validation", &domain.ValidationError{Message: "unit_value must be positive"}, http.StatusBadRequest, "validation_error", "unit_value must be positive"},
	})
}

func TestMapWebhookError(t *testing.T) {
	runErrorCases(t, mapWebhookError, []errorCase{
		{"not found", fmt.Errorf("delete: %w", domain.ErrWebhookNotFound), http.StatusNotFound, "webhook_not_found", "Webhook not found"},
		{"class not found", domain.ErrClassNotFound, http.StatusNotFound, "class_not_found", ""},
		{"validation", &domain.ValidationError{Message: "url must be absolute"}, http.StatusBadRequest, "validation_error", ""},
	})
}
