package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/efreitasn/marketlab/internal/domain"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"lock not available", fmt.Errorf("lock round: %w", &pgconn.PgError{Code: "55P03"}), true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"domain error", domain.ErrRoundNotOpen, false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRetryPolicy_SucceedsAfterTransientFailures(t *testing.T) {
	p := RetryPolicy{MaxRetries: 3}
	calls := 0

	err := p.do(context.Background(), discardLogger, "update", func(context.Context) error {
		calls++
		if calls < 3 {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryPolicy_Exhausted(t *testing.T) {
	p := RetryPolicy{MaxRetries: 2}
	calls := 0

	err := p.do(context.Background(), discardLogger, "update", func(context.Context) error {
		calls++
		return &pgconn.PgError{Code: "40P01"}
	})
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		t.Fatalf("expected the last cause to be kept, got %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryPolicy_PermanentErrorNotRetried(t *testing.T) {
	p := RetryPolicy{MaxRetries: 5}
	calls := 0

	err := p.do(context.Background(), discardLogger, "update", func(context.Context) error {
		calls++
		return domain.ErrRoundAlreadyCleared
	})
	if !errors.Is(err, domain.ErrRoundAlreadyCleared) {
		t.Fatalf("expected ErrRoundAlreadyCleared, got %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryPolicy_ContextCancelled(t *testing.T) {
	p := RetryPolicy{MaxRetries: 3, Backoff: time.Minute}
	ctx, cancel := context.WithCancel(context.Background())

	err := p.do(ctx, discardLogger, "update", func(context.Context) error {
		cancel()
		return &pgconn.PgError{Code: "40001"}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
