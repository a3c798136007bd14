package service

import (
	"context"
	"regexp"
	"time"

	"github.com/efreitasn/marketlab/internal/domain"
)

var (
	classIDRegex       = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
	participantIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]{1,64}$`)
)

// ClassStore persists classes and their settlement history. Update applies fn
// to the committed class atomically: either every change fn made is stored,
// or none is.
type ClassStore interface {
	EnsureClass(ctx context.Context, classID string, unitValue int64) error
	Update(ctx context.Context, classID string, fn func(*domain.Class) error) error
	Load(ctx context.Context, classID string) (*domain.Class, error)
	History(ctx context.Context, classID string) ([]domain.HistoryRecord, error)
}

// Rules are the market parameters the services enforce.
type Rules struct {
	MaxUnits      int
	MaxPrice      int64
	EnforceBudget bool
}

// Notifier receives class lifecycle events.
type Notifier interface {
	Dispatch(classID, event string, data any)
}

type nopNotifier struct{}

func (nopNotifier) Dispatch(string, string, any) {}

func validateClassID(classID string) error {
	if !classIDRegex.MatchString(classID) {
		return &domain.ValidationError{Message: "class_id must match ^[a-zA-Z0-9_-]{1,64}$"}
	}
	return nil
}

func validateParticipantID(participantID string) error {
	if !participantIDRegex.MatchString(participantID) {
		return &domain.ValidationError{Message: "participant_id must match ^[a-zA-Z0-9_.-]{1,64}$"}
	}
	return nil
}

func utcNow() time.Time {
	return time.Now().UTC()
}
