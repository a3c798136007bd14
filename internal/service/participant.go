package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/efreitasn/marketlab/internal/domain"
	"github.com/efreitasn/marketlab/internal/metrics"
)

// JoinRequest represents the input for joining a class.
type JoinRequest struct {
	ClassID       string
	ParticipantID string
}

// SubmitRequest represents a participant's submission for the open round.
type SubmitRequest struct {
	ClassID       string
	ParticipantID string
	Side          domain.Side
	Valuations    []int64
}

// ParticipantView is what a participant may see about themselves. Round
// results appear once the round is cleared; payoff and unit value once it is
// confirmed.
type ParticipantView struct {
	ClassID          string
	ParticipantID    string
	Round            int
	Phase            domain.Phase
	Money            int64
	Holdings         int64
	Info             int64
	Side             domain.Side
	DeclaredQuantity int
	Valuations       []int64
	Submitted        bool
	ClearingPrice    *int64
	MatchedUnits     *int64
	Payoff           *int64
	UnitValue        *int64
	UpdatedAt        time.Time
}

// ParticipantService handles joining, submissions and participant queries.
type ParticipantService struct {
	store            ClassStore
	endowment        domain.EndowmentPolicy
	rules            Rules
	initialUnitValue int64
	metrics          *metrics.Metrics
	logger           *slog.Logger
	now              func() time.Time
}

// NewParticipantService creates a new ParticipantService.
func NewParticipantService(
	store ClassStore,
	endowment domain.EndowmentPolicy,
	rules Rules,
	initialUnitValue int64,
	m *metrics.Metrics,
	logger *slog.Logger,
) *ParticipantService {
	if m == nil {
		m = metrics.NopMetrics()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ParticipantService{
		store:            store,
		endowment:        endowment,
		rules:            rules,
		initialUnitValue: initialUnitValue,
		metrics:          m,
		logger:           logger,
		now:              utcNow,
	}
}

// Join registers a participant in a class, creating the class on first
// contact. A new participant receives a starting endowment drawn for the
// class's current unit value. Joining again returns the existing record.
// The boolean reports whether the participant was created.
func (s *ParticipantService) Join(ctx context.Context, req JoinRequest) (*domain.Participant, bool, error) {
	if err := validateClassID(req.ClassID); err != nil {
		return nil, false, err
	}
	if err := validateParticipantID(req.ParticipantID); err != nil {
		return nil, false, err
	}

	if err := s.store.EnsureClass(ctx, req.ClassID, s.initialUnitValue); err != nil {
		return nil, false, err
	}

	var (
		out     *domain.Participant
		created bool
	)
	err := s.store.Update(ctx, req.ClassID, func(c *domain.Class) error {
		if existing, ok := c.Participants[req.ParticipantID]; ok {
			out, created = existing.Clone(), false
			return nil
		}

		e, err := s.endowment.Draw(c.Round.UnitValue)
		if err != nil {
			return fmt.Errorf("draw endowment: %w", err)
		}
		now := s.now()
		p := &domain.Participant{
			ClassID:       req.ClassID,
			ParticipantID: req.ParticipantID,
			Money:         e.Money,
			Holdings:      e.Holdings,
			Info:          e.Info,
			JoinedAt:      now,
			UpdatedAt:     now,
		}
		c.Participants[p.ParticipantID] = p
		out, created = p.Clone(), true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if created {
		s.metrics.Joins.Add(1)
		s.logger.Info("participant joined",
			"class_id", req.ClassID,
			"participant_id", req.ParticipantID,
			"money", out.Money,
			"holdings", out.Holdings,
		)
	}
	return out, created, nil
}

// Submit records a participant's side and per-unit valuations for the open
// round. A later submission in the same round replaces the earlier one.
func (s *ParticipantService) Submit(ctx context.Context, req SubmitRequest) (*domain.Participant, error) {
	if err := validateClassID(req.ClassID); err != nil {
		return nil, err
	}
	if err := validateParticipantID(req.ParticipantID); err != nil {
		return nil, err
	}
	if err := s.validateSubmission(req); err != nil {
		return nil, err
	}

	var out *domain.Participant
	err := s.store.Update(ctx, req.ClassID, func(c *domain.Class) error {
		p, ok := c.Participants[req.ParticipantID]
		if !ok {
			return domain.ErrParticipantNotFound
		}
		if c.Round.Phase() != domain.PhaseOpen {
			return domain.ErrRoundNotOpen
		}

		if s.rules.EnforceBudget {
			if err := checkBudget(p, req); err != nil {
				return err
			}
		}

		p.Side = req.Side
		p.DeclaredQuantity = len(req.Valuations)
		p.Valuations = domain.ValuationsOf(req.Valuations...)
		p.Submitted = true
		p.MatchedUnits = nil
		p.UpdatedAt = s.now()
		out = p.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Submissions.With("side", string(req.Side)).Add(1)
	s.logger.Debug("submission accepted",
		"class_id", req.ClassID,
		"participant_id", req.ParticipantID,
		"side", req.Side,
		"quantity", len(req.Valuations),
	)
	return out, nil
}

func (s *ParticipantService) validateSubmission(req SubmitRequest) error {
	switch req.Side {
	case domain.SideAbstain:
		if len(req.Valuations) != 0 {
			return &domain.ValidationError{Message: "valuations must be empty when abstaining"}
		}
		return nil
	case domain.SideBuy, domain.SideSell:
	default:
		return &domain.ValidationError{
			Message: fmt.Sprintf("Unknown side: %s. Must be one of: buy, sell, abstain", req.Side),
		}
	}

	if len(req.Valuations) < 1 || len(req.Valuations) > s.rules.MaxUnits {
		return &domain.ValidationError{
			Message: fmt.Sprintf("valuations must hold between 1 and %d entries", s.rules.MaxUnits),
		}
	}
	for i, v := range req.Valuations {
		if v < 0 || v > s.rules.MaxPrice {
			return &domain.ValidationError{
				Message: fmt.Sprintf("valuations[%d] must be between 0 and %d", i, s.rules.MaxPrice),
			}
		}
	}
	return nil
}

// checkBudget rejects a buyer whose valuations could cost more than their
// money, and a seller offering more units than they hold.
func checkBudget(p *domain.Participant, req SubmitRequest) error {
	switch req.Side {
	case domain.SideBuy:
		var total int64
		for _, v := range req.Valuations {
			total += v
		}
		if total > p.Money {
			return fmt.Errorf("valuations total %d exceeds money %d: %w", total, p.Money, domain.ErrInsufficientBalance)
		}
	case domain.SideSell:
		if int64(len(req.Valuations)) > p.Holdings {
			return fmt.Errorf("offering %d units with %d held: %w",
				len(req.Valuations), p.Holdings, domain.ErrInsufficientHoldings)
		}
	}
	return nil
}

// Get returns the full record of one participant.
func (s *ParticipantService) Get(ctx context.Context, classID, participantID string) (*domain.Participant, error) {
	class, err := s.store.Load(ctx, classID)
	if err != nil {
		return nil, err
	}
	p, ok := class.Participants[participantID]
	if !ok {
		return nil, domain.ErrParticipantNotFound
	}
	return p, nil
}

// List returns every participant of a class ordered by id.
func (s *ParticipantService) List(ctx context.Context, classID string) ([]*domain.Participant, error) {
	class, err := s.store.Load(ctx, classID)
	if err != nil {
		return nil, err
	}
	return class.SortedParticipants(), nil
}

// View returns the participant's own state with round results gated by the
// round phase.
func (s *ParticipantService) View(ctx context.Context, classID, participantID string) (*ParticipantView, error) {
	class, err := s.store.Load(ctx, classID)
	if err != nil {
		return nil, err
	}
	p, ok := class.Participants[participantID]
	if !ok {
		return nil, domain.ErrParticipantNotFound
	}

	values, err := p.Declared()
	if err != nil {
		return nil, err
	}

	phase := class.Round.Phase()
	v := &ParticipantView{
		ClassID:          classID,
		ParticipantID:    p.ParticipantID,
		Round:            class.Round.Number,
		Phase:            phase,
		Money:            p.Money,
		Holdings:         p.Holdings,
		Info:             p.Info,
		Side:             p.Side,
		DeclaredQuantity: p.DeclaredQuantity,
		Valuations:       values,
		Submitted:        p.Submitted,
		UpdatedAt:        p.UpdatedAt,
	}
	if phase != domain.PhaseOpen {
		v.ClearingPrice = class.Round.ClearingPrice
		v.MatchedUnits = p.MatchedUnits
	}
	if phase == domain.PhaseConfirmed {
		unitValue := class.Round.UnitValue
		v.UnitValue = &unitValue
		v.Payoff = p.Payoff
	}
	return v, nil
}
