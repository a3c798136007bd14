package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/efreitasn/marketlab/internal/domain"
	"github.com/efreitasn/marketlab/internal/engine"
	"github.com/efreitasn/marketlab/internal/metrics"
)

// RoundState is the lifecycle record of a class's current round plus
// submission progress.
type RoundState struct {
	ClassID       string
	Number        int
	Phase         domain.Phase
	UnitValue     int64
	ClearingPrice *int64
	Cleared       bool
	Confirmed     bool
	Participants  int
	Submitted     int
	UpdatedAt     time.Time
}

// ClearOutcome is the result of clearing one round.
type ClearOutcome struct {
	ClassID string
	Round   int
	Price   int64
	Volume  int64
	Matched map[string]int64
	Fills   []engine.Fill
}

// RoundService drives the round lifecycle of a class:
// open → cleared → confirmed → open (next round), plus reset.
type RoundService struct {
	store      ClassStore
	rules      Rules
	unitValues *domain.UnitValueRange
	notifier   Notifier
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// NewRoundService creates a new RoundService. A nil notifier drops events.
func NewRoundService(
	store ClassStore,
	rules Rules,
	unitValues *domain.UnitValueRange,
	notifier Notifier,
	m *metrics.Metrics,
	logger *slog.Logger,
) *RoundService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if m == nil {
		m = metrics.NopMetrics()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RoundService{
		store:      store,
		rules:      rules,
		unitValues: unitValues,
		notifier:   notifier,
		metrics:    m,
		logger:     logger,
		now:        utcNow,
	}
}

// State returns the current round of a class.
func (s *RoundService) State(ctx context.Context, classID string) (*RoundState, error) {
	class, err := s.store.Load(ctx, classID)
	if err != nil {
		return nil, err
	}
	return roundState(class), nil
}

func roundState(c *domain.Class) *RoundState {
	st := &RoundState{
		ClassID:       c.ID,
		Number:        c.Round.Number,
		Phase:         c.Round.Phase(),
		UnitValue:     c.Round.UnitValue,
		ClearingPrice: c.Round.ClearingPrice,
		Cleared:       c.Round.Cleared,
		Confirmed:     c.Round.Confirmed,
		Participants:  len(c.Participants),
		UpdatedAt:     c.Round.UpdatedAt,
	}
	for _, p := range c.Participants {
		if p.Submitted {
			st.Submitted++
		}
	}
	return st
}

// Clear computes the clearing price of the open round, settles every
// participant and appends their history records, all in one atomic update.
// Participants that never submitted are recorded as abstaining. Clearing an
// already cleared round fails with domain.ErrRoundAlreadyCleared.
func (s *RoundService) Clear(ctx context.Context, classID string) (*ClearOutcome, error) {
	var out *ClearOutcome
	err := s.store.Update(ctx, classID, func(c *domain.Class) error {
		if c.Round.Cleared {
			return domain.ErrRoundAlreadyCleared
		}

		for _, p := range c.Participants {
			if !p.Submitted {
				p.DefaultToAbstain()
			}
		}

		res, err := engine.Clear(engine.ClearingInput{
			Participants: c.SortedParticipants(),
			MaxPrice:     s.rules.MaxPrice,
			MaxUnits:     s.rules.MaxUnits,
		})
		if err != nil {
			return err
		}

		now := s.now()
		if err := engine.Settle(c, res, now); err != nil {
			return err
		}

		price := res.Price
		c.Round.ClearingPrice = &price
		c.Round.Cleared = true
		c.Round.UpdatedAt = now

		out = &ClearOutcome{
			ClassID: classID,
			Round:   c.Round.Number,
			Price:   res.Price,
			Volume:  res.Volume,
			Matched: res.Matched,
			Fills:   res.Fills,
		}
		return nil
	})
	if err != nil {
		s.reportFailure("clear", classID, err)
		return nil, err
	}

	s.metrics.RoundTransitions.With("transition", "clear").Add(1)
	s.metrics.ClearingPrice.Set(float64(out.Price))
	s.metrics.ClearedVolume.Observe(float64(out.Volume))
	s.logger.Info("round cleared",
		"class_id", classID,
		"round", out.Round,
		"price", out.Price,
		"volume", out.Volume,
	)
	s.notifier.Dispatch(classID, domain.EventRoundCleared, map[string]any{
		"round":          out.Round,
		"clearing_price": out.Price,
		"volume":         out.Volume,
	})
	return out, nil
}

// Confirm publishes the results of a cleared round. Confirming a confirmed
// round is a no-op; confirming an open round fails with
// domain.ErrRoundNotCleared.
func (s *RoundService) Confirm(ctx context.Context, classID string) (*RoundState, error) {
	var (
		state   *RoundState
		changed bool
	)
	err := s.store.Update(ctx, classID, func(c *domain.Class) error {
		switch c.Round.Phase() {
		case domain.PhaseOpen:
			return domain.ErrRoundNotCleared
		case domain.PhaseCleared:
			c.Round.Confirmed = true
			c.Round.UpdatedAt = s.now()
			changed = true
		}
		state = roundState(c)
		return nil
	})
	if err != nil {
		s.reportFailure("confirm", classID, err)
		return nil, err
	}

	if changed {
		s.metrics.RoundTransitions.With("transition", "confirm").Add(1)
		s.logger.Info("round confirmed", "class_id", classID, "round", state.Number)
		s.notifier.Dispatch(classID, domain.EventRoundConfirmed, map[string]any{
			"round":          state.Number,
			"clearing_price": state.ClearingPrice,
		})
	}
	return state, nil
}

// Advance opens the next round once the current one is confirmed. Money,
// holdings and payoff carry over; submissions and matched units are cleared.
func (s *RoundService) Advance(ctx context.Context, classID string) (*RoundState, error) {
	var state *RoundState
	err := s.store.Update(ctx, classID, func(c *domain.Class) error {
		if !c.Round.Confirmed {
			return domain.ErrRoundNotConfirmed
		}

		now := s.now()
		c.Round.Open()
		c.Round.UpdatedAt = now
		for _, p := range c.Participants {
			p.ResetRound()
			p.UpdatedAt = now
		}
		state = roundState(c)
		return nil
	})
	if err != nil {
		s.reportFailure("advance", classID, err)
		return nil, err
	}

	s.metrics.RoundTransitions.With("transition", "advance").Add(1)
	s.logger.Info("round opened", "class_id", classID, "round", state.Number)
	s.notifier.Dispatch(classID, domain.EventRoundOpened, map[string]any{
		"round": state.Number,
	})
	return state, nil
}

// Reset deletes every participant and history record of the class, draws a
// new unit value and returns the class to round 1. It is allowed in any
// phase.
func (s *RoundService) Reset(ctx context.Context, classID string) (*RoundState, error) {
	var state *RoundState
	err := s.store.Update(ctx, classID, func(c *domain.Class) error {
		c.Wipe()
		c.Round = domain.Round{
			ClassID:   classID,
			Number:    1,
			UnitValue: s.unitValues.Draw(),
			UpdatedAt: s.now(),
		}
		state = roundState(c)
		return nil
	})
	if err != nil {
		s.reportFailure("reset", classID, err)
		return nil, err
	}

	s.metrics.RoundTransitions.With("transition", "reset").Add(1)
	s.logger.Info("experiment reset", "class_id", classID, "unit_value", state.UnitValue)
	s.notifier.Dispatch(classID, domain.EventExperimentReset, map[string]any{
		"round": state.Number,
	})
	return state, nil
}

// reportFailure logs integrity and storage failures. Lifecycle conflicts are
// the caller's business and are not logged here.
func (s *RoundService) reportFailure(op, classID string, err error) {
	switch {
	case errors.Is(err, domain.ErrIntegrity):
		s.metrics.IntegrityFailures.Add(1)
		s.logger.Error("integrity violation", "op", op, "class_id", classID, "error", err)
	case errors.Is(err, domain.ErrStoreUnavailable):
		s.logger.Error("store unavailable", "op", op, "class_id", classID, "error", err)
	}
}
