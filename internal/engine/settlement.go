package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/efreitasn/marketlab/internal/domain"
)

// Settle applies a clearing result to every participant of the class and
// queues one history record per participant.
//
// For matched units m at price p: money' = money - m*p, holdings' =
// holdings + m, payoff = unitValue*holdings' + money'. All outcomes are
// computed and checked before any participant is touched, so an error leaves
// the class unchanged.
func Settle(class *domain.Class, res *ClearingResult, now time.Time) error {
	type outcome struct {
		p        *domain.Participant
		matched  int64
		money    int64
		holdings int64
		payoff   int64
	}

	price := res.Price
	unitValue := class.Round.UnitValue
	participants := class.SortedParticipants()
	outcomes := make([]outcome, 0, len(participants))

	for _, p := range participants {
		m, ok := res.Matched[p.ParticipantID]
		if !ok {
			return fmt.Errorf("participant %s missing from clearing result: %w", p.ParticipantID, domain.ErrIntegrity)
		}
		if m < -int64(p.DeclaredQuantity) || m > int64(p.DeclaredQuantity) {
			return fmt.Errorf("participant %s matched %d units with %d declared: %w",
				p.ParticipantID, m, p.DeclaredQuantity, domain.ErrIntegrity)
		}
		if (m > 0 && p.Side != domain.SideBuy) || (m < 0 && p.Side != domain.SideSell) {
			return fmt.Errorf("participant %s matched %d units on side %q: %w",
				p.ParticipantID, m, p.Side, domain.ErrIntegrity)
		}
		money := p.Money - m*price
		holdings := p.Holdings + m
		outcomes = append(outcomes, outcome{
			p:        p,
			matched:  m,
			money:    money,
			holdings: holdings,
			payoff:   unitValue*holdings + money,
		})
	}

	records := make([]domain.HistoryRecord, 0, len(outcomes))
	for _, o := range outcomes {
		values, err := o.p.Declared()
		if err != nil {
			return err
		}
		records = append(records, domain.HistoryRecord{
			RecordID:         uuid.New().String(),
			ClassID:          class.ID,
			ParticipantID:    o.p.ParticipantID,
			Round:            class.Round.Number,
			Side:             o.p.Side,
			DeclaredQuantity: o.p.DeclaredQuantity,
			Valuations:       values,
			MatchedUnits:     o.matched,
			ClearingPrice:    price,
			UnitValue:        unitValue,
			Money:            o.money,
			Holdings:         o.holdings,
			Payoff:           o.payoff,
			Info:             o.p.Info,
			RecordedAt:       now,
		})
	}

	for _, o := range outcomes {
		matched, payoff := o.matched, o.payoff
		o.p.Money = o.money
		o.p.Holdings = o.holdings
		o.p.MatchedUnits = &matched
		o.p.Payoff = &payoff
		o.p.UpdatedAt = now
	}
	class.AppendHistory(records...)
	return nil
}
