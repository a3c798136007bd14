package engine

import (
	"fmt"

	"github.com/efreitasn/marketlab/internal/domain"
)

// CurvePoint is one row of the demand/supply step function.
type CurvePoint struct {
	Price  int64
	Demand int64 // buy slots valued >= Price
	Supply int64 // sell slots valued <= Price
}

// Volume is the number of units that could trade at this price.
func (c CurvePoint) Volume() int64 {
	return min(c.Demand, c.Supply)
}

// sideUnits holds the declared valuations of the trading participants.
type sideUnits struct {
	buys  map[string][]int64
	sells map[string][]int64
}

// collectUnits reads the declared valuations of every submitted buyer and
// seller. Declared quantities above maxUnits, empty declared slots and values
// outside [0, maxPrice] are integrity errors.
func collectUnits(participants []*domain.Participant, maxPrice int64, maxUnits int) (*sideUnits, error) {
	u := &sideUnits{
		buys:  make(map[string][]int64),
		sells: make(map[string][]int64),
	}
	for _, p := range participants {
		if !p.Trades() {
			continue
		}
		if p.DeclaredQuantity > maxUnits {
			return nil, fmt.Errorf("participant %s: declared quantity %d exceeds %d: %w",
				p.ParticipantID, p.DeclaredQuantity, maxUnits, domain.ErrIntegrity)
		}
		values, err := p.Declared()
		if err != nil {
			return nil, err
		}
		for i, v := range values {
			if v < 0 || v > maxPrice {
				return nil, fmt.Errorf("participant %s: slot %d value %d outside [0, %d]: %w",
					p.ParticipantID, i, v, maxPrice, domain.ErrIntegrity)
			}
		}
		if p.Side == domain.SideBuy {
			u.buys[p.ParticipantID] = values
		} else {
			u.sells[p.ParticipantID] = values
		}
	}
	return u, nil
}

// curve builds the step function over [0, maxPrice] from value histograms.
func (u *sideUnits) curve(maxPrice int64) []CurvePoint {
	buyAt := make([]int64, maxPrice+1)
	sellAt := make([]int64, maxPrice+1)
	for _, values := range u.buys {
		for _, v := range values {
			buyAt[v]++
		}
	}
	for _, values := range u.sells {
		for _, v := range values {
			sellAt[v]++
		}
	}

	points := make([]CurvePoint, maxPrice+1)

	var supply int64
	for p := int64(0); p <= maxPrice; p++ {
		supply += sellAt[p]
		points[p].Price = p
		points[p].Supply = supply
	}

	var demand int64
	for p := maxPrice; p >= 0; p-- {
		demand += buyAt[p]
		points[p].Demand = demand
	}
	return points
}

// Curve returns the demand/supply table over [0, maxPrice] for the submitted
// buyers and sellers among participants. It is read-only.
func Curve(participants []*domain.Participant, maxPrice int64, maxUnits int) ([]CurvePoint, error) {
	if maxPrice < 0 {
		return nil, &domain.ValidationError{Message: "max price must be >= 0"}
	}
	units, err := collectUnits(participants, maxPrice, maxUnits)
	if err != nil {
		return nil, err
	}
	return units.curve(maxPrice), nil
}

// Book returns the unit book of the submitted buyers and sellers, holding
// every declared slot.
func Book(participants []*domain.Participant, maxPrice int64, maxUnits int) (*UnitBook, error) {
	units, err := collectUnits(participants, maxPrice, maxUnits)
	if err != nil {
		return nil, err
	}
	book := NewUnitBook()
	for id, values := range units.buys {
		for i, v := range values {
			book.InsertBuy(UnitEntry{Value: v, ParticipantID: id, Slot: i})
		}
	}
	for id, values := range units.sells {
		for i, v := range values {
			book.InsertSell(UnitEntry{Value: v, ParticipantID: id, Slot: i})
		}
	}
	return book, nil
}
