package engine

import (
	"github.com/efreitasn/marketlab/internal/domain"
)

// ClearingInput is everything the clearing pass reads. Only participants with
// Submitted set and a buy or sell side take part; everyone else receives zero
// matched units.
type ClearingInput struct {
	Participants []*domain.Participant
	MaxPrice     int64
	MaxUnits     int
}

// Fill is one executed unit: the paired buy and sell slots.
type Fill struct {
	BuyerID   string
	BuySlot   int
	BuyValue  int64
	SellerID  string
	SellSlot  int
	SellValue int64
}

// ClearingResult is the outcome of one clearing pass.
type ClearingResult struct {
	Price   int64
	Volume  int64
	Matched map[string]int64 // participant id → signed units (+bought, -sold)
	Fills   []Fill
}

// Clear computes the uniform clearing price and the unit-level matching.
//
// The price is the lowest price in [0, MaxPrice] at which
// min(demand, supply) reaches its maximum. At that price buy units valued at
// or above it are ranked highest valuation first, sell units valued at or
// below it lowest valuation first, and the two lists are paired position by
// position. Clear does not modify its input.
func Clear(in ClearingInput) (*ClearingResult, error) {
	if in.MaxPrice < 0 {
		return nil, &domain.ValidationError{Message: "max price must be >= 0"}
	}

	units, err := collectUnits(in.Participants, in.MaxPrice, in.MaxUnits)
	if err != nil {
		return nil, err
	}

	price, volume := selectPrice(units.curve(in.MaxPrice))

	book := NewUnitBook()
	for id, values := range units.buys {
		for i, v := range values {
			if v >= price {
				book.InsertBuy(UnitEntry{Value: v, ParticipantID: id, Slot: i})
			}
		}
	}
	for id, values := range units.sells {
		for i, v := range values {
			if v <= price {
				book.InsertSell(UnitEntry{Value: v, ParticipantID: id, Slot: i})
			}
		}
	}

	result := &ClearingResult{
		Price:   price,
		Volume:  volume,
		Matched: make(map[string]int64, len(in.Participants)),
	}
	for _, p := range in.Participants {
		result.Matched[p.ParticipantID] = 0
	}

	pairs := min(book.BuyCount(), book.SellCount())
	buys := make([]UnitEntry, 0, pairs)
	book.WalkBuys(func(e UnitEntry) bool {
		if len(buys) == pairs {
			return false
		}
		buys = append(buys, e)
		return true
	})
	sells := make([]UnitEntry, 0, pairs)
	book.WalkSells(func(e UnitEntry) bool {
		if len(sells) == pairs {
			return false
		}
		sells = append(sells, e)
		return true
	})

	result.Fills = make([]Fill, 0, pairs)
	for i := 0; i < pairs; i++ {
		b, s := buys[i], sells[i]
		result.Matched[b.ParticipantID]++
		result.Matched[s.ParticipantID]--
		result.Fills = append(result.Fills, Fill{
			BuyerID:   b.ParticipantID,
			BuySlot:   b.Slot,
			BuyValue:  b.Value,
			SellerID:  s.ParticipantID,
			SellSlot:  s.Slot,
			SellValue: s.Value,
		})
	}

	return result, nil
}

// selectPrice scans prices ascending and keeps the first price at which a new
// strict maximum of trade volume is reached. With no volume anywhere the
// lowest price wins.
func selectPrice(points []CurvePoint) (price, volume int64) {
	best := int64(-1)
	for _, pt := range points {
		if v := pt.Volume(); v > best {
			best = v
			price = pt.Price
		}
	}
	if best < 0 {
		best = 0
	}
	return price, best
}
