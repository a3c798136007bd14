package engine

import (
	"github.com/google/btree"
)

// UnitEntry is one valuation slot resting in the unit book.
type UnitEntry struct {
	Value         int64
	ParticipantID string
	Slot          int
}

// PriceLevel is an aggregated valuation level of the unit book.
type PriceLevel struct {
	Value            int64
	Units            int64
	ParticipantCount int
}

// buyLess orders buy units by valuation descending, then participant id and
// slot ascending. Min() is the unit with the highest willingness to pay.
func buyLess(a, b UnitEntry) bool {
	if a.Value != b.Value {
		return a.Value > b.Value
	}
	if a.ParticipantID != b.ParticipantID {
		return a.ParticipantID < b.ParticipantID
	}
	return a.Slot < b.Slot
}

// sellLess orders sell units by valuation ascending, then participant id and
// slot ascending. Min() is the unit with the lowest willingness to accept.
func sellLess(a, b UnitEntry) bool {
	if a.Value != b.Value {
		return a.Value < b.Value
	}
	if a.ParticipantID != b.ParticipantID {
		return a.ParticipantID < b.ParticipantID
	}
	return a.Slot < b.Slot
}

// UnitBook holds the buy and sell units of one clearing pass in priority
// order. It is built per call and not shared, so it carries no lock.
type UnitBook struct {
	buys  *btree.BTreeG[UnitEntry]
	sells *btree.BTreeG[UnitEntry]
}

// NewUnitBook creates an empty unit book.
func NewUnitBook() *UnitBook {
	const degree = 32
	return &UnitBook{
		buys:  btree.NewG[UnitEntry](degree, buyLess),
		sells: btree.NewG[UnitEntry](degree, sellLess),
	}
}

// InsertBuy adds a unit to the buy side.
func (b *UnitBook) InsertBuy(e UnitEntry) {
	b.buys.ReplaceOrInsert(e)
}

// InsertSell adds a unit to the sell side.
func (b *UnitBook) InsertSell(e UnitEntry) {
	b.sells.ReplaceOrInsert(e)
}

// WalkBuys iterates buy units highest valuation first. The callback returns
// false to stop.
func (b *UnitBook) WalkBuys(fn func(UnitEntry) bool) {
	b.buys.Ascend(fn)
}

// WalkSells iterates sell units lowest valuation first. The callback returns
// false to stop.
func (b *UnitBook) WalkSells(fn func(UnitEntry) bool) {
	b.sells.Ascend(fn)
}

// BuyCount returns the number of buy units.
func (b *UnitBook) BuyCount() int {
	return b.buys.Len()
}

// SellCount returns the number of sell units.
func (b *UnitBook) SellCount() int {
	return b.sells.Len()
}

// TopBuys returns up to n aggregated valuation levels of the buy side,
// highest first.
func (b *UnitBook) TopBuys(n int) []PriceLevel {
	return topLevels(b.buys, n)
}

// TopSells returns up to n aggregated valuation levels of the sell side,
// lowest first.
func (b *UnitBook) TopSells(n int) []PriceLevel {
	return topLevels(b.sells, n)
}

// topLevels iterates the B-tree in order and aggregates entries into at most
// n levels. Entries of one participant at the same value count once toward
// ParticipantCount.
func topLevels(tree *btree.BTreeG[UnitEntry], n int) []PriceLevel {
	if n <= 0 {
		return nil
	}

	levels := make([]PriceLevel, 0, n)
	var lastParticipant string
	tree.Ascend(func(e UnitEntry) bool {
		if len(levels) > 0 && levels[len(levels)-1].Value == e.Value {
			lvl := &levels[len(levels)-1]
			lvl.Units++
			if e.ParticipantID != lastParticipant {
				lvl.ParticipantCount++
				lastParticipant = e.ParticipantID
			}
			return true
		}
		if len(levels) >= n {
			return false
		}
		levels = append(levels, PriceLevel{Value: e.Value, Units: 1, ParticipantCount: 1})
		lastParticipant = e.ParticipantID
		return true
	})
	return levels
}
