package domain

import (
	"fmt"
	"time"
)

// Side is the trading intent a participant declares for a round.
type Side string

const (
	SideUnset   Side = ""
	SideBuy     Side = "buy"
	SideSell    Side = "sell"
	SideAbstain Side = "abstain"
)

// SlotCapacity is the compile-time upper bound on valuation slots. The
// configured MAX_UNITS must not exceed it.
const SlotCapacity = 10

// Slot is one optional per-unit valuation.
type Slot struct {
	Value int64
	Set   bool
}

// Valuations holds a participant's per-unit valuations by slot index. For a
// buyer slot i is the value of the (i+1)-th unit bought; for a seller it is
// the minimum acceptable price for the (i+1)-th unit given up.
type Valuations [SlotCapacity]Slot

// ValuationsOf builds a Valuations array with the first len(values) slots set.
// It panics if len(values) > SlotCapacity; callers validate first.
func ValuationsOf(values ...int64) Valuations {
	var v Valuations
	for i, x := range values {
		v[i] = Slot{Value: x, Set: true}
	}
	return v
}

// Participant is one member of a class. Money and Holdings carry over between
// rounds; Side, DeclaredQuantity, Valuations, Submitted and MatchedUnits are
// per-round.
type Participant struct {
	ClassID          string
	ParticipantID    string
	Money            int64
	Holdings         int64
	Info             int64 // private signal drawn at join time
	Side             Side
	DeclaredQuantity int
	Valuations       Valuations
	Submitted        bool
	MatchedUnits     *int64 // nil until settled
	Payoff           *int64 // nil until first settlement, then carried over
	JoinedAt         time.Time
	UpdatedAt        time.Time
}

// Clone returns a deep copy of the participant.
func (p *Participant) Clone() *Participant {
	c := *p
	if p.MatchedUnits != nil {
		m := *p.MatchedUnits
		c.MatchedUnits = &m
	}
	if p.Payoff != nil {
		po := *p.Payoff
		c.Payoff = &po
	}
	return &c
}

// Trades reports whether the participant takes part in clearing.
func (p *Participant) Trades() bool {
	return p.Submitted && (p.Side == SideBuy || p.Side == SideSell)
}

// Declared returns the first DeclaredQuantity valuations. Slots past the
// declared range are never read. A declared slot that holds no value is an
// integrity violation.
func (p *Participant) Declared() ([]int64, error) {
	if p.DeclaredQuantity < 0 || p.DeclaredQuantity > SlotCapacity {
		return nil, fmt.Errorf("participant %s: declared quantity %d out of range: %w",
			p.ParticipantID, p.DeclaredQuantity, ErrIntegrity)
	}
	values := make([]int64, p.DeclaredQuantity)
	for i := 0; i < p.DeclaredQuantity; i++ {
		slot := p.Valuations[i]
		if !slot.Set {
			return nil, fmt.Errorf("participant %s: declared valuation slot %d is empty: %w",
				p.ParticipantID, i, ErrIntegrity)
		}
		values[i] = slot.Value
	}
	return values, nil
}

// DefaultToAbstain marks a participant that never submitted as an abstainer.
func (p *Participant) DefaultToAbstain() {
	p.Side = SideAbstain
	p.DeclaredQuantity = 0
	p.Valuations = Valuations{}
	p.Submitted = true
}

// ResetRound clears every per-round field, keeping money, holdings and payoff.
func (p *Participant) ResetRound() {
	p.Side = SideUnset
	p.DeclaredQuantity = 0
	p.Valuations = Valuations{}
	p.Submitted = false
	p.MatchedUnits = nil
}
