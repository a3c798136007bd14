package domain

import (
	"errors"
	"testing"
)

func TestParticipant_Declared(t *testing.T) {
	p := &Participant{
		ParticipantID:    "s1",
		Side:             SideBuy,
		DeclaredQuantity: 3,
		Valuations:       ValuationsOf(30, 20, 10),
	}

	got, err := p.Declared()
	if err != nil {
		t.Fatalf("Declared() unexpected error: %v", err)
	}
	want := []int64{30, 20, 10}
	if len(got) != len(want) {
		t.Fatalf("Declared() len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Declared()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestParticipant_Declared_IgnoresSlotsPastDeclaredRange(t *testing.T) {
	p := &Participant{
		ParticipantID:    "s1",
		DeclaredQuantity: 1,
		Valuations:       ValuationsOf(7, 99, 99),
	}

	got, err := p.Declared()
	if err != nil {
		t.Fatalf("Declared() unexpected error: %v", err)
	}
	if len(got) != 1 || got[0] != 7 {
		t.Fatalf("Declared() = %v, want [7]", got)
	}
}

func TestParticipant_Declared_EmptySlotIsIntegrityError(t *testing.T) {
	p := &Participant{
		ParticipantID:    "s1",
		Side:             SideBuy,
		DeclaredQuantity: 3,
		Valuations:       ValuationsOf(10, 9),
	}

	_, err := p.Declared()
	if !errors.Is(err, ErrIntegrity) {
		t.Fatalf("Declared() error = %v, want ErrIntegrity", err)
	}
}

func TestParticipant_Declared_QuantityOutOfRange(t *testing.T) {
	p := &Participant{ParticipantID: "s1", DeclaredQuantity: SlotCapacity + 1}
	if _, err := p.Declared(); !errors.Is(err, ErrIntegrity) {
		t.Fatalf("Declared() error = %v, want ErrIntegrity", err)
	}
}

func TestParticipant_Trades(t *testing.T) {
	tests := []struct {
		name      string
		side      Side
		submitted bool
		want      bool
	}{
		{"submitted buyer", SideBuy, true, true},
		{"submitted seller", SideSell, true, true},
		{"abstainer", SideAbstain, true, false},
		{"unsubmitted buyer", SideBuy, false, false},
		{"unset", SideUnset, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Participant{Side: tt.side, Submitted: tt.submitted}
			if got := p.Trades(); got != tt.want {
				t.Errorf("Trades() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParticipant_ResetRound_PreservesBalances(t *testing.T) {
	matched := int64(-2)
	payoff := int64(420)
	p := &Participant{
		ParticipantID:    "s1",
		Money:            300,
		Holdings:         1,
		Side:             SideSell,
		DeclaredQuantity: 2,
		Valuations:       ValuationsOf(5, 6),
		Submitted:        true,
		MatchedUnits:     &matched,
		Payoff:           &payoff,
	}

	p.ResetRound()

	if p.Side != SideUnset || p.DeclaredQuantity != 0 || p.Submitted || p.MatchedUnits != nil {
		t.Fatalf("per-round fields not reset: %+v", p)
	}
	if p.Valuations != (Valuations{}) {
		t.Fatalf("valuations not cleared: %+v", p.Valuations)
	}
	if p.Money != 300 || p.Holdings != 1 {
		t.Fatalf("balances changed: money=%d holdings=%d", p.Money, p.Holdings)
	}
	if p.Payoff == nil || *p.Payoff != 420 {
		t.Fatalf("payoff not preserved: %v", p.Payoff)
	}
}

func TestParticipant_DefaultToAbstain(t *testing.T) {
	p := &Participant{ParticipantID: "s1"}
	p.DefaultToAbstain()
	if p.Side != SideAbstain || !p.Submitted || p.DeclaredQuantity != 0 {
		t.Fatalf("unexpected state after DefaultToAbstain: %+v", p)
	}
}

func TestParticipant_Clone_IsDeep(t *testing.T) {
	matched := int64(1)
	p := &Participant{ParticipantID: "s1", MatchedUnits: &matched}
	c := p.Clone()
	*c.MatchedUnits = 5
	c.Valuations[0] = Slot{Value: 1, Set: true}
	if *p.MatchedUnits != 1 {
		t.Fatal("Clone shares MatchedUnits with the original")
	}
	if p.Valuations[0].Set {
		t.Fatal("Clone shares Valuations with the original")
	}
}
