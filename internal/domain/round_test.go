package domain

import "testing"

func TestRound_Phase(t *testing.T) {
	tests := []struct {
		name  string
		round Round
		want  Phase
	}{
		{"open", Round{}, PhaseOpen},
		{"cleared", Round{Cleared: true}, PhaseCleared},
		{"confirmed", Round{Cleared: true, Confirmed: true}, PhaseConfirmed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.round.Phase(); got != tt.want {
				t.Errorf("Phase() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRound_Open_ClearsLifecycleFields(t *testing.T) {
	price := int64(70)
	r := Round{Number: 3, UnitValue: 120, ClearingPrice: &price, Cleared: true, Confirmed: true}

	r.Open()

	if r.Number != 4 {
		t.Errorf("Number = %d, want 4", r.Number)
	}
	if r.ClearingPrice != nil || r.Cleared || r.Confirmed {
		t.Errorf("lifecycle fields not cleared: %+v", r)
	}
	if r.UnitValue != 120 {
		t.Errorf("UnitValue = %d, want 120 (fixed until reset)", r.UnitValue)
	}
}

func TestRound_Clone_IsDeep(t *testing.T) {
	price := int64(10)
	r := Round{ClearingPrice: &price}
	c := r.Clone()
	*c.ClearingPrice = 11
	if *r.ClearingPrice != 10 {
		t.Fatal("Clone shares ClearingPrice with the original")
	}
}
