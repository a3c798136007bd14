package domain

import "time"

// Phase is the lifecycle position of a round.
type Phase string

const (
	PhaseOpen      Phase = "open"
	PhaseCleared   Phase = "cleared"
	PhaseConfirmed Phase = "confirmed"
)

// Round is the per-class round state. Confirmed implies Cleared, and
// ClearingPrice is set exactly when Cleared is true.
type Round struct {
	ClassID       string
	Number        int
	UnitValue     int64
	ClearingPrice *int64
	Cleared       bool
	Confirmed     bool
	UpdatedAt     time.Time
}

// Phase derives the lifecycle phase from the flags.
func (r *Round) Phase() Phase {
	switch {
	case r.Confirmed:
		return PhaseConfirmed
	case r.Cleared:
		return PhaseCleared
	default:
		return PhaseOpen
	}
}

// Open starts the next round and clears every lifecycle field together.
func (r *Round) Open() {
	r.Number++
	r.ClearingPrice = nil
	r.Cleared = false
	r.Confirmed = false
}

// Clone returns a deep copy of the round.
func (r *Round) Clone() Round {
	c := *r
	if r.ClearingPrice != nil {
		p := *r.ClearingPrice
		c.ClearingPrice = &p
	}
	return c
}
