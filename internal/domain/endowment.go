package domain

import (
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/mroth/weightedrand"
)

// Endowment is the starting position handed to a participant on join.
type Endowment struct {
	Money    int64
	Holdings int64
	Info     int64
}

// EndowmentPolicy draws starting positions for new participants.
type EndowmentPolicy interface {
	Draw(unitValue int64) (Endowment, error)
}

// lockedRand serialises access to a *rand.Rand, which is not safe for
// concurrent use.
type lockedRand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// infoSignal draws floor(Exp(mean = unitValue)).
func (l *lockedRand) infoSignal(unitValue int64) int64 {
	if unitValue <= 0 {
		return 0
	}
	return int64(l.rng.ExpFloat64() * float64(unitValue))
}

// FixedEndowment gives every participant the same money and holdings.
type FixedEndowment struct {
	Money    int64
	Holdings int64
	r        lockedRand
}

// NewFixedEndowment creates a FixedEndowment drawing info signals from rng.
func NewFixedEndowment(money, holdings int64, rng *rand.Rand) *FixedEndowment {
	return &FixedEndowment{Money: money, Holdings: holdings, r: lockedRand{rng: rng}}
}

// Draw returns the fixed position plus a fresh info signal.
func (f *FixedEndowment) Draw(unitValue int64) (Endowment, error) {
	f.r.mu.Lock()
	defer f.r.mu.Unlock()
	return Endowment{
		Money:    f.Money,
		Holdings: f.Holdings,
		Info:     f.r.infoSignal(unitValue),
	}, nil
}

// WeightedEndowment draws holdings from 1..4 with weights v³, v², v, 1 where
// v = unitValue/100, so classes with a valuable good start with more units.
// Money is BaseMoney - UnitCost*holdings.
type WeightedEndowment struct {
	BaseMoney int64
	UnitCost  int64
	r         lockedRand
}

// NewWeightedEndowment creates a WeightedEndowment backed by rng.
func NewWeightedEndowment(baseMoney, unitCost int64, rng *rand.Rand) *WeightedEndowment {
	return &WeightedEndowment{BaseMoney: baseMoney, UnitCost: unitCost, r: lockedRand{rng: rng}}
}

// weightScale turns fractional weights into the integer weights the chooser needs.
const weightScale = 1000

// HoldingWeights returns the integer draw weights for holdings 1..4.
func HoldingWeights(unitValue int64) [4]uint {
	v := float64(unitValue) / 100
	raw := [4]float64{v * v * v, v * v, v, 1}
	var w [4]uint
	for i, x := range raw {
		scaled := math.Round(x * weightScale)
		if scaled < 1 {
			scaled = 1
		}
		w[i] = uint(scaled)
	}
	return w
}

// Draw picks holdings by weight and derives money from them.
func (e *WeightedEndowment) Draw(unitValue int64) (Endowment, error) {
	weights := HoldingWeights(unitValue)
	choices := make([]weightedrand.Choice, len(weights))
	for i, w := range weights {
		choices[i] = weightedrand.NewChoice(int64(i+1), w)
	}
	chooser, err := weightedrand.NewChooser(choices...)
	if err != nil {
		return Endowment{}, fmt.Errorf("build endowment chooser: %w", err)
	}

	e.r.mu.Lock()
	defer e.r.mu.Unlock()
	holdings := chooser.PickSource(e.r.rng).(int64)
	return Endowment{
		Money:    e.BaseMoney - e.UnitCost*holdings,
		Holdings: holdings,
		Info:     e.r.infoSignal(unitValue),
	}, nil
}

// UnitValueRange draws class unit values uniformly from [Min, Max].
type UnitValueRange struct {
	Min int64
	Max int64
	r   lockedRand
}

// NewUnitValueRange creates a UnitValueRange backed by rng. Callers ensure
// min <= max.
func NewUnitValueRange(min, max int64, rng *rand.Rand) *UnitValueRange {
	return &UnitValueRange{Min: min, Max: max, r: lockedRand{rng: rng}}
}

// Draw returns a unit value in [Min, Max].
func (u *UnitValueRange) Draw() int64 {
	u.r.mu.Lock()
	defer u.r.mu.Unlock()
	return u.Min + u.r.rng.Int63n(u.Max-u.Min+1)
}
