package domain

import "time"

// HistoryRecord is an immutable settlement snapshot for one participant in one
// round. Side, DeclaredQuantity and Valuations are the pre-settlement
// submission; the balances are post-settlement.
type HistoryRecord struct {
	RecordID         string
	ClassID          string
	ParticipantID    string
	Round            int
	Side             Side
	DeclaredQuantity int
	Valuations       []int64
	MatchedUnits     int64
	ClearingPrice    int64
	UnitValue        int64
	Money            int64
	Holdings         int64
	Payoff           int64
	Info             int64
	RecordedAt       time.Time
}
