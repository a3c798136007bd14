package domain

import "sort"

// Class is the unit of atomic state: one round record plus every participant
// of the class. Stores hand a Class to an update function and commit all of
// its changes together, or none of them.
type Class struct {
	ID           string
	Round        Round
	Participants map[string]*Participant

	// PendingHistory collects records appended during the current update.
	// Stores persist and then drop it on commit.
	PendingHistory []HistoryRecord

	// HistoryWiped asks the store to delete the class's committed history
	// before PendingHistory is written.
	HistoryWiped bool
}

// NewClass creates an empty class in round 1.
func NewClass(id string, unitValue int64) *Class {
	return &Class{
		ID: id,
		Round: Round{
			ClassID:   id,
			Number:    1,
			UnitValue: unitValue,
		},
		Participants: make(map[string]*Participant),
	}
}

// Clone returns a deep copy without pending writes.
func (c *Class) Clone() *Class {
	out := &Class{
		ID:           c.ID,
		Round:        c.Round.Clone(),
		Participants: make(map[string]*Participant, len(c.Participants)),
	}
	for id, p := range c.Participants {
		out.Participants[id] = p.Clone()
	}
	return out
}

// SortedParticipants returns the participants ordered by id.
func (c *Class) SortedParticipants() []*Participant {
	out := make([]*Participant, 0, len(c.Participants))
	for _, p := range c.Participants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ParticipantID < out[j].ParticipantID
	})
	return out
}

// AppendHistory queues records for the store to persist on commit.
func (c *Class) AppendHistory(records ...HistoryRecord) {
	c.PendingHistory = append(c.PendingHistory, records...)
}

// Wipe removes every participant and marks the history for deletion.
func (c *Class) Wipe() {
	c.Participants = make(map[string]*Participant)
	c.PendingHistory = nil
	c.HistoryWiped = true
}
