package engine

import (
	"github.com/efreitasn/marketlab/internal/domain"
)

// trader returns a submitted participant declaring one unit per value.
func trader(id string, side domain.Side, values ...int64) *domain.Participant {
	return &domain.Participant{
		ClassID:          "c1",
		ParticipantID:    id,
		Money:            500,
		Holdings:         2,
		Side:             side,
		DeclaredQuantity: len(values),
		Valuations:       domain.ValuationsOf(values...),
		Submitted:        true,
	}
}

func buyer(id string, values ...int64) *domain.Participant {
	return trader(id, domain.SideBuy, values...)
}

func seller(id string, values ...int64) *domain.Participant {
	return trader(id, domain.SideSell, values...)
}

func abstainer(id string) *domain.Participant {
	p := trader(id, domain.SideAbstain)
	return p
}

// classOf builds a class holding the given participants.
func classOf(unitValue int64, ps ...*domain.Participant) *domain.Class {
	c := domain.NewClass("c1", unitValue)
	for _, p := range ps {
		c.Participants[p.ParticipantID] = p
	}
	return c
}
