package types

import "time"

// Phase is the role a height holds in the alternating production cycle.
type Phase string

const (
	PhasePoW Phase = "PoW"
	PhasePoS Phase = "PoS"
)

// PhaseOf classifies a height purely by position: odd heights are PoW
// blocks, even heights are the PoS blocks that follow them.
func PhaseOf(height uint64) Phase {
	if height%2 == 1 {
		return PhasePoW
	}
	return PhasePoS
}

// Observation is one node's report that it saw the block at Height.
type Observation struct {
	Reporter   string    `json:"reporter" bson:"reporter"`
	Tag        string    `json:"tag" bson:"tag"`
	Phase      Phase     `json:"phase" bson:"phase"`
	ObservedAt time.Time `json:"observedAt" bson:"observedAt"`
	Height     uint64    `json:"height" bson:"height"`
}

// GenesisReporter identifies the synthetic observation seeded at height 0.
const GenesisReporter = "genesis"

// NewObservation builds an observation whose phase follows from height.
func NewObservation(reporter, tag string, height uint64, at time.Time) Observation {
	return Observation{
		Reporter:   reporter,
		Tag:        tag,
		Phase:      PhaseOf(height),
		ObservedAt: at,
		Height:     height,
	}
}
