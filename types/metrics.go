package types

import "time"

// Series accumulates one timing series (mining or propagation) of a phase.
type Series struct {
	Min   time.Duration `json:"min" bson:"min"`     // Smallest counted sample, 0 when none was counted
	Max   time.Duration `json:"max" bson:"max"`     // Largest sample
	Sum   time.Duration `json:"sum" bson:"sum"`     // Sum of all samples
	Count int           `json:"count" bson:"count"` // Number of samples added
	Avg   time.Duration `json:"avg" bson:"avg"`     // Sum divided by the group size, set on completion

	hasMin bool
}

// Add records a sample in sum, max and min.
func (s *Series) Add(d time.Duration) {
	s.addSum(d)
	s.addMin(d)
}

// AddExcludingMin records a sample in sum and max only.
func (s *Series) AddExcludingMin(d time.Duration) {
	s.addSum(d)
}

func (s *Series) addSum(d time.Duration) {
	s.Sum += d
	if s.Count == 0 || d > s.Max {
		s.Max = d
	}
	s.Count++
}

func (s *Series) addMin(d time.Duration) {
	if !s.hasMin || d < s.Min {
		s.Min = d
		s.hasMin = true
	}
}

// Finish sets Avg to Sum divided by pairs.
func (s *Series) Finish(pairs int) {
	if pairs <= 0 {
		return
	}
	s.Avg = s.Sum / time.Duration(pairs)
}

// PerformanceWindow holds the timing of one phase over one group.
type PerformanceWindow struct {
	Phase         Phase  `json:"phase" bson:"phase"`
	Mining        Series `json:"mining" bson:"mining"`               // Delay since the previous height was first seen
	Propagation   Series `json:"propagation" bson:"propagation"`     // Spread between first and last reporter
	InvolvedNodes int    `json:"involvedNodes" bson:"involvedNodes"` // Max distinct PoW reporters at any pair
}

// GroupSummary is the statistics record emitted once per completed group.
type GroupSummary struct {
	StartHeight uint64            `json:"startHeight" bson:"startHeight"`
	EndHeight   uint64            `json:"endHeight" bson:"endHeight"`
	GroupSize   int               `json:"groupSize" bson:"groupSize"`
	PoW         PerformanceWindow `json:"pow" bson:"pow"`
	PoS         PerformanceWindow `json:"pos" bson:"pos"`
	ComputedAt  time.Time         `json:"computedAt" bson:"computedAt"`
}

// Contains reports whether the group's height range intersects [from, to].
func (g GroupSummary) Contains(from, to uint64) bool {
	return g.EndHeight >= from && g.StartHeight <= to
}

// ChainInfo describes the current contents of the chain index.
type ChainInfo struct {
	GroupSize      int    `json:"groupSize"`
	HighestHeight  uint64 `json:"highestHeight"`
	Heights        int    `json:"heights"`
	Observations   int    `json:"observations"`
	GroupsComputed int    `json:"groupsComputed"`
	GroupsSkipped  int    `json:"groupsSkipped"`
}

// ServerStats counts connection and message activity.
type ServerStats struct {
	AcceptedConnections uint64 `json:"acceptedConnections"`
	ActiveConnections   int64  `json:"activeConnections"`
	Messages            uint64 `json:"messages"`
	StatisticsMessages  uint64 `json:"statisticsMessages"`
	MalformedMessages   uint64 `json:"malformedMessages"`
	RecordFailures      uint64 `json:"recordFailures"`
}
