package metrics

import (
	"time"

	"github.com/bft-labs/hybrid-chain-logger/types"
	"go.uber.org/zap"
)

// Aggregator keeps every observation by height and summarizes each group of
// 2*groupSize heights when the first report for the next group arrives.
//
// Aggregator has no internal locking. The server serializes every call
// behind its process-wide lock, which also orders group triggers.
type Aggregator struct {
	groupSize int
	index     map[uint64][]types.Observation

	highest      uint64
	observations int

	summaries []types.GroupSummary
	handled   map[uint64]struct{} // end heights already summarized or skipped
	skipped   int

	sinks  []SummarySink
	logger *zap.Logger
	now    func() time.Time
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithSinks adds destinations for computed summaries, called in order.
func WithSinks(sinks ...SummarySink) Option {
	return func(a *Aggregator) {
		a.sinks = append(a.sinks, sinks...)
	}
}

// WithLogger sets the logger used for skipped groups and sink failures.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

// WithClock overrides the clock stamped on summaries.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

// NewAggregator creates an aggregator whose index is seeded with a genesis
// observation at height 0 taken at genesisAt.
func NewAggregator(groupSize int, genesisAt time.Time, opts ...Option) *Aggregator {
	if groupSize <= 0 {
		groupSize = 1
	}
	a := &Aggregator{
		groupSize: groupSize,
		index:     make(map[uint64][]types.Observation),
		handled:   make(map[uint64]struct{}),
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.index[0] = []types.Observation{types.NewObservation(types.GenesisReporter, "genesis", 0, genesisAt)}
	return a
}

// GroupSize returns the number of PoW/PoS pairs per group.
func (a *Aggregator) GroupSize() int {
	return a.groupSize
}

func (a *Aggregator) window() uint64 {
	return uint64(a.groupSize) * 2
}

// Append stores obs at its height. The first observation at a height that
// opens a new group triggers the summary of the group before it; that
// summary is returned with ok set.
func (a *Aggregator) Append(obs types.Observation) (summary types.GroupSummary, ok bool) {
	list, exists := a.index[obs.Height]
	a.index[obs.Height] = append(list, obs)
	a.observations++
	if obs.Height > a.highest {
		a.highest = obs.Height
	}

	if exists || obs.Height%a.window() != 1 {
		return types.GroupSummary{}, false
	}
	return a.CalculateGroupStatistics(obs.Height)
}

// CalculateGroupStatistics summarizes the group [untilHeight-2*groupSize,
// untilHeight-1]. It does nothing when that group would start below height
// 1, when it was already handled, or when any of its heights (or the one
// before it) has no observation yet.
func (a *Aggregator) CalculateGroupStatistics(untilHeight uint64) (types.GroupSummary, bool) {
	w := a.window()
	if untilHeight < w+1 {
		return types.GroupSummary{}, false
	}
	start, end := untilHeight-w, untilHeight-1
	if _, done := a.handled[end]; done {
		return types.GroupSummary{}, false
	}
	a.handled[end] = struct{}{}

	for h := start - 1; h <= end; h++ {
		if len(a.index[h]) == 0 {
			a.skipped++
			a.logger.Warn("skipping group with missing height",
				zap.Uint64("start_height", start),
				zap.Uint64("end_height", end),
				zap.Uint64("missing_height", h),
			)
			return types.GroupSummary{}, false
		}
	}

	summary := types.GroupSummary{
		StartHeight: start,
		EndHeight:   end,
		GroupSize:   a.groupSize,
		PoW:         types.PerformanceWindow{Phase: types.PhasePoW},
		PoS:         types.PerformanceWindow{Phase: types.PhasePoS},
		ComputedAt:  a.now(),
	}

	involved := 0
	for pow := start; pow < end; pow += 2 {
		pos := pow + 1
		powObs, posObs := a.index[pow], a.index[pos]

		var powMining time.Duration
		if pow > 1 {
			powMining = firstSeen(powObs).Sub(firstSeen(a.index[pow-1]))
		}
		summary.PoW.Mining.Add(powMining)
		summary.PoW.Propagation.Add(spread(powObs))

		posMining := firstSeen(posObs).Sub(firstSeen(a.index[pos-1]))
		if posMining == 0 {
			summary.PoS.Mining.AddExcludingMin(posMining)
		} else {
			summary.PoS.Mining.Add(posMining)
		}
		summary.PoS.Propagation.Add(spread(posObs))

		if n := distinctReporters(powObs); n > involved {
			involved = n
		}
	}

	for _, s := range []*types.Series{
		&summary.PoW.Mining, &summary.PoW.Propagation,
		&summary.PoS.Mining, &summary.PoS.Propagation,
	} {
		s.Finish(a.groupSize)
	}
	summary.PoW.InvolvedNodes = involved
	summary.PoS.InvolvedNodes = involved

	a.summaries = append(a.summaries, summary)
	a.emit(summary)
	return summary, true
}

func (a *Aggregator) emit(summary types.GroupSummary) {
	for _, sink := range a.sinks {
		if err := sink.Publish(summary); err != nil {
			a.logger.Warn("failed to publish group statistics",
				zap.Uint64("start_height", summary.StartHeight),
				zap.Uint64("end_height", summary.EndHeight),
				zap.Error(err),
			)
		}
	}
}

func firstSeen(obs []types.Observation) time.Time {
	return obs[0].ObservedAt
}

// spread is the time between the first and the last report at one height.
func spread(obs []types.Observation) time.Duration {
	return obs[len(obs)-1].ObservedAt.Sub(obs[0].ObservedAt)
}

func distinctReporters(obs []types.Observation) int {
	seen := make(map[string]struct{}, len(obs))
	for _, o := range obs {
		seen[o.Reporter] = struct{}{}
	}
	return len(seen)
}

// Observations returns a copy of the arrival-ordered observations at height.
func (a *Aggregator) Observations(height uint64) ([]types.Observation, bool) {
	list, ok := a.index[height]
	if !ok {
		return nil, false
	}
	out := make([]types.Observation, len(list))
	copy(out, list)
	return out, true
}

// Summaries returns the computed summaries intersecting [from, to].
func (a *Aggregator) Summaries(from, to uint64) []types.GroupSummary {
	out := make([]types.GroupSummary, 0, len(a.summaries))
	for _, s := range a.summaries {
		if s.Contains(from, to) {
			out = append(out, s)
		}
	}
	return out
}

// Summary returns the summary of the group ending at endHeight.
func (a *Aggregator) Summary(endHeight uint64) (types.GroupSummary, bool) {
	for _, s := range a.summaries {
		if s.EndHeight == endHeight {
			return s, true
		}
	}
	return types.GroupSummary{}, false
}

// Info describes the index contents. The genesis seed is not counted as
// an observation.
func (a *Aggregator) Info() types.ChainInfo {
	return types.ChainInfo{
		GroupSize:      a.groupSize,
		HighestHeight:  a.highest,
		Heights:        len(a.index) - 1,
		Observations:   a.observations,
		GroupsComputed: len(a.summaries),
		GroupsSkipped:  a.skipped,
	}
}
