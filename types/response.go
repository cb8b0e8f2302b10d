package types

import "time"

// SeriesResponse is a timing series rendered in milliseconds.
type SeriesResponse struct {
	AvgMs float64 `json:"avgMs"`
	MinMs float64 `json:"minMs"`
	MaxMs float64 `json:"maxMs"`
}

// PhaseStatisticsResponse represents one phase of a group summary.
type PhaseStatisticsResponse struct {
	Phase         Phase          `json:"phase"`
	Mining        SeriesResponse `json:"mining"`
	Propagation   SeriesResponse `json:"propagation"`
	InvolvedNodes int            `json:"involvedNodes"`
}

// GroupStatisticsResponse represents a single row in the group table.
type GroupStatisticsResponse struct {
	StartHeight uint64                  `json:"startHeight"`
	EndHeight   uint64                  `json:"endHeight"`
	GroupSize   int                     `json:"groupSize"`
	PoW         PhaseStatisticsResponse `json:"pow"`
	PoS         PhaseStatisticsResponse `json:"pos"`
	ComputedAt  time.Time               `json:"computedAt"`
}

// ObservationResponse is one arrival at a height.
type ObservationResponse struct {
	Reporter   string    `json:"reporter"`
	Tag        string    `json:"tag"`
	Phase      Phase     `json:"phase"`
	ObservedAt time.Time `json:"observedAt"`
	// Offset from the first arrival at the same height.
	OffsetMs float64 `json:"offsetMs"`
}

// HeightObservationsResponse lists the arrivals at one height in order.
type HeightObservationsResponse struct {
	Height            uint64                `json:"height"`
	Phase             Phase                 `json:"phase"`
	DistinctReporters int                   `json:"distinctReporters"`
	Observations      []ObservationResponse `json:"observations"`
}

// PaginatedGroupHistoryResponse represents paginated stored summaries
type PaginatedGroupHistoryResponse struct {
	Data       []GroupStatisticsResponse `json:"data"`
	Pagination PaginationMeta            `json:"pagination"`
}

// PaginationMeta contains pagination metadata
type PaginationMeta struct {
	Page       int `json:"page"`       // Current page (1-based)
	PerPage    int `json:"perPage"`    // Items per page
	Total      int `json:"total"`      // Total number of items
	TotalPages int `json:"totalPages"` // Total number of pages
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// ToResponse converts a Series to milliseconds.
func (s Series) ToResponse() SeriesResponse {
	return SeriesResponse{
		AvgMs: durationMs(s.Avg),
		MinMs: durationMs(s.Min),
		MaxMs: durationMs(s.Max),
	}
}

// ToResponse converts a PerformanceWindow for the API.
func (w PerformanceWindow) ToResponse() PhaseStatisticsResponse {
	return PhaseStatisticsResponse{
		Phase:         w.Phase,
		Mining:        w.Mining.ToResponse(),
		Propagation:   w.Propagation.ToResponse(),
		InvolvedNodes: w.InvolvedNodes,
	}
}

// ToResponse converts a GroupSummary for the API.
func (g GroupSummary) ToResponse() GroupStatisticsResponse {
	return GroupStatisticsResponse{
		StartHeight: g.StartHeight,
		EndHeight:   g.EndHeight,
		GroupSize:   g.GroupSize,
		PoW:         g.PoW.ToResponse(),
		PoS:         g.PoS.ToResponse(),
		ComputedAt:  g.ComputedAt,
	}
}

// NewHeightObservationsResponse renders the arrivals recorded at height.
func NewHeightObservationsResponse(height uint64, obs []Observation) HeightObservationsResponse {
	resp := HeightObservationsResponse{
		Height:       height,
		Phase:        PhaseOf(height),
		Observations: make([]ObservationResponse, len(obs)),
	}
	seen := make(map[string]struct{}, len(obs))
	for i, o := range obs {
		seen[o.Reporter] = struct{}{}
		resp.Observations[i] = ObservationResponse{
			Reporter:   o.Reporter,
			Tag:        o.Tag,
			Phase:      o.Phase,
			ObservedAt: o.ObservedAt,
			OffsetMs:   durationMs(o.ObservedAt.Sub(obs[0].ObservedAt)),
		}
	}
	resp.DistinctReporters = len(seen)
	return resp
}
