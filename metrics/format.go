package metrics

import (
	"fmt"
	"strings"

	"github.com/bft-labs/hybrid-chain-logger/types"
)

// FormatSummary renders a summary as the text block written to the
// statistics log.
func FormatSummary(s types.GroupSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Heights %d-%d (group size %d)\n", s.StartHeight, s.EndHeight, s.GroupSize)
	writeWindow(&b, s.PoW)
	writeWindow(&b, s.PoS)
	return b.String()
}

func writeWindow(b *strings.Builder, w types.PerformanceWindow) {
	fmt.Fprintf(b, "  %s: mining avg=%s min=%s max=%s; propagation avg=%s min=%s max=%s; involved nodes=%d\n",
		w.Phase,
		w.Mining.Avg, w.Mining.Min, w.Mining.Max,
		w.Propagation.Avg, w.Propagation.Min, w.Propagation.Max,
		w.InvolvedNodes,
	)
}
