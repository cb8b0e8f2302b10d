package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bft-labs/hybrid-chain-logger/metrics"
	"github.com/bft-labs/hybrid-chain-logger/types"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeChain struct {
	agg   *metrics.Aggregator
	stats types.ServerStats
}

func (f *fakeChain) View(fn func(*metrics.Aggregator)) { fn(f.agg) }
func (f *fakeChain) Stats() types.ServerStats { return f.stats }

// newChain holds one computed group (heights 1-2, group size 1) and the
// first report of the next group.
func newChain(t *testing.T) *fakeChain {
	t.Helper()
	agg := metrics.NewAggregator(1, epoch, metrics.WithClock(func() time.Time { return epoch }))
	agg.Append(types.NewObservation("A", "PoW", 1, epoch.Add(time.Second)))
	agg.Append(types.NewObservation("B", "PoW", 1, epoch.Add(1200*time.Millisecond)))
	agg.Append(types.NewObservation("A", "PoS", 2, epoch.Add(3*time.Second)))
	_, ok := agg.Append(types.NewObservation("A", "PoW", 3, epoch.Add(4*time.Second)))
	require.True(t, ok)
	return &fakeChain{agg: agg, stats: types.ServerStats{AcceptedConnections: 3, Messages: 4}}
}

func get(t *testing.T, r http.Handler, target string, out any) int {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	if out != nil && w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
	}
	return w.Code
}

func newTestRouter(t *testing.T) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(RouterConfig{Chain: newChain(t)})
}

func TestHealth(t *testing.T) {
	var body map[string]string
	require.Equal(t, http.StatusOK, get(t, newTestRouter(t), "/health", &body))
	assert.Equal(t, "ok", body["status"])
}

func TestGetChainInfo(t *testing.T) {
	var info types.ChainInfo
	require.Equal(t, http.StatusOK, get(t, newTestRouter(t), "/v1/chain", &info))
	assert.Equal(t, 1, info.GroupSize)
	assert.Equal(t, uint64(3), info.HighestHeight)
	assert.Equal(t, 3, info.Heights)
	assert.Equal(t, 4, info.Observations)
	assert.Equal(t, 1, info.GroupsComputed)
}

func TestGetGroups(t *testing.T) {
	r := newTestRouter(t)

	var body struct {
		Data []types.GroupStatisticsResponse `json:"data"`
	}
	require.Equal(t, http.StatusOK, get(t, r, "/v1/groups?from=2", &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, uint64(2), body.Data[0].EndHeight)
	assert.Equal(t, 2, body.Data[0].PoW.InvolvedNodes)
	assert.InDelta(t, 200.0, body.Data[0].PoW.Propagation.MaxMs, 1e-9)

	require.Equal(t, http.StatusOK, get(t, r, "/v1/groups?from=3&to=10", &body))
	assert.Empty(t, body.Data)

	assert.Equal(t, http.StatusBadRequest, get(t, r, "/v1/groups?from=x", nil))
}

func TestGetGroup(t *testing.T) {
	r := newTestRouter(t)

	var group types.GroupStatisticsResponse
	require.Equal(t, http.StatusOK, get(t, r, "/v1/groups/2", &group))
	assert.Equal(t, uint64(1), group.StartHeight)
	// height 2 first seen at +3s, height 1 at +1s
	assert.InDelta(t, 2000.0, group.PoS.Mining.AvgMs, 1e-9)

	assert.Equal(t, http.StatusNotFound, get(t, r, "/v1/groups/4", nil))
	assert.Equal(t, http.StatusBadRequest, get(t, r, "/v1/groups/latest", nil))
}

func TestGetHeightObservations(t *testing.T) {
	r := newTestRouter(t)

	var resp types.HeightObservationsResponse
	require.Equal(t, http.StatusOK, get(t, r, "/v1/heights/1/observations", &resp))
	assert.Equal(t, types.PhasePoW, resp.Phase)
	assert.Equal(t, 2, resp.DistinctReporters)
	require.Len(t, resp.Observations, 2)
	assert.Equal(t, "A", resp.Observations[0].Reporter)
	assert.Equal(t, "B", resp.Observations[1].Reporter)
	assert.InDelta(t, 200.0, resp.Observations[1].OffsetMs, 1e-9)

	assert.Equal(t, http.StatusNotFound, get(t, r, "/v1/heights/99/observations", nil))
}

func TestGetServerStats(t *testing.T) {
	var stats types.ServerStats
	require.Equal(t, http.StatusOK, get(t, newTestRouter(t), "/v1/server/stats", &stats))
	assert.Equal(t, uint64(3), stats.AcceptedConnections)
	assert.Equal(t, uint64(4), stats.Messages)
}

func TestHistoryRouteNeedsMongo(t *testing.T) {
	// Without a collection the path falls through to the end height route.
	assert.Equal(t, http.StatusBadRequest, get(t, newTestRouter(t), "/v1/groups/history", nil))
}

func TestWriteMethodsRejected(t *testing.T) {
	w := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/chain", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
