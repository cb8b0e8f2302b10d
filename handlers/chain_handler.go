package handlers

import (
	"net/http"
	"strconv"

	"github.com/bft-labs/hybrid-chain-logger/metrics"
	"github.com/bft-labs/hybrid-chain-logger/types"
	"github.com/bft-labs/hybrid-chain-logger/utils"
	"github.com/gin-gonic/gin"
)

// ChainReader gives handlers serialized access to live collector state.
type ChainReader interface {
	View(fn func(agg *metrics.Aggregator))
	Stats() types.ServerStats
}

func HealthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// GetChainInfoHandler returns the size of the chain index and how many
// groups have been summarized or skipped.
func GetChainInfoHandler(chain ChainReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		var info types.ChainInfo
		chain.View(func(agg *metrics.Aggregator) {
			info = agg.Info()
		})
		c.JSON(http.StatusOK, info)
	}
}

// GetGroupsHandler returns computed group summaries intersecting the
// 'from'/'to' height range.
func GetGroupsHandler(chain ChainReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		from, to, err := utils.HeightWindowFromContext(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var summaries []types.GroupSummary
		chain.View(func(agg *metrics.Aggregator) {
			summaries = agg.Summaries(from, to)
		})

		data := make([]types.GroupStatisticsResponse, len(summaries))
		for i, s := range summaries {
			data[i] = s.ToResponse()
		}
		c.JSON(http.StatusOK, gin.H{"data": data})
	}
}

func GetGroupHandler(chain ChainReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		end, err := strconv.ParseUint(c.Param("endHeight"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end height"})
			return
		}

		var (
			summary types.GroupSummary
			found   bool
		)
		chain.View(func(agg *metrics.Aggregator) {
			summary, found = agg.Summary(end)
		})
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
			return
		}
		c.JSON(http.StatusOK, summary.ToResponse())
	}
}

// GetHeightObservationsHandler returns every report received for a height
// in arrival order.
func GetHeightObservationsHandler(chain ChainReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		height, err := strconv.ParseUint(c.Param("height"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid height"})
			return
		}

		var (
			obs   []types.Observation
			found bool
		)
		chain.View(func(agg *metrics.Aggregator) {
			obs, found = agg.Observations(height)
		})
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": "height not found"})
			return
		}
		c.JSON(http.StatusOK, types.NewHeightObservationsResponse(height, obs))
	}
}

func GetServerStatsHandler(chain ChainReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, chain.Stats())
	}
}
