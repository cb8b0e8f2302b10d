package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/bft-labs/hybrid-chain-logger/metrics"
	"github.com/bft-labs/hybrid-chain-logger/types"
	"github.com/bft-labs/hybrid-chain-logger/utils"
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
)

// GetGroupHistoryHandler returns paginated summaries persisted in MongoDB
// for the requested height range.
func GetGroupHistoryHandler(coll *mongo.Collection) gin.HandlerFunc {
	return func(c *gin.Context) {
		from, to, err := utils.HeightWindowFromContext(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		page, perPage := utils.PageFromContext(c, 100, 1000)

		ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
		defer cancel()

		result, err := metrics.GetGroupHistory(ctx, coll, from, to, page, perPage)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		data := make([]types.GroupStatisticsResponse, len(result.Data))
		for i, s := range result.Data {
			data[i] = s.ToResponse()
		}

		totalPages := (result.Total + perPage - 1) / perPage
		c.JSON(http.StatusOK, types.PaginatedGroupHistoryResponse{
			Data: data,
			Pagination: types.PaginationMeta{
				Page:       page,
				PerPage:    perPage,
				Total:      result.Total,
				TotalPages: totalPages,
			},
		})
	}
}
