package handlers

import (
	"github.com/bft-labs/hybrid-chain-logger/middleware"
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// RouterConfig wires the query API.
type RouterConfig struct {
	Chain          ChainReader
	Logger         *zap.Logger
	AllowedOrigins []string
	RateLimiter    *middleware.RateLimiter
	// History enables /v1/groups/history when set.
	History *mongo.Collection
}

// NewRouter builds the read-only query API.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Logger != nil {
		router.Use(middleware.RequestLogger(cfg.Logger))
	}

	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))
	router.Use(middleware.RequestValidationMiddleware())
	if cfg.RateLimiter != nil {
		router.Use(middleware.RateLimitMiddleware(cfg.RateLimiter))
	}

	router.GET("/health", HealthHandler())

	v1 := router.Group("/v1")
	{
		v1.GET("/chain", GetChainInfoHandler(cfg.Chain))
		v1.GET("/server/stats", GetServerStatsHandler(cfg.Chain))

		v1.GET("/groups", GetGroupsHandler(cfg.Chain))
		if cfg.History != nil {
			v1.GET("/groups/history", GetGroupHistoryHandler(cfg.History))
		}
		v1.GET("/groups/:endHeight", GetGroupHandler(cfg.Chain))

		v1.GET("/heights/:height/observations", GetHeightObservationsHandler(cfg.Chain))
	}

	return router
}
