package http

import (
	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine, handler *Handler) {
	api := router.Group("/api/v1")
	{
		api.GET("/prices", handler.ListPrices)
		api.GET("/prices/:symbol/latest", handler.GetLatestPrice)
		api.GET("/instruments", handler.ListInstruments)
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
}
