package router

import (
	"github.com/gin-gonic/gin"

	"revos.app/pipeline/internal/http/handler"
)

type Handlers struct {
	Campaign *handler.CampaignHandler
	Pod      *handler.PodHandler
	Download *handler.DownloadHandler
}

func SetupRoutes(router *gin.Engine, h Handlers) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	router.GET("/download", h.Download.Get)

	v1 := router.Group("/api/v1")
	{
		campaigns := v1.Group("/campaigns")
		campaigns.POST("/:id/polling/start", h.Campaign.StartPolling)
		campaigns.POST("/:id/polling/stop", h.Campaign.StopPolling)

		pods := v1.Group("/pods")
		pods.POST("/:id/polling/start", h.Pod.StartPolling)
	}
}
