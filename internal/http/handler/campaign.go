package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"revos.app/pipeline/internal/service"
)

type CampaignHandler struct {
	polling service.PollingService
}

func NewCampaignHandler(polling service.PollingService) *CampaignHandler {
	return &CampaignHandler{polling: polling}
}

// StartPolling enqueues the first poll cycle for a campaign; every cycle
// after that schedules its own successor.
func (h *CampaignHandler) StartPolling(c *gin.Context) {
	ctx := c.Request.Context()

	campaignID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid campaign id"})
		return
	}

	if err := h.polling.Start(ctx, campaignID); err != nil {
		switch {
		case errors.Is(err, service.ErrCampaignNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "campaign not found"})
		case errors.Is(err, service.ErrCampaignInactive):
			c.JSON(http.StatusConflict, gin.H{"error": "campaign is not active"})
		default:
			slog.ErrorContext(ctx, "failed to start polling", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start polling"})
		}
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "polling started"})
}

// StopPolling removes the campaign's parked cycles. An in-flight cycle may
// still finish; it quiesces against the campaign's active flag.
func (h *CampaignHandler) StopPolling(c *gin.Context) {
	ctx := c.Request.Context()

	campaignID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid campaign id"})
		return
	}

	removed, err := h.polling.Stop(ctx, campaignID)
	if err != nil {
		if errors.Is(err, service.ErrCampaignNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "campaign not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to stop polling", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to stop polling"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "polling stopped", "removed_jobs": removed})
}
