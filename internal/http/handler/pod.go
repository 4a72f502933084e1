package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"revos.app/pipeline/internal/service"
)

type PodHandler struct {
	pods service.PodService
}

func NewPodHandler(pods service.PodService) *PodHandler {
	return &PodHandler{pods: pods}
}

func (h *PodHandler) StartPolling(c *gin.Context) {
	ctx := c.Request.Context()

	podID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pod id"})
		return
	}

	if err := h.pods.Start(ctx, podID); err != nil {
		switch {
		case errors.Is(err, service.ErrPodNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "pod not found"})
		case errors.Is(err, service.ErrPodInactive):
			c.JSON(http.StatusConflict, gin.H{"error": "pod is not active"})
		default:
			slog.ErrorContext(ctx, "failed to start pod polling", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start pod polling"})
		}
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "pod polling started"})
}
