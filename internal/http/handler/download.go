package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"revos.app/pipeline/internal/store"
	"revos.app/pipeline/internal/webhook"
)

// DownloadHandler resolves the signed lead-magnet links the backup message
// carries. Links expire and are bound to one lead; anything off is a 403.
type DownloadHandler struct {
	activities store.ActivityStore
	campaigns  store.CampaignStore
	secret     string

	now func() time.Time
}

func NewDownloadHandler(activities store.ActivityStore, campaigns store.CampaignStore, secret string) *DownloadHandler {
	return &DownloadHandler{
		activities: activities,
		campaigns:  campaigns,
		secret:     secret,
		now:        time.Now,
	}
}

func (h *DownloadHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()

	leadID, err := strconv.ParseInt(c.Query("lead"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid lead"})
		return
	}
	exp, err := strconv.ParseInt(c.Query("exp"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid expiry"})
		return
	}

	if !webhook.VerifyDownloadSig(leadID, exp, c.Query("sig"), h.secret, h.now()) {
		c.JSON(http.StatusForbidden, gin.H{"error": "link expired or invalid"})
		return
	}

	lead, err := h.activities.GetByID(ctx, leadID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "lead not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to load lead", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve download"})
		return
	}

	campaign, err := h.campaigns.GetByID(ctx, lead.CampaignID)
	if err != nil || campaign.LeadMagnetURL == "" {
		slog.ErrorContext(ctx, "failed to resolve lead magnet", "error", err)
		c.JSON(http.StatusNotFound, gin.H{"error": "lead magnet not found"})
		return
	}

	c.Redirect(http.StatusFound, campaign.LeadMagnetURL)
}
