package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"vending-fleet-backend/internal/liveness"
	"vending-fleet-backend/internal/notification"
)

// machineStatusResponse is one row of the status snapshot.
type machineStatusResponse struct {
	MachineID       string          `json:"machineId"`
	Name            string          `json:"name"`
	Type            string          `json:"type"`
	Status          liveness.Status `json:"status"`
	LastSeenMS      int64           `json:"lastSeenMs"`
	Offline         bool            `json:"offline"`
	CriticalOffline bool            `json:"criticalOffline"`
}

// GetStatusCheck returns a read-only per-machine liveness snapshot derived
// from the canonical policy. Both tiers are reported explicitly so callers
// that used to apply their own 30-minute cutoff read the critical flag
// instead of re-deriving it.
func (h *Handler) GetStatusCheck(c *gin.Context) {
	ctx := c.Request.Context()
	machines, err := h.store.ListMachines(ctx)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve machines"})
		return
	}

	now := time.Now().UTC()
	response := make([]machineStatusResponse, 0, len(machines))
	for _, machine := range machines {
		row := machineStatusResponse{
			MachineID: machine.ID,
			Name:      machine.Name,
			Type:      string(machine.Type),
			Status:    liveness.StatusInvalid,
		}
		hb, err := h.store.GetHeartbeat(ctx, machine.ID)
		if err != nil && err != gorm.ErrRecordNotFound {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve heartbeats"})
			return
		}
		if err == nil {
			row.LastSeenMS = hb.LastSeenMS
			row.Status = h.policy.Classify(hb.LastSeenMS, now)
		}
		row.Offline = row.Status != liveness.StatusOnline
		row.CriticalOffline = row.Status == liveness.StatusCritical || row.Status == liveness.StatusInvalid
		response = append(response, row)
	}

	c.JSON(http.StatusOK, response)
}

// PostMonitor triggers one sweep cycle on demand, for an external scheduler
// or manual operation.
func (h *Handler) PostMonitor(c *gin.Context) {
	summary := h.sweeper.SweepOnce(c.Request.Context())
	c.JSON(http.StatusOK, summary)
}

type sendEmailRequest struct {
	To          []string `json:"to" binding:"required,min=1"`
	Subject     string   `json:"subject" binding:"required"`
	HTMLContent string   `json:"htmlContent" binding:"required"`
	From        string   `json:"from"`
}

// PostSendEmail is the internal notification transport boundary.
func (h *Handler) PostSendEmail(c *gin.Context) {
	var req sendEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	provider, ok := h.dispatcher.SendRaw(c.Request.Context(), &notification.Message{
		To:       req.To,
		From:     req.From,
		Subject:  req.Subject,
		HTMLBody: req.HTMLContent,
	})
	c.JSON(http.StatusOK, gin.H{
		"success":   ok,
		"provider":  provider,
		"timestamp": time.Now().UTC(),
	})
}
