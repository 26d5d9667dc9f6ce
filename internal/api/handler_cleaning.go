package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"vending-fleet-backend/internal/model"
)

type cleaningLogRequest struct {
	CleanedAt *time.Time `json:"cleanedAt"`
	Notes     string     `json:"notes"`
}

// PostCleaningLog records a cleaning event. The hygiene counters reset on
// the next rule sweep rather than inline.
func (h *Handler) PostCleaningLog(c *gin.Context) {
	var req cleaningLogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	machineID := c.Param("machine_id")
	if _, err := h.store.GetMachine(c.Request.Context(), machineID); err != nil {
		if err == gorm.ErrRecordNotFound {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "machine not found"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	entry := model.CleaningLog{
		MachineID: machineID,
		Notes:     req.Notes,
	}
	if req.CleanedAt != nil {
		entry.CleanedAt = *req.CleanedAt
	}
	if err := h.store.CreateCleaningLog(c.Request.Context(), &entry); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, entry)
}

// GetCleaningLogs lists a machine's cleaning history, newest first.
func (h *Handler) GetCleaningLogs(c *gin.Context) {
	entries, err := h.store.ListCleaningLogs(c.Request.Context(), c.Param("machine_id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve cleaning logs"})
		return
	}
	c.JSON(http.StatusOK, entries)
}
