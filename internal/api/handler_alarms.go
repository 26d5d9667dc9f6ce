package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"vending-fleet-backend/internal/alarm"
	"vending-fleet-backend/internal/store"
)

// GetAlarms lists alarms, optionally filtered by machine and lifecycle
// status.
func (h *Handler) GetAlarms(c *gin.Context) {
	filter := store.AlarmFilter{
		MachineID: c.Query("machineId"),
		Status:    c.Query("status"),
	}
	alarms, err := h.store.ListAlarms(c.Request.Context(), filter)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve alarms"})
		return
	}
	c.JSON(http.StatusOK, alarms)
}

// AckAlarm marks an active alarm as acknowledged.
func (h *Handler) AckAlarm(c *gin.Context) {
	updated, err := h.alarms.Acknowledge(c.Request.Context(), c.Param("alarm_id"))
	if err != nil {
		abortAlarm(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// ResolveAlarm closes an alarm, reopening its dedup slot.
func (h *Handler) ResolveAlarm(c *gin.Context) {
	updated, err := h.alarms.Resolve(c.Request.Context(), c.Param("alarm_id"))
	if err != nil {
		abortAlarm(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func abortAlarm(c *gin.Context, err error) {
	if errors.Is(err, alarm.ErrAlarmNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "alarm not found"})
		return
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
