package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"vending-fleet-backend/internal/command"
	"vending-fleet-backend/internal/model"
)

type submitCommandRequest struct {
	Type       string         `json:"type" binding:"required"`
	Parameters map[string]any `json:"parameters"`
	Priority   string         `json:"priority" binding:"omitempty,oneof=low normal high critical"`
	CreatedBy  string         `json:"createdBy"`
}

// PostCommand queues a remote command for a machine.
func (h *Handler) PostCommand(c *gin.Context) {
	var req submitCommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	priority := model.CommandPriority(req.Priority)
	if priority == "" {
		priority = model.PriorityNormal
	}

	cmd, err := h.commands.Submit(c.Request.Context(),
		c.Param("machine_id"), req.Type, req.Parameters, priority, req.CreatedBy)
	if err != nil {
		if errors.Is(err, command.ErrMachineNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "machine not found"})
			return
		}
		var verr *command.ValidationError
		if errors.As(err, &verr) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, cmd)
}

// GetCommands lists a machine's commands, newest first.
func (h *Handler) GetCommands(c *gin.Context) {
	cmds, err := h.store.ListCommandsByMachine(c.Request.Context(), c.Param("machine_id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve commands"})
		return
	}
	c.JSON(http.StatusOK, cmds)
}
