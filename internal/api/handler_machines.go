package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"vending-fleet-backend/internal/model"
)

type registerMachineRequest struct {
	SerialNumber          string   `json:"serialNumber" binding:"required"`
	IoTNumber             string   `json:"iotNumber" binding:"required"`
	Model                 string   `json:"model"`
	Type                  string   `json:"type" binding:"required,oneof=snack ice_cream coffee perfume"`
	Name                  string   `json:"name"`
	EmailAddresses        []string `json:"emailAddresses"`
	EnableOfflineAlerts   bool     `json:"enableOfflineAlerts"`
	EnableErrorAlerts     bool     `json:"enableErrorAlerts"`
	AlertThresholdMinutes int      `json:"alertThresholdMinutes"`
	TestMachine           bool     `json:"testMachine"`
}

// PostMachine registers a machine. The store creates the initial heartbeat
// record in the same transaction.
func (h *Handler) PostMachine(c *gin.Context) {
	var req registerMachineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	machine := model.Machine{
		ID:                    uuid.NewString(),
		SerialNumber:          req.SerialNumber,
		IoTNumber:             req.IoTNumber,
		Model:                 req.Model,
		Type:                  model.MachineType(req.Type),
		Name:                  req.Name,
		EmailAddresses:        datatypes.NewJSONSlice(req.EmailAddresses),
		EnableOfflineAlerts:   req.EnableOfflineAlerts,
		EnableErrorAlerts:     req.EnableErrorAlerts,
		AlertThresholdMinutes: req.AlertThresholdMinutes,
		TestMachine:           req.TestMachine,
	}
	if err := h.store.CreateMachine(c.Request.Context(), &machine); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, machine)
}

// machineListResponse flattens a machine with its active alarm count.
type machineListResponse struct {
	model.Machine
	ActiveAlarms int64 `json:"activeAlarms"`
}

// GetMachines lists the fleet with per-machine active alarm counts,
// aggregated in a single query.
func (h *Handler) GetMachines(c *gin.Context) {
	ctx := c.Request.Context()
	machines, err := h.store.ListMachines(ctx)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve machines"})
		return
	}
	counts, err := h.store.CountActiveAlarmsByMachine(ctx)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to aggregate alarms"})
		return
	}

	responses := make([]machineListResponse, 0, len(machines))
	for _, m := range machines {
		responses = append(responses, machineListResponse{
			Machine:      m,
			ActiveAlarms: counts[m.ID],
		})
	}
	c.JSON(http.StatusOK, responses)
}

// GetMachine returns one machine.
func (h *Handler) GetMachine(c *gin.Context) {
	machine, err := h.store.GetMachine(c.Request.Context(), c.Param("machine_id"))
	if err == gorm.ErrRecordNotFound {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "machine not found"})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, machine)
}

// DeleteMachine removes a machine and everything it owns.
func (h *Handler) DeleteMachine(c *gin.Context) {
	err := h.store.DeleteMachine(c.Request.Context(), c.Param("machine_id"))
	if err == gorm.ErrRecordNotFound {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "machine not found"})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteTestMachines removes machines explicitly flagged for testing. No
// name heuristics are applied.
func (h *Handler) DeleteTestMachines(c *gin.Context) {
	deleted, err := h.store.DeleteTestMachines(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}
