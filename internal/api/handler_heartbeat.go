package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"vending-fleet-backend/internal/metrics"
	"vending-fleet-backend/internal/model"
	"vending-fleet-backend/internal/store"
)

type heartbeatRequest struct {
	MachineID  string            `json:"machineId"`
	DeviceData *store.DeviceData `json:"deviceData"`
}

// PostHeartbeat ingests a device liveness report. Devices identify
// themselves by IoT number (or machine id); an optional deviceData payload
// is persisted as a telemetry sample.
func (h *Handler) PostHeartbeat(c *gin.Context) {
	var req heartbeatRequest
	if c.Request.Method == http.MethodPost && c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}
	if req.MachineID == "" {
		req.MachineID = c.Query("machineId")
	}
	if req.MachineID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "machineId is required"})
		return
	}

	ctx := c.Request.Context()
	machine, err := h.store.FindMachineByDeviceKey(ctx, req.MachineID)
	if err == gorm.ErrRecordNotFound {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown machine"})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	now := time.Now().UTC()
	if err := h.store.UpsertHeartbeat(ctx, machine.ID, now.UnixMilli(), model.HeartbeatOnline); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	metrics.IncHeartbeat()

	if req.DeviceData.HasTelemetry() {
		if err := h.store.AppendTelemetry(ctx, sampleFromDeviceData(machine.ID, now, req.DeviceData)); err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"machineId": machine.ID,
		"timestamp": now,
	})
}

// sampleFromDeviceData maps the optional device payload onto a telemetry
// row. Power defaults to on when the device says nothing about it.
func sampleFromDeviceData(machineID string, now time.Time, d *store.DeviceData) *model.TelemetrySample {
	sample := &model.TelemetrySample{
		MachineID:   machineID,
		RecordedAt:  now,
		PowerStatus: true,
	}
	if d.PowerStatus != nil {
		sample.PowerStatus = *d.PowerStatus
	}
	if d.OperationalMode != nil {
		sample.OperationalMode = *d.OperationalMode
	}
	if len(d.Errors) > 0 {
		sample.Errors = datatypes.NewJSONSlice(d.Errors)
	}
	if len(d.TemperatureReadings) > 0 {
		sample.TemperatureReadings = datatypes.NewJSONType(d.TemperatureReadings)
	}
	if d.BatteryLevel != nil {
		sample.BatteryLevel = *d.BatteryLevel
	}
	if d.SignalStrength != nil {
		sample.SignalStrength = *d.SignalStrength
	}
	return sample
}
