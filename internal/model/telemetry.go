package model

import (
	"time"

	"gorm.io/datatypes"
)

// TelemetrySample is an append-only device report. The rule sweep reads the
// latest sample per machine by RecordedAt.
type TelemetrySample struct {
	ID                  int64                        `gorm:"autoIncrement;primaryKey" json:"id"`
	MachineID           string                       `gorm:"index:idx_telemetry_machine_time;size:64;not null" json:"machineId"`
	RecordedAt          time.Time                    `gorm:"index:idx_telemetry_machine_time;not null" json:"recordedAt"`
	PowerStatus         bool                         `gorm:"not null" json:"powerStatus"`
	OperationalMode     string                       `gorm:"size:64" json:"operationalMode"`
	Errors              datatypes.JSONSlice[string]  `json:"errors"`
	TemperatureReadings datatypes.JSONType[map[string]float64] `json:"temperatureReadings"`
	BatteryLevel        float64                      `json:"batteryLevel"`
	SignalStrength      float64                      `json:"signalStrength"`
}
