package model

import "time"

// AlarmType groups alarm codes into notification categories.
type AlarmType string

const (
	AlarmTypeOffline     AlarmType = "offline"
	AlarmTypeError       AlarmType = "error"
	AlarmTypeMaintenance AlarmType = "maintenance"
	AlarmTypeModeChange  AlarmType = "mode_change"
)

// Alarm codes discriminate conditions within a type.
const (
	CodeOffline          = "OFFLINE"
	CodeCriticalOffline  = "CRITICAL_OFFLINE"
	CodeNoHeartbeat      = "NO_HEARTBEAT"
	CodeInvalidHeartbeat = "INVALID_HEARTBEAT"
	CodePowerOff         = "POWER_OFF"
	CodeMachineError     = "MACHINE_ERROR"
	CodeTemperatureHigh  = "TEMPERATURE_HIGH"
	CodeNeverCleaned     = "NEVER_CLEANED"
	CodeCleaningOverdue  = "CLEANING_OVERDUE"
	CodeModeChange       = "MODE_CHANGE"
)

// AlarmSeverity orders alarms for the notification gate. Only high and
// critical alarms trigger email.
type AlarmSeverity string

const (
	SeverityLow      AlarmSeverity = "low"
	SeverityMedium   AlarmSeverity = "medium"
	SeverityHigh     AlarmSeverity = "high"
	SeverityCritical AlarmSeverity = "critical"
)

// AlarmStatus is the alarm lifecycle state. Transitions out of active happen
// only through operator action.
type AlarmStatus string

const (
	AlarmActive       AlarmStatus = "active"
	AlarmAcknowledged AlarmStatus = "acknowledged"
	AlarmResolved     AlarmStatus = "resolved"
)

// Alarm records one raised condition instance. The partial unique index
// backs the dedup invariant: at most one active row per (machine, type,
// code).
type Alarm struct {
	ID        string        `gorm:"primaryKey;size:64" json:"id"`
	MachineID string        `gorm:"size:64;not null;uniqueIndex:idx_alarm_active,where:status = 'active'" json:"machineId"`
	Type      AlarmType     `gorm:"size:32;not null;uniqueIndex:idx_alarm_active" json:"type"`
	Code      string        `gorm:"size:64;not null;uniqueIndex:idx_alarm_active" json:"code"`
	Severity  AlarmSeverity `gorm:"size:16;not null" json:"severity"`
	Status    AlarmStatus   `gorm:"size:16;not null;index" json:"status"`
	Message   string        `gorm:"size:1024" json:"message"`
	RaisedAt  time.Time     `gorm:"not null" json:"raisedAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}
