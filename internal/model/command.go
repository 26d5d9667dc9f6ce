package model

import (
	"time"

	"gorm.io/datatypes"
)

// CommandPriority determines the retry budget of a dispatched command.
type CommandPriority string

const (
	PriorityLow      CommandPriority = "low"
	PriorityNormal   CommandPriority = "normal"
	PriorityHigh     CommandPriority = "high"
	PriorityCritical CommandPriority = "critical"
)

// MaxRetriesFor maps a priority to its retry budget.
func MaxRetriesFor(p CommandPriority) int {
	switch p {
	case PriorityCritical:
		return 5
	case PriorityHigh:
		return 3
	case PriorityNormal:
		return 2
	default:
		return 1
	}
}

// CommandStatus is the delivery lifecycle of a command. Transitions past
// pending are driven externally by whatever executes the command, except
// timeout which is set by the periodic sweep.
type CommandStatus string

const (
	CommandPending   CommandStatus = "pending"
	CommandSent      CommandStatus = "sent"
	CommandDelivered CommandStatus = "delivered"
	CommandExecuted  CommandStatus = "executed"
	CommandFailed    CommandStatus = "failed"
	CommandTimeout   CommandStatus = "timeout"
)

// MachineCommand is a queued remote command for a physical controller.
type MachineCommand struct {
	ID             string            `gorm:"primaryKey;size:64" json:"id"`
	MachineID      string            `gorm:"index;size:64;not null" json:"machineId"`
	Type           string            `gorm:"size:64;not null" json:"type"`
	Parameters     datatypes.JSONMap `json:"parameters"`
	Priority       CommandPriority   `gorm:"size:16;not null" json:"priority"`
	MaxRetries     int               `gorm:"not null" json:"maxRetries"`
	Status         CommandStatus     `gorm:"size:16;not null;index" json:"status"`
	TimeoutSeconds int               `gorm:"not null" json:"timeout"`
	CreatedBy      string            `gorm:"size:128" json:"createdBy"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}
