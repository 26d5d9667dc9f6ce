package model

import (
	"time"

	"gorm.io/datatypes"
)

// MachineType identifies the kind of vending unit.
type MachineType string

const (
	MachineTypeSnack    MachineType = "snack"
	MachineTypeIceCream MachineType = "ice_cream"
	MachineTypeCoffee   MachineType = "coffee"
	MachineTypePerfume  MachineType = "perfume"
)

// Machine represents one physical vending unit.
type Machine struct {
	ID           string      `gorm:"primaryKey;size:64" json:"id"`
	SerialNumber string      `gorm:"size:64" json:"serialNumber"`
	IoTNumber    string      `gorm:"column:iot_number;index;size:64" json:"iotNumber"`
	Model        string      `gorm:"size:128" json:"model"`
	Type         MachineType `gorm:"size:32;not null" json:"type"`
	Name         string      `gorm:"size:256" json:"name"`

	// Notification configuration.
	EmailAddresses        datatypes.JSONSlice[string] `json:"emailAddresses"`
	EnableOfflineAlerts   bool                        `gorm:"not null" json:"enableOfflineAlerts"`
	EnableErrorAlerts     bool                        `gorm:"not null" json:"enableErrorAlerts"`
	AlertThresholdMinutes int                         `json:"alertThresholdMinutes"`

	// Monitoring counters mutated by the rule sweep, not by operator CRUD.
	DaysSinceCleaning   int        `json:"daysSinceCleaning"`
	HoursWithoutPower   int        `json:"hoursWithoutPower"`
	PowerOutageStart    *time.Time `json:"powerOutageStart,omitempty"`
	LastOperationalMode string     `gorm:"size:64" json:"lastOperationalMode"`

	// TestMachine marks units created by simulators or manual testing so
	// they can be bulk-deleted without name heuristics.
	TestMachine bool `gorm:"not null" json:"testMachine"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
