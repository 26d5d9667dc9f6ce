package model

import "time"

// CleaningLog records one cleaning of a machine. The rule sweep reads the
// newest entry per machine to compute cleaning staleness.
type CleaningLog struct {
	ID        int64     `gorm:"autoIncrement;primaryKey" json:"id"`
	MachineID string    `gorm:"index:idx_cleaning_machine_time;size:64;not null" json:"machineId"`
	CleanedAt time.Time `gorm:"index:idx_cleaning_machine_time;not null" json:"cleanedAt"`
	Notes     string    `gorm:"size:512" json:"notes"`
}
