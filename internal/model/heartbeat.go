package model

import "time"

// HeartbeatStatus is the last status reported by the device itself. The
// effective status is derived from LastSeenMS by the liveness policy and
// supersedes this value.
type HeartbeatStatus string

const (
	HeartbeatOnline  HeartbeatStatus = "online"
	HeartbeatOffline HeartbeatStatus = "offline"
)

// Heartbeat holds the last liveness signal per machine. One row per machine;
// created at registration, upserted on every device report, deleted with the
// machine.
type Heartbeat struct {
	MachineID  string          `gorm:"primaryKey;size:64" json:"machineId"`
	LastSeenMS int64           `gorm:"column:last_seen_ms;not null" json:"lastSeenMs"`
	Status     HeartbeatStatus `gorm:"size:16;not null" json:"status"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}
