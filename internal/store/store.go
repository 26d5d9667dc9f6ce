package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"vending-fleet-backend/internal/model"
)

// Store defines the interface for all database operations.
type Store interface {
	DB() *gorm.DB

	CreateMachine(ctx context.Context, m *model.Machine) error
	GetMachine(ctx context.Context, id string) (*model.Machine, error)
	FindMachineByDeviceKey(ctx context.Context, key string) (*model.Machine, error)
	ListMachines(ctx context.Context) ([]model.Machine, error)
	DeleteMachine(ctx context.Context, id string) error
	DeleteTestMachines(ctx context.Context) (int64, error)
	SaveMachineMonitoring(ctx context.Context, m *model.Machine) error

	UpsertHeartbeat(ctx context.Context, machineID string, lastSeenMS int64, status model.HeartbeatStatus) error
	GetHeartbeat(ctx context.Context, machineID string) (*model.Heartbeat, error)

	AppendTelemetry(ctx context.Context, sample *model.TelemetrySample) error
	LatestTelemetry(ctx context.Context, machineID string) (*model.TelemetrySample, error)

	CreateAlarm(ctx context.Context, alarm *model.Alarm) error
	GetAlarm(ctx context.Context, id string) (*model.Alarm, error)
	FindActiveAlarm(ctx context.Context, machineID string, alarmType model.AlarmType, code string) (*model.Alarm, error)
	ListAlarms(ctx context.Context, filter AlarmFilter) ([]model.Alarm, error)
	SetAlarmStatus(ctx context.Context, id string, status model.AlarmStatus) error
	CountActiveAlarmsByMachine(ctx context.Context) (map[string]int64, error)

	CreateCleaningLog(ctx context.Context, entry *model.CleaningLog) error
	LatestCleaningLog(ctx context.Context, machineID string) (*model.CleaningLog, error)
	ListCleaningLogs(ctx context.Context, machineID string) ([]model.CleaningLog, error)

	CreateCommand(ctx context.Context, cmd *model.MachineCommand) error
	ListCommandsByMachine(ctx context.Context, machineID string) ([]model.MachineCommand, error)
	ListPendingCommands(ctx context.Context) ([]model.MachineCommand, error)
	SetCommandStatus(ctx context.Context, id string, status model.CommandStatus) error
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// DB exposes the raw connection for handlers that manage associations
// directly (push subscriptions).
func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// CreateMachine registers a machine together with its initial heartbeat
// record (offline, last seen at registration time).
func (s *gormStore) CreateMachine(ctx context.Context, m *model.Machine) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(m).Error; err != nil {
			return fmt.Errorf("failed to create machine %s: %w", m.ID, err)
		}
		hb := model.Heartbeat{
			MachineID:  m.ID,
			LastSeenMS: m.CreatedAt.UnixMilli(),
			Status:     model.HeartbeatOffline,
		}
		if err := tx.Create(&hb).Error; err != nil {
			return fmt.Errorf("failed to create heartbeat for machine %s: %w", m.ID, err)
		}
		return nil
	})
}

func (s *gormStore) GetMachine(ctx context.Context, id string) (*model.Machine, error) {
	var m model.Machine
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// FindMachineByDeviceKey resolves a device-facing identifier: the IoT number
// first, then the machine id as a fallback. Duplicate IoT numbers are not
// rejected at write time; the newest registration wins a lookup.
func (s *gormStore) FindMachineByDeviceKey(ctx context.Context, key string) (*model.Machine, error) {
	var m model.Machine
	err := s.db.WithContext(ctx).
		Where("iot_number = ?", key).
		Order("created_at DESC").
		First(&m).Error
	if err == gorm.ErrRecordNotFound {
		err = s.db.WithContext(ctx).First(&m, "id = ?", key).Error
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *gormStore) ListMachines(ctx context.Context) ([]model.Machine, error) {
	var machines []model.Machine
	if err := s.db.WithContext(ctx).Order("created_at").Find(&machines).Error; err != nil {
		return nil, err
	}
	return machines, nil
}

// DeleteMachine removes a machine and everything it owns: heartbeat,
// telemetry, cleaning logs, commands and alarms.
func (s *gormStore) DeleteMachine(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&model.Machine{}, "id = ?", id)
		if res.Error != nil {
			return fmt.Errorf("failed to delete machine %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return deleteMachineOwned(tx, id)
	})
}

// DeleteTestMachines removes machines explicitly flagged as test units.
// This replaces a name-pattern cleanup heuristic with an allow list.
func (s *gormStore) DeleteTestMachines(ctx context.Context) (int64, error) {
	var deleted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := tx.Model(&model.Machine{}).Where("test_machine = ?", true).Pluck("id", &ids).Error; err != nil {
			return err
		}
		for _, id := range ids {
			if err := deleteMachineOwned(tx, id); err != nil {
				return err
			}
		}
		res := tx.Where("test_machine = ?", true).Delete(&model.Machine{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		return nil
	})
	return deleted, err
}

func deleteMachineOwned(tx *gorm.DB, machineID string) error {
	for _, m := range []any{
		&model.Heartbeat{},
		&model.TelemetrySample{},
		&model.CleaningLog{},
		&model.MachineCommand{},
		&model.Alarm{},
	} {
		if err := tx.Where("machine_id = ?", machineID).Delete(m).Error; err != nil {
			return fmt.Errorf("failed to delete records owned by machine %s: %w", machineID, err)
		}
	}
	return nil
}

// SaveMachineMonitoring persists only the sweep-owned counters so the rule
// sweep never races operator edits of the notification config.
func (s *gormStore) SaveMachineMonitoring(ctx context.Context, m *model.Machine) error {
	return s.db.WithContext(ctx).Model(&model.Machine{}).
		Where("id = ?", m.ID).
		Updates(map[string]any{
			"days_since_cleaning":   m.DaysSinceCleaning,
			"hours_without_power":   m.HoursWithoutPower,
			"power_outage_start":    m.PowerOutageStart,
			"last_operational_mode": m.LastOperationalMode,
		}).Error
}

// UpsertHeartbeat writes the per-machine heartbeat row, creating it if the
// machine predates heartbeat tracking.
func (s *gormStore) UpsertHeartbeat(ctx context.Context, machineID string, lastSeenMS int64, status model.HeartbeatStatus) error {
	hb := model.Heartbeat{
		MachineID:  machineID,
		LastSeenMS: lastSeenMS,
		Status:     status,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "machine_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_seen_ms", "status", "updated_at"}),
	}).Create(&hb).Error
}

func (s *gormStore) GetHeartbeat(ctx context.Context, machineID string) (*model.Heartbeat, error) {
	var hb model.Heartbeat
	if err := s.db.WithContext(ctx).First(&hb, "machine_id = ?", machineID).Error; err != nil {
		return nil, err
	}
	return &hb, nil
}

func (s *gormStore) AppendTelemetry(ctx context.Context, sample *model.TelemetrySample) error {
	if sample.RecordedAt.IsZero() {
		sample.RecordedAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Create(sample).Error
}

func (s *gormStore) LatestTelemetry(ctx context.Context, machineID string) (*model.TelemetrySample, error) {
	var sample model.TelemetrySample
	err := s.db.WithContext(ctx).
		Where("machine_id = ?", machineID).
		Order("recorded_at DESC").
		First(&sample).Error
	if err != nil {
		return nil, err
	}
	return &sample, nil
}

func (s *gormStore) CreateAlarm(ctx context.Context, alarm *model.Alarm) error {
	return s.db.WithContext(ctx).Create(alarm).Error
}

func (s *gormStore) GetAlarm(ctx context.Context, id string) (*model.Alarm, error) {
	var alarm model.Alarm
	if err := s.db.WithContext(ctx).First(&alarm, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &alarm, nil
}

// FindActiveAlarm returns the active alarm for the dedup key, or
// gorm.ErrRecordNotFound.
func (s *gormStore) FindActiveAlarm(ctx context.Context, machineID string, alarmType model.AlarmType, code string) (*model.Alarm, error) {
	var alarm model.Alarm
	err := s.db.WithContext(ctx).
		Where("machine_id = ? AND type = ? AND code = ? AND status = ?",
			machineID, alarmType, code, model.AlarmActive).
		First(&alarm).Error
	if err != nil {
		return nil, err
	}
	return &alarm, nil
}

func (s *gormStore) ListAlarms(ctx context.Context, filter AlarmFilter) ([]model.Alarm, error) {
	q := s.db.WithContext(ctx).Model(&model.Alarm{})
	if filter.MachineID != "" {
		q = q.Where("machine_id = ?", filter.MachineID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	var alarms []model.Alarm
	if err := q.Order("raised_at DESC").Find(&alarms).Error; err != nil {
		return nil, err
	}
	return alarms, nil
}

func (s *gormStore) SetAlarmStatus(ctx context.Context, id string, status model.AlarmStatus) error {
	res := s.db.WithContext(ctx).Model(&model.Alarm{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CountActiveAlarmsByMachine aggregates active alarm counts in one query for
// the machine listing.
func (s *gormStore) CountActiveAlarmsByMachine(ctx context.Context) (map[string]int64, error) {
	type aggRow struct {
		MachineID string
		Total     int64
	}
	var aggs []aggRow
	err := s.db.WithContext(ctx).
		Model(&model.Alarm{}).
		Select("machine_id as machine_id, COUNT(*) as total").
		Where("status = ?", model.AlarmActive).
		Group("machine_id").
		Scan(&aggs).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(aggs))
	for _, a := range aggs {
		counts[a.MachineID] = a.Total
	}
	return counts, nil
}

func (s *gormStore) CreateCleaningLog(ctx context.Context, entry *model.CleaningLog) error {
	if entry.CleanedAt.IsZero() {
		entry.CleanedAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Create(entry).Error
}

func (s *gormStore) LatestCleaningLog(ctx context.Context, machineID string) (*model.CleaningLog, error) {
	var entry model.CleaningLog
	err := s.db.WithContext(ctx).
		Where("machine_id = ?", machineID).
		Order("cleaned_at DESC").
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *gormStore) ListCleaningLogs(ctx context.Context, machineID string) ([]model.CleaningLog, error) {
	var entries []model.CleaningLog
	err := s.db.WithContext(ctx).
		Where("machine_id = ?", machineID).
		Order("cleaned_at DESC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *gormStore) CreateCommand(ctx context.Context, cmd *model.MachineCommand) error {
	return s.db.WithContext(ctx).Create(cmd).Error
}

func (s *gormStore) ListCommandsByMachine(ctx context.Context, machineID string) ([]model.MachineCommand, error) {
	var cmds []model.MachineCommand
	err := s.db.WithContext(ctx).
		Where("machine_id = ?", machineID).
		Order("created_at DESC").
		Find(&cmds).Error
	if err != nil {
		return nil, err
	}
	return cmds, nil
}

func (s *gormStore) ListPendingCommands(ctx context.Context) ([]model.MachineCommand, error) {
	var cmds []model.MachineCommand
	err := s.db.WithContext(ctx).
		Where("status = ?", model.CommandPending).
		Find(&cmds).Error
	if err != nil {
		return nil, err
	}
	return cmds, nil
}

func (s *gormStore) SetCommandStatus(ctx context.Context, id string, status model.CommandStatus) error {
	res := s.db.WithContext(ctx).Model(&model.MachineCommand{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
