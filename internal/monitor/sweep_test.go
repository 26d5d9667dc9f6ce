package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"vending-fleet-backend/config"
	"vending-fleet-backend/internal/alarm"
	"vending-fleet-backend/internal/db"
	"vending-fleet-backend/internal/model"
	"vending-fleet-backend/internal/store"
)

func newSweepEnv(t *testing.T) (*Service, store.Store) {
	testDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := testDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.Migrate(testDB))

	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.Monitor.Enabled = true

	s := store.NewGormStore(testDB)
	alarms := alarm.NewService(s, nil)
	return NewService(cfg, s, alarms), s
}

func addMachine(t *testing.T, s store.Store, id string) {
	t.Helper()
	require.NoError(t, s.CreateMachine(context.Background(), &model.Machine{
		ID:           id,
		SerialNumber: "SN-" + id,
		IoTNumber:    "IOT-" + id,
		Type:         model.MachineTypeIceCream,
		Name:         "Unit " + id,
	}))
}

// markCleaned keeps the maintenance rules quiet so tests can assert on the
// rule under test alone.
func markCleaned(t *testing.T, s store.Store, id string) {
	t.Helper()
	require.NoError(t, s.CreateCleaningLog(context.Background(), &model.CleaningLog{
		MachineID: id,
		CleanedAt: time.Now().UTC(),
	}))
}

func beat(t *testing.T, s store.Store, id string, age time.Duration) {
	t.Helper()
	last := time.Now().UTC().Add(-age).UnixMilli()
	require.NoError(t, s.UpsertHeartbeat(context.Background(), id, last, model.HeartbeatOnline))
}

func activeAlarmCodes(t *testing.T, s store.Store, id string) []string {
	t.Helper()
	alarms, err := s.ListAlarms(context.Background(), store.AlarmFilter{MachineID: id, Status: string(model.AlarmActive)})
	require.NoError(t, err)
	codes := make([]string, len(alarms))
	for i, a := range alarms {
		codes[i] = a.Code
	}
	return codes
}

func TestSweepClassifiesLivenessTiers(t *testing.T) {
	svc, s := newSweepEnv(t)
	ctx := context.Background()

	addMachine(t, s, "online")
	addMachine(t, s, "offline")
	addMachine(t, s, "critical")
	for _, id := range []string{"online", "offline", "critical"} {
		markCleaned(t, s, id)
	}
	beat(t, s, "online", 1*time.Minute)
	beat(t, s, "offline", 10*time.Minute)
	beat(t, s, "critical", 45*time.Minute)

	summary := svc.SweepOnce(ctx)

	assert.Equal(t, 3, summary.TotalMachines)
	assert.Equal(t, 2, summary.OfflineMachines)
	assert.Equal(t, 1, summary.CriticalOfflineMachines)
	assert.Equal(t, 0, summary.FailedMachines)

	assert.Empty(t, activeAlarmCodes(t, s, "online"))
	assert.Equal(t, []string{model.CodeOffline}, activeAlarmCodes(t, s, "offline"))
	assert.Equal(t, []string{model.CodeCriticalOffline}, activeAlarmCodes(t, s, "critical"))
}

func TestSweepPolicyMatchesConfig(t *testing.T) {
	svc, _ := newSweepEnv(t)

	policy := svc.Policy()
	assert.Equal(t, 5*time.Minute, policy.Offline)
	assert.Equal(t, 30*time.Minute, policy.Critical)

	// Exactly at the offline threshold stays in the lower tier.
	last := time.Now().UTC().UnixMilli()
	status := policy.Classify(last, time.UnixMilli(last).Add(5*time.Minute))
	assert.Equal(t, "online", string(status))
}

func TestSweepRaisesNoHeartbeatForMissingRecord(t *testing.T) {
	svc, s := newSweepEnv(t)
	ctx := context.Background()

	addMachine(t, s, "m-1")
	markCleaned(t, s, "m-1")
	// Registration creates a heartbeat row; remove it to simulate a machine
	// predating heartbeat tracking.
	require.NoError(t, s.DB().Where("machine_id = ?", "m-1").Delete(&model.Heartbeat{}).Error)

	summary := svc.SweepOnce(ctx)
	assert.Equal(t, 1, summary.OfflineMachines)
	assert.Equal(t, []string{model.CodeNoHeartbeat}, activeAlarmCodes(t, s, "m-1"))
}

func TestSweepIsIdempotentAcrossCycles(t *testing.T) {
	svc, s := newSweepEnv(t)
	ctx := context.Background()

	addMachine(t, s, "m-1")
	markCleaned(t, s, "m-1")
	beat(t, s, "m-1", 10*time.Minute)

	first := svc.SweepOnce(ctx)
	assert.Equal(t, 1, first.AlarmsCreated)

	second := svc.SweepOnce(ctx)
	assert.Equal(t, 0, second.AlarmsCreated, "second cycle must dedup against the active alarm")
	assert.Len(t, activeAlarmCodes(t, s, "m-1"), 1)
}

func TestSweepOfflineAlarmSurvivesRecovery(t *testing.T) {
	svc, s := newSweepEnv(t)
	ctx := context.Background()

	addMachine(t, s, "m-1")
	markCleaned(t, s, "m-1")
	beat(t, s, "m-1", 10*time.Minute)

	first := svc.SweepOnce(ctx)
	assert.Equal(t, 1, first.AlarmsCreated)

	// The machine comes back: no auto-resolve, and no duplicate either.
	beat(t, s, "m-1", 0)
	second := svc.SweepOnce(ctx)
	assert.Equal(t, 0, second.OfflineMachines)
	assert.Equal(t, 0, second.AlarmsCreated)
	assert.Equal(t, []string{model.CodeOffline}, activeAlarmCodes(t, s, "m-1"))
}

func TestSweepTelemetryRules(t *testing.T) {
	svc, s := newSweepEnv(t)
	ctx := context.Background()

	addMachine(t, s, "m-1")
	markCleaned(t, s, "m-1")
	beat(t, s, "m-1", 0)

	require.NoError(t, s.AppendTelemetry(ctx, &model.TelemetrySample{
		MachineID:   "m-1",
		RecordedAt:  time.Now().UTC(),
		PowerStatus: false,
		Errors:      datatypes.NewJSONSlice([]string{"E42 dispenser jam"}),
		TemperatureReadings: datatypes.NewJSONType(map[string]float64{
			"cabinet": 8.0,
			"ambient": 9.0,
		}),
	}))

	summary := svc.SweepOnce(ctx)
	assert.Equal(t, 3, summary.AlarmsCreated)
	assert.ElementsMatch(t,
		[]string{model.CodePowerOff, model.CodeMachineError, model.CodeTemperatureHigh},
		activeAlarmCodes(t, s, "m-1"))

	// The outage start is persisted so the counter survives restarts.
	m, err := s.GetMachine(ctx, "m-1")
	require.NoError(t, err)
	assert.NotNil(t, m.PowerOutageStart)
}

func TestSweepPowerRestoredClearsCounters(t *testing.T) {
	svc, s := newSweepEnv(t)
	ctx := context.Background()

	addMachine(t, s, "m-1")
	markCleaned(t, s, "m-1")
	beat(t, s, "m-1", 0)

	require.NoError(t, s.AppendTelemetry(ctx, &model.TelemetrySample{
		MachineID:   "m-1",
		RecordedAt:  time.Now().UTC().Add(-time.Minute),
		PowerStatus: false,
	}))
	svc.SweepOnce(ctx)

	require.NoError(t, s.AppendTelemetry(ctx, &model.TelemetrySample{
		MachineID:   "m-1",
		RecordedAt:  time.Now().UTC(),
		PowerStatus: true,
	}))
	svc.SweepOnce(ctx)

	m, err := s.GetMachine(ctx, "m-1")
	require.NoError(t, err)
	assert.Nil(t, m.PowerOutageStart)
	assert.Equal(t, 0, m.HoursWithoutPower)

	// The power alarm does not resolve on recovery; only operators close it.
	assert.Contains(t, activeAlarmCodes(t, s, "m-1"), model.CodePowerOff)
}

func TestSweepTemperatureRecoveryDoesNotClearAlarm(t *testing.T) {
	svc, s := newSweepEnv(t)
	ctx := context.Background()

	addMachine(t, s, "m-1")
	markCleaned(t, s, "m-1")
	beat(t, s, "m-1", 0)

	require.NoError(t, s.AppendTelemetry(ctx, &model.TelemetrySample{
		MachineID:   "m-1",
		RecordedAt:  time.Now().UTC().Add(-time.Minute),
		PowerStatus: true,
		TemperatureReadings: datatypes.NewJSONType(map[string]float64{
			"cabinet": 7.0,
		}),
	}))
	first := svc.SweepOnce(ctx)
	assert.Equal(t, 1, first.AlarmsCreated)

	// A later sample back below the threshold: the alarm stays active and
	// the cooled reading raises nothing new.
	require.NoError(t, s.AppendTelemetry(ctx, &model.TelemetrySample{
		MachineID:   "m-1",
		RecordedAt:  time.Now().UTC(),
		PowerStatus: true,
		TemperatureReadings: datatypes.NewJSONType(map[string]float64{
			"cabinet": 3.0,
		}),
	}))
	second := svc.SweepOnce(ctx)
	assert.Equal(t, 0, second.AlarmsCreated)
	assert.Equal(t, []string{model.CodeTemperatureHigh}, activeAlarmCodes(t, s, "m-1"))
}

func TestSweepModeChangeAlarmsOncePerTransition(t *testing.T) {
	svc, s := newSweepEnv(t)
	ctx := context.Background()

	addMachine(t, s, "m-1")
	markCleaned(t, s, "m-1")
	beat(t, s, "m-1", 0)

	require.NoError(t, s.AppendTelemetry(ctx, &model.TelemetrySample{
		MachineID:       "m-1",
		RecordedAt:      time.Now().UTC(),
		PowerStatus:     true,
		OperationalMode: "Standby",
	}))

	first := svc.SweepOnce(ctx)
	assert.Equal(t, 1, first.AlarmsCreated)

	// Same mode next cycle: the persisted last mode suppresses a repeat.
	second := svc.SweepOnce(ctx)
	assert.Equal(t, 0, second.AlarmsCreated)

	m, err := s.GetMachine(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, "Standby", m.LastOperationalMode)
}

func TestSweepIgnoresUnknownOperationalMode(t *testing.T) {
	svc, s := newSweepEnv(t)
	ctx := context.Background()

	addMachine(t, s, "m-1")
	markCleaned(t, s, "m-1")
	beat(t, s, "m-1", 0)

	require.NoError(t, s.AppendTelemetry(ctx, &model.TelemetrySample{
		MachineID:       "m-1",
		RecordedAt:      time.Now().UTC(),
		PowerStatus:     true,
		OperationalMode: "Defrost Burst",
	}))

	summary := svc.SweepOnce(ctx)
	assert.Equal(t, 0, summary.AlarmsCreated)
}

func TestSweepCleaningRules(t *testing.T) {
	svc, s := newSweepEnv(t)
	ctx := context.Background()

	addMachine(t, s, "never")
	addMachine(t, s, "overdue")
	addMachine(t, s, "fresh")
	for _, id := range []string{"never", "overdue", "fresh"} {
		beat(t, s, id, 0)
	}

	require.NoError(t, s.CreateCleaningLog(ctx, &model.CleaningLog{
		MachineID: "overdue",
		CleanedAt: time.Now().UTC().Add(-10 * 24 * time.Hour),
	}))
	markCleaned(t, s, "fresh")

	svc.SweepOnce(ctx)

	assert.Equal(t, []string{model.CodeNeverCleaned}, activeAlarmCodes(t, s, "never"))
	assert.Equal(t, []string{model.CodeCleaningOverdue}, activeAlarmCodes(t, s, "overdue"))
	assert.Empty(t, activeAlarmCodes(t, s, "fresh"))

	m, err := s.GetMachine(ctx, "overdue")
	require.NoError(t, err)
	assert.Equal(t, 10, m.DaysSinceCleaning)
}

// failingStore wraps a real store and fails heartbeat lookups for one
// machine, simulating a per-machine evaluation fault.
type failingStore struct {
	store.Store
	failID string
}

func (f *failingStore) GetHeartbeat(ctx context.Context, machineID string) (*model.Heartbeat, error) {
	if machineID == f.failID {
		return nil, errors.New("storage fault")
	}
	return f.Store.GetHeartbeat(ctx, machineID)
}

func TestSweepIsolatesPerMachineFailures(t *testing.T) {
	svc, s := newSweepEnv(t)
	ctx := context.Background()

	addMachine(t, s, "bad")
	addMachine(t, s, "good")
	markCleaned(t, s, "good")
	beat(t, s, "good", 10*time.Minute)

	wrapped := &failingStore{Store: s, failID: "bad"}
	svc.store = wrapped
	svc.alarms = alarm.NewService(wrapped, nil)

	summary := svc.SweepOnce(ctx)

	assert.Equal(t, 1, summary.FailedMachines)
	assert.Equal(t, 1, summary.OfflineMachines, "healthy machines still evaluate")
	assert.Equal(t, []string{model.CodeOffline}, activeAlarmCodes(t, s, "good"))
}
