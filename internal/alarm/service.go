// Package alarm implements the deduplicated alarm store: raise-or-get
// semantics keyed by (machine, type, code) over active alarms.
package alarm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"vending-fleet-backend/internal/metrics"
	"vending-fleet-backend/internal/model"
	"vending-fleet-backend/internal/store"
)

// ErrAlarmNotFound is returned for lifecycle operations on unknown alarms.
var ErrAlarmNotFound = errors.New("alarm: alarm not found")

// Notifier delivers a raised alarm to the machine's configured recipients.
// Implemented by the notification dispatcher; nil disables notification.
type Notifier interface {
	Notify(ctx context.Context, machine *model.Machine, alarm *model.Alarm) bool
}

// Service serializes alarm creation per machine and enforces the dedup
// invariant. Auto-resolution on recovery is deliberately absent: alarms
// leave the active state only through operator action.
type Service struct {
	store    store.Store
	notifier Notifier

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService constructs an alarm service. notifier may be nil.
func NewService(s store.Store, notifier Notifier) *Service {
	return &Service{
		store:    s,
		notifier: notifier,
		locks:    make(map[string]*sync.Mutex),
	}
}

// machineLock returns the mutex serializing alarm creation for one machine.
func (s *Service) machineLock(machineID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[machineID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[machineID] = lock
	}
	return lock
}

// Raise creates an active alarm for the key unless one already exists, in
// which case the existing id is returned and created is false. Persistence
// errors propagate; notification failures are logged and swallowed so alarm
// creation never depends on email delivery.
func (s *Service) Raise(ctx context.Context, machineID string, alarmType model.AlarmType, code string, severity model.AlarmSeverity, message string) (string, bool, error) {
	lock := s.machineLock(machineID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := s.store.FindActiveAlarm(ctx, machineID, alarmType, code)
	if err == nil {
		metrics.IncAlarmDeduplicated()
		return existing.ID, false, nil
	}
	if err != gorm.ErrRecordNotFound {
		return "", false, fmt.Errorf("failed to scan active alarms for machine %s: %w", machineID, err)
	}

	alarm := &model.Alarm{
		ID:        uuid.NewString(),
		MachineID: machineID,
		Type:      alarmType,
		Code:      code,
		Severity:  severity,
		Status:    model.AlarmActive,
		Message:   message,
		RaisedAt:  time.Now().UTC(),
	}
	if err := s.store.CreateAlarm(ctx, alarm); err != nil {
		// The partial unique index backs up the per-machine lock against
		// writers outside this process. Losing the race means the alarm
		// already exists; return the winner.
		if isUniqueViolation(err) {
			winner, findErr := s.store.FindActiveAlarm(ctx, machineID, alarmType, code)
			if findErr == nil {
				metrics.IncAlarmDeduplicated()
				return winner.ID, false, nil
			}
		}
		return "", false, fmt.Errorf("failed to persist alarm %s/%s for machine %s: %w", alarmType, code, machineID, err)
	}
	metrics.IncAlarmRaised(code)
	metrics.IncAlarmEvent("active")

	if severity == model.SeverityHigh || severity == model.SeverityCritical {
		s.dispatchNotification(ctx, machineID, alarm)
	}

	return alarm.ID, true, nil
}

// dispatchNotification resolves the owning machine and hands the alarm to
// the notifier. Never fails the raise.
func (s *Service) dispatchNotification(ctx context.Context, machineID string, alarm *model.Alarm) {
	if s.notifier == nil {
		return
	}
	machine, err := s.store.GetMachine(ctx, machineID)
	if err != nil {
		log.Printf("Error loading machine %s for alarm notification: %v", machineID, err)
		return
	}
	s.notifier.Notify(ctx, machine, alarm)
}

// Acknowledge marks an active alarm as acknowledged.
func (s *Service) Acknowledge(ctx context.Context, alarmID string) (*model.Alarm, error) {
	return s.transition(ctx, alarmID, model.AlarmAcknowledged, "acknowledged")
}

// Resolve closes an alarm. This is the only path out of the active state;
// conditions that clear on their own never resolve their alarm.
func (s *Service) Resolve(ctx context.Context, alarmID string) (*model.Alarm, error) {
	return s.transition(ctx, alarmID, model.AlarmResolved, "resolved")
}

func (s *Service) transition(ctx context.Context, alarmID string, status model.AlarmStatus, event string) (*model.Alarm, error) {
	alarm, err := s.store.GetAlarm(ctx, alarmID)
	if err == gorm.ErrRecordNotFound {
		return nil, ErrAlarmNotFound
	}
	if err != nil {
		return nil, err
	}
	if alarm.Status == status {
		return alarm, nil
	}
	if err := s.store.SetAlarmStatus(ctx, alarmID, status); err != nil {
		return nil, err
	}
	alarm.Status = status
	metrics.IncAlarmEvent(event)
	return alarm, nil
}

// isUniqueViolation detects duplicate-key failures across the postgres and
// sqlite drivers without importing either directly.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}
