// Package monitor runs the periodic fleet sweep: liveness classification
// and telemetry-derived alarm rules across every known machine.
package monitor

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"vending-fleet-backend/config"
	"vending-fleet-backend/internal/alarm"
	"vending-fleet-backend/internal/liveness"
	"vending-fleet-backend/internal/metrics"
	"vending-fleet-backend/internal/model"
	"vending-fleet-backend/internal/store"
)

// allowedModes is the set of operational modes whose transitions are worth
// alarming.
var allowedModes = map[string]bool{
	"Automatic":    true,
	"Auto":         true,
	"Keep Fresh":   true,
	"Preservation": true,
	"Standby":      true,
}

// Summary reports the outcome of one sweep cycle. Counts reflect only
// machines that evaluated successfully.
type Summary struct {
	TotalMachines           int `json:"totalMachines"`
	OfflineMachines         int `json:"offlineMachines"`
	CriticalOfflineMachines int `json:"criticalOfflineMachines"`
	AlarmsCreated           int `json:"alarmsCreated"`
	FailedMachines          int `json:"failedMachines"`
}

// Service orchestrates the sweep. Machines are evaluated concurrently up to
// a cap, each under its own timeout, and one machine failing never aborts
// the rest of the cycle.
type Service struct {
	cfg    *config.Config
	store  store.Store
	alarms *alarm.Service
	policy liveness.Policy
}

// PolicyFromConfig builds the canonical liveness policy from configuration.
func PolicyFromConfig(cfg *config.MonitorConfig) liveness.Policy {
	return liveness.Policy{
		Offline:  time.Duration(cfg.OfflineAfterMinutes) * time.Minute,
		Critical: time.Duration(cfg.CriticalAfterMinutes) * time.Minute,
	}
}

// NewService creates and initializes the sweep service.
func NewService(cfg *config.Config, s store.Store, alarms *alarm.Service) *Service {
	return &Service{
		cfg:    cfg,
		store:  s,
		alarms: alarms,
		policy: PolicyFromConfig(&cfg.Monitor),
	}
}

// Policy exposes the liveness policy shared with status handlers.
func (s *Service) Policy() liveness.Policy {
	return s.policy
}

// Run starts the sweep loop. The cadence comes from configuration; each
// cycle is also triggerable on demand through SweepOnce.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Monitor.Enabled {
		log.Println("Monitor sweep is disabled. Not starting.")
		return
	}
	log.Println("Starting monitor sweep service...")

	s.SweepOnce(ctx)

	timer := time.NewTimer(s.cfg.Monitor.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Monitor sweep service shutting down.")
			return
		case <-timer.C:
			s.SweepOnce(ctx)
			timer.Reset(s.cfg.Monitor.Interval)
		}
	}
}

type machineResult struct {
	status  liveness.Status
	created int
	err     error
}

// SweepOnce performs a single evaluation pass over the whole fleet.
func (s *Service) SweepOnce(ctx context.Context) Summary {
	log.Println("Executing sweep cycle...")
	now := time.Now().UTC()

	machines, err := s.store.ListMachines(ctx)
	if err != nil {
		log.Printf("Error listing machines for sweep: %v", err)
		return Summary{}
	}

	summary := Summary{TotalMachines: len(machines)}
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, s.cfg.Monitor.MaxConcurrency)

	for i := range machines {
		machine := machines[i]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			res := s.evaluateSafely(ctx, machine, now)

			mu.Lock()
			defer mu.Unlock()
			if res.err != nil {
				log.Printf("Error evaluating machine %s: %v", machine.ID, res.err)
				metrics.IncSweepFailure()
				summary.FailedMachines++
				return
			}
			summary.AlarmsCreated += res.created
			switch res.status {
			case liveness.StatusCritical:
				summary.CriticalOfflineMachines++
				summary.OfflineMachines++
			case liveness.StatusOffline, liveness.StatusInvalid:
				summary.OfflineMachines++
			}
		}()
	}
	wg.Wait()

	metrics.IncSweepCycle()
	log.Printf("Sweep cycle finished: %d machines, %d offline (%d critical), %d alarms created, %d failed",
		summary.TotalMachines, summary.OfflineMachines, summary.CriticalOfflineMachines,
		summary.AlarmsCreated, summary.FailedMachines)
	return summary
}

// evaluateSafely isolates one machine's evaluation: its own timeout, and a
// recover so a panicking rule cannot abort the cycle.
func (s *Service) evaluateSafely(ctx context.Context, machine model.Machine, now time.Time) (res machineResult) {
	defer func() {
		if r := recover(); r != nil {
			res = machineResult{err: fmt.Errorf("evaluation panicked: %v", r)}
		}
	}()

	machineCtx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.Monitor.MachineTimeoutSeconds)*time.Second)
	defer cancel()

	return s.evaluateMachine(machineCtx, machine, now)
}

// evaluateMachine applies the full rule set to one machine.
func (s *Service) evaluateMachine(ctx context.Context, machine model.Machine, now time.Time) machineResult {
	res := machineResult{status: liveness.StatusOnline}

	raise := func(t model.AlarmType, code string, severity model.AlarmSeverity, message string) error {
		_, created, err := s.alarms.Raise(ctx, machine.ID, t, code, severity, message)
		if err != nil {
			return err
		}
		if created {
			res.created++
		}
		return nil
	}

	hb, err := s.store.GetHeartbeat(ctx, machine.ID)
	switch {
	case err == gorm.ErrRecordNotFound:
		res.status = liveness.StatusInvalid
		if err := raise(model.AlarmTypeOffline, model.CodeNoHeartbeat, model.SeverityHigh,
			fmt.Sprintf("No heartbeat record exists for machine %s", machine.ID)); err != nil {
			res.err = err
			return res
		}
	case err != nil:
		res.err = fmt.Errorf("failed to fetch heartbeat: %w", err)
		return res
	default:
		res.status = s.policy.Classify(hb.LastSeenMS, now)
		switch res.status {
		case liveness.StatusInvalid:
			if err := raise(model.AlarmTypeOffline, model.CodeInvalidHeartbeat, model.SeverityHigh,
				fmt.Sprintf("Heartbeat for machine %s carries no valid timestamp", machine.ID)); err != nil {
				res.err = err
				return res
			}
		case liveness.StatusCritical:
			if err := raise(model.AlarmTypeOffline, model.CodeCriticalOffline, model.SeverityCritical,
				fmt.Sprintf("Machine %s has been offline for more than %s", machine.ID, s.policy.Critical)); err != nil {
				res.err = err
				return res
			}
		case liveness.StatusOffline:
			if err := raise(model.AlarmTypeOffline, model.CodeOffline, model.SeverityHigh,
				fmt.Sprintf("Machine %s has been offline for more than %s", machine.ID, s.policy.Offline)); err != nil {
				res.err = err
				return res
			}
		case liveness.StatusOnline:
			if err := s.evaluateTelemetry(ctx, &machine, now, raise); err != nil {
				res.err = err
				return res
			}
		}
	}

	// Cleaning staleness is evaluated for every machine, online or not.
	if err := s.evaluateCleaning(ctx, &machine, now, raise); err != nil {
		res.err = err
		return res
	}

	return res
}

// evaluateTelemetry runs the telemetry rules against the latest sample. All
// rules are evaluated independently in the same pass.
func (s *Service) evaluateTelemetry(ctx context.Context, machine *model.Machine, now time.Time, raise func(model.AlarmType, string, model.AlarmSeverity, string) error) error {
	sample, err := s.store.LatestTelemetry(ctx, machine.ID)
	if err == gorm.ErrRecordNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to fetch latest telemetry: %w", err)
	}

	dirty := false

	// Operational mode transition. Persisting the observed mode keeps the
	// same transition from re-alarming next cycle.
	mode := sample.OperationalMode
	if mode != "" && mode != machine.LastOperationalMode && allowedModes[mode] {
		if err := raise(model.AlarmTypeModeChange, model.CodeModeChange, model.SeverityMedium,
			fmt.Sprintf("Operational mode changed from %q to %q", machine.LastOperationalMode, mode)); err != nil {
			return err
		}
		machine.LastOperationalMode = mode
		dirty = true
	}

	// Power loss, with a running outage counter keyed off the stored start.
	if !sample.PowerStatus {
		if machine.PowerOutageStart == nil {
			start := now
			machine.PowerOutageStart = &start
		}
		machine.HoursWithoutPower = int(now.Sub(*machine.PowerOutageStart).Hours())
		dirty = true
		if err := raise(model.AlarmTypeError, model.CodePowerOff, model.SeverityHigh,
			fmt.Sprintf("Machine reports loss of mains power (%d hours without power)", machine.HoursWithoutPower)); err != nil {
			return err
		}
	} else if machine.PowerOutageStart != nil {
		machine.PowerOutageStart = nil
		machine.HoursWithoutPower = 0
		dirty = true
	}

	if len(sample.Errors) > 0 {
		if err := raise(model.AlarmTypeError, model.CodeMachineError, model.SeverityHigh,
			"Device reported errors: "+strings.Join(sample.Errors, "; ")); err != nil {
			return err
		}
	}

	readings := sample.TemperatureReadings.Data()
	if len(readings) > 0 {
		var sum float64
		for _, v := range readings {
			sum += v
		}
		mean := sum / float64(len(readings))
		if mean > s.cfg.Monitor.TemperatureThreshold {
			if err := raise(model.AlarmTypeError, model.CodeTemperatureHigh, model.SeverityHigh,
				fmt.Sprintf("Average temperature %.1f°C exceeds threshold %.1f°C", mean, s.cfg.Monitor.TemperatureThreshold)); err != nil {
				return err
			}
		}
	}

	if dirty {
		if err := s.store.SaveMachineMonitoring(ctx, machine); err != nil {
			return fmt.Errorf("failed to persist monitoring counters: %w", err)
		}
	}
	return nil
}

// evaluateCleaning computes cleaning staleness and persists the counter
// regardless of whether an alarm fired.
func (s *Service) evaluateCleaning(ctx context.Context, machine *model.Machine, now time.Time, raise func(model.AlarmType, string, model.AlarmSeverity, string) error) error {
	entry, err := s.store.LatestCleaningLog(ctx, machine.ID)
	switch {
	case err == gorm.ErrRecordNotFound:
		machine.DaysSinceCleaning = int(now.Sub(machine.CreatedAt).Hours() / 24)
		if err := raise(model.AlarmTypeMaintenance, model.CodeNeverCleaned, model.SeverityMedium,
			fmt.Sprintf("Machine has never been cleaned (%d days since registration)", machine.DaysSinceCleaning)); err != nil {
			return err
		}
	case err != nil:
		return fmt.Errorf("failed to fetch cleaning log: %w", err)
	default:
		machine.DaysSinceCleaning = int(now.Sub(entry.CleanedAt).Hours() / 24)
		if machine.DaysSinceCleaning > s.cfg.Monitor.CleaningOverdueDays {
			if err := raise(model.AlarmTypeMaintenance, model.CodeCleaningOverdue, model.SeverityMedium,
				fmt.Sprintf("Last cleaning was %d days ago (limit %d)", machine.DaysSinceCleaning, s.cfg.Monitor.CleaningOverdueDays)); err != nil {
				return err
			}
		}
	}

	return s.store.SaveMachineMonitoring(ctx, machine)
}
