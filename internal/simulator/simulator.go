// Package simulator feeds the store with synthetic heartbeats and telemetry
// for machines flagged as test units. It exists for local development and is
// never started unless enabled in the configuration.
package simulator

import (
	"context"
	"log"
	"math/rand"
	"time"

	"gorm.io/datatypes"

	"vending-fleet-backend/config"
	"vending-fleet-backend/internal/model"
	"vending-fleet-backend/internal/store"
)

// Simulator periodically reports on behalf of test machines.
type Simulator struct {
	cfg   *config.Config
	store store.Store
	rng   *rand.Rand
}

// New creates a simulator over the given store.
func New(cfg *config.Config, s store.Store) *Simulator {
	return &Simulator{
		cfg:   cfg,
		store: s,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run emits one round of synthetic reports per interval until the context
// is cancelled.
func (s *Simulator) Run(ctx context.Context) {
	interval := time.Duration(s.cfg.Simulator.IntervalSeconds) * time.Second
	log.Printf("Device simulator started, reporting every %v", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Device simulator stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Simulator) tick(ctx context.Context) {
	machines, err := s.store.ListMachines(ctx)
	if err != nil {
		log.Printf("Simulator: failed to list machines: %v", err)
		return
	}

	now := time.Now()
	for i := range machines {
		m := &machines[i]
		if !m.TestMachine {
			continue
		}
		if err := s.report(ctx, m, now); err != nil {
			log.Printf("Simulator: report for machine %s failed: %v", m.ID, err)
		}
	}
}

// report writes a heartbeat and a telemetry sample. A small fraction of
// ticks skips the heartbeat so liveness transitions are exercised.
func (s *Simulator) report(ctx context.Context, m *model.Machine, now time.Time) error {
	if s.rng.Float64() < 0.05 {
		return nil
	}

	if err := s.store.UpsertHeartbeat(ctx, m.ID, now.UnixMilli(), model.HeartbeatOnline); err != nil {
		return err
	}

	sample := &model.TelemetrySample{
		MachineID:       m.ID,
		RecordedAt:      now,
		PowerStatus:     s.rng.Float64() >= 0.02,
		OperationalMode: "Automatic",
		TemperatureReadings: datatypes.NewJSONType(map[string]float64{
			"cabinet":    2.0 + s.rng.Float64()*4.0,
			"compressor": 20.0 + s.rng.Float64()*10.0,
		}),
		BatteryLevel:   60 + s.rng.Float64()*40,
		SignalStrength: -90 + s.rng.Float64()*40,
	}
	if s.rng.Float64() < 0.03 {
		sample.Errors = datatypes.NewJSONSlice([]string{"E42 dispenser jam"})
	}
	return s.store.AppendTelemetry(ctx, sample)
}
