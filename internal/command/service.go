// Package command implements the remote-command dispatch queue and its
// timeout sweep.
package command

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"vending-fleet-backend/config"
	"vending-fleet-backend/internal/metrics"
	"vending-fleet-backend/internal/model"
	"vending-fleet-backend/internal/store"
)

// ErrMachineNotFound is returned when a command references an unknown
// machine.
var ErrMachineNotFound = errors.New("command: machine not found")

// Service persists commands and best-effort forwards them to the device
// gateway. There is no retry loop: max_retries is recorded per priority but
// only the timeout sweep acts on stale commands.
type Service struct {
	cfg    *config.Config
	store  store.Store
	client *http.Client
}

// NewService creates the command service.
func NewService(cfg *config.Config, s store.Store) *Service {
	return &Service{
		cfg:   cfg,
		store: s,
		client: &http.Client{
			Timeout: time.Duration(cfg.Gateway.TimeoutSeconds) * time.Second,
		},
	}
}

// Submit validates and queues a command. Gateway forwarding is best-effort:
// a gateway failure is logged and the command stays pending for polling.
func (s *Service) Submit(ctx context.Context, machineID, cmdType string, params map[string]any, priority model.CommandPriority, createdBy string) (*model.MachineCommand, error) {
	machine, err := s.store.GetMachine(ctx, machineID)
	if err == gorm.ErrRecordNotFound {
		return nil, ErrMachineNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up machine %s: %w", machineID, err)
	}

	if err := ValidateParameters(cmdType, params); err != nil {
		return nil, err
	}

	cmd := &model.MachineCommand{
		ID:             uuid.NewString(),
		MachineID:      machine.ID,
		Type:           cmdType,
		Parameters:     datatypes.JSONMap(params),
		Priority:       priority,
		MaxRetries:     model.MaxRetriesFor(priority),
		Status:         model.CommandPending,
		TimeoutSeconds: s.cfg.Commands.DefaultTimeoutSeconds,
		CreatedBy:      createdBy,
	}
	if err := s.store.CreateCommand(ctx, cmd); err != nil {
		return nil, fmt.Errorf("failed to persist command: %w", err)
	}
	metrics.IncCommandIssued()

	if s.cfg.Gateway.URL != "" {
		if err := s.forward(ctx, machine, cmd); err != nil {
			log.Printf("Error forwarding command %s to gateway: %v", cmd.ID, err)
		}
	}
	return cmd, nil
}

// forward pushes the command to the device gateway.
func (s *Service) forward(ctx context.Context, machine *model.Machine, cmd *model.MachineCommand) error {
	payload, err := json.Marshal(map[string]any{
		"commandId":  cmd.ID,
		"iotNumber":  machine.IoTNumber,
		"type":       cmd.Type,
		"parameters": cmd.Parameters,
		"priority":   cmd.Priority,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal gateway payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Gateway.URL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}
	return nil
}

// SweepTimeouts flags every pending command older than its timeout window.
func (s *Service) SweepTimeouts(ctx context.Context) (int, error) {
	pending, err := s.store.ListPendingCommands(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending commands: %w", err)
	}

	now := time.Now().UTC()
	flagged := 0
	for _, cmd := range pending {
		if now.Sub(cmd.CreatedAt) <= time.Duration(cmd.TimeoutSeconds)*time.Second {
			continue
		}
		if err := s.store.SetCommandStatus(ctx, cmd.ID, model.CommandTimeout); err != nil {
			log.Printf("Error flagging command %s as timed out: %v", cmd.ID, err)
			continue
		}
		metrics.IncCommandTimeout()
		flagged++
	}
	return flagged, nil
}

// Run sweeps timeouts on a fixed cadence until the context is cancelled.
func (s *Service) Run(ctx context.Context) {
	interval := time.Duration(s.cfg.Commands.SweepIntervalSeconds) * time.Second
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Command timeout sweep shutting down.")
			return
		case <-timer.C:
			if flagged, err := s.SweepTimeouts(ctx); err != nil {
				log.Printf("Error sweeping command timeouts: %v", err)
			} else if flagged > 0 {
				log.Printf("Flagged %d commands as timed out", flagged)
			}
			timer.Reset(interval)
		}
	}
}
