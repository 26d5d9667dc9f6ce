package api

import (
	"github.com/SherClockHolmes/webpush-go"

	"vending-fleet-backend/internal/alarm"
	"vending-fleet-backend/internal/command"
	"vending-fleet-backend/internal/liveness"
	"vending-fleet-backend/internal/monitor"
	"vending-fleet-backend/internal/notification"
	"vending-fleet-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store      store.Store
	webpush    *webpush.Options
	dispatcher *notification.Dispatcher
	sweeper    *monitor.Service
	alarms     *alarm.Service
	commands   *command.Service
	policy     liveness.Policy
}

// Deps collects everything the router needs.
type Deps struct {
	Store      store.Store
	WebPush    *webpush.Options
	Dispatcher *notification.Dispatcher
	Sweeper    *monitor.Service
	Alarms     *alarm.Service
	Commands   *command.Service
	Policy     liveness.Policy
}

// NewHandler creates a new API handler.
func NewHandler(d Deps) *Handler {
	return &Handler{
		store:      d.Store,
		webpush:    d.WebPush,
		dispatcher: d.Dispatcher,
		sweeper:    d.Sweeper,
		alarms:     d.Alarms,
		commands:   d.Commands,
		policy:     d.Policy,
	}
}
