package notification

import (
	"context"
	"log"

	"vending-fleet-backend/internal/metrics"
	"vending-fleet-backend/internal/model"
)

// Dispatcher resolves recipients, applies per-category opt-in gates,
// renders the alarm email and hands it to the configured transport. A
// provider failure degrades to the simulation transport and reports the
// message as not sent.
type Dispatcher struct {
	mailer   Mailer
	fallback Mailer
	from     string
	pool     *WorkerPool
}

// NewDispatcher creates a dispatcher. pool may be nil to disable web push
// fan-out.
func NewDispatcher(mailer Mailer, from string, pool *WorkerPool) *Dispatcher {
	return &Dispatcher{
		mailer:   mailer,
		fallback: &SimulationMailer{},
		from:     from,
		pool:     pool,
	}
}

// Notify implements alarm.Notifier. Returns true when the message was
// handed to the primary transport successfully. An empty recipient list or
// a disabled alert category short-circuits without error.
func (d *Dispatcher) Notify(ctx context.Context, machine *model.Machine, alarm *model.Alarm) bool {
	if machine == nil || alarm == nil {
		return false
	}

	// Push fan-out is independent of the email gates; dashboard
	// subscribers asked for every alarm of the machine.
	if d.pool != nil {
		d.pool.Dispatch(PushJob{
			MachineID: machine.ID,
			Title:     RenderSubject(machine, alarm),
			Body:      alarm.Message,
		})
	}

	if len(machine.EmailAddresses) == 0 {
		return false
	}
	if !categoryEnabled(machine, alarm.Type) {
		return false
	}

	body, err := RenderBody(machine, alarm)
	if err != nil {
		log.Printf("Error rendering alarm mail for machine %s: %v", machine.ID, err)
		return false
	}
	msg := &Message{
		To:       machine.EmailAddresses,
		From:     d.from,
		Subject:  RenderSubject(machine, alarm),
		HTMLBody: body,
	}

	_, sent := d.deliver(ctx, msg)
	return sent
}

// SendRaw delivers an arbitrary message through the transport boundary,
// used by the internal send-email endpoint. Returns the provider that
// accepted the message.
func (d *Dispatcher) SendRaw(ctx context.Context, msg *Message) (string, bool) {
	if msg.From == "" {
		msg.From = d.from
	}
	return d.deliver(ctx, msg)
}

// deliver tries the primary transport and falls back to simulation on any
// provider error. The fallback succeeds deterministically; the bool still
// reports the primary outcome.
func (d *Dispatcher) deliver(ctx context.Context, msg *Message) (string, bool) {
	if err := d.mailer.Send(ctx, msg); err != nil {
		log.Printf("Error sending mail via %s: %v; falling back to simulation", d.mailer.Provider(), err)
		metrics.IncMailFailed(d.mailer.Provider())
		if fbErr := d.fallback.Send(ctx, msg); fbErr != nil {
			log.Printf("Error sending mail via fallback transport: %v", fbErr)
		}
		return d.fallback.Provider(), false
	}
	metrics.IncMailSent(d.mailer.Provider())
	return d.mailer.Provider(), true
}

// categoryEnabled applies the per-machine opt-in flags. Maintenance and
// mode-change alarms are always-on categories.
func categoryEnabled(machine *model.Machine, t model.AlarmType) bool {
	switch t {
	case model.AlarmTypeOffline:
		return machine.EnableOfflineAlerts
	case model.AlarmTypeError:
		return machine.EnableErrorAlerts
	default:
		return true
	}
}
