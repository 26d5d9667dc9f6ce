// Package metrics registers prometheus counters for the monitoring
// pipeline.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "fleet_"

var (
	registerOnce sync.Once

	sweepCycles     prometheus.Counter
	sweepFailures   prometheus.Counter
	alarmsRaised    *prometheus.CounterVec
	alarmsDeduped   prometheus.Counter
	alarmEvents     *prometheus.CounterVec
	mailSent        *prometheus.CounterVec
	mailFailed      *prometheus.CounterVec
	heartbeatsTotal prometheus.Counter
	commandsIssued  prometheus.Counter
	commandTimeouts prometheus.Counter
)

// Init registers all pipeline metrics. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		sweepCycles = prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "sweep_cycles_total",
			Help: "Completed fleet sweep cycles",
		})
		sweepFailures = prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "sweep_machine_failures_total",
			Help: "Machines whose evaluation failed during a sweep",
		})
		alarmsRaised = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alarms_raised_total",
				Help: "New alarms created, by code",
			},
			[]string{"code"},
		)
		alarmsDeduped = prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "alarms_deduplicated_total",
			Help: "Raise calls suppressed by an existing active alarm",
		})
		alarmEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alarm_events_total",
				Help: "Alarm lifecycle events",
			},
			[]string{"event"},
		)
		mailSent = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "mail_sent_total",
				Help: "Notification emails handed to a transport, by provider",
			},
			[]string{"provider"},
		)
		mailFailed = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "mail_failed_total",
				Help: "Notification email delivery failures, by provider",
			},
			[]string{"provider"},
		)
		heartbeatsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "heartbeats_received_total",
			Help: "Heartbeat reports accepted from devices",
		})
		commandsIssued = prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "commands_issued_total",
			Help: "Commands accepted into the dispatch queue",
		})
		commandTimeouts = prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "command_timeouts_total",
			Help: "Pending commands flagged by the timeout sweep",
		})

		prometheus.MustRegister(
			sweepCycles, sweepFailures,
			alarmsRaised, alarmsDeduped, alarmEvents,
			mailSent, mailFailed,
			heartbeatsTotal, commandsIssued, commandTimeouts,
		)
	})
}

// IncSweepCycle increments the completed sweep counter.
func IncSweepCycle() {
	if sweepCycles != nil {
		sweepCycles.Inc()
	}
}

// IncSweepFailure increments the per-machine evaluation failure counter.
func IncSweepFailure() {
	if sweepFailures != nil {
		sweepFailures.Inc()
	}
}

// IncAlarmRaised counts a newly created alarm.
func IncAlarmRaised(code string) {
	if alarmsRaised != nil {
		alarmsRaised.WithLabelValues(code).Inc()
	}
}

// IncAlarmDeduplicated counts a raise suppressed by dedup.
func IncAlarmDeduplicated() {
	if alarmsDeduped != nil {
		alarmsDeduped.Inc()
	}
}

// IncAlarmEvent increments alarm lifecycle counters.
func IncAlarmEvent(event string) {
	if alarmEvents != nil {
		alarmEvents.WithLabelValues(event).Inc()
	}
}

// IncMailSent counts a message handed to a transport.
func IncMailSent(provider string) {
	if mailSent != nil {
		mailSent.WithLabelValues(provider).Inc()
	}
}

// IncMailFailed counts a transport delivery failure.
func IncMailFailed(provider string) {
	if mailFailed != nil {
		mailFailed.WithLabelValues(provider).Inc()
	}
}

// IncHeartbeat counts an accepted device report.
func IncHeartbeat() {
	if heartbeatsTotal != nil {
		heartbeatsTotal.Inc()
	}
}

// IncCommandIssued counts an accepted command.
func IncCommandIssued() {
	if commandsIssued != nil {
		commandsIssued.Inc()
	}
}

// IncCommandTimeout counts a command flagged by the timeout sweep.
func IncCommandTimeout() {
	if commandTimeouts != nil {
		commandTimeouts.Inc()
	}
}
