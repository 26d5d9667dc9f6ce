package notification

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"vending-fleet-backend/internal/model"
)

// alarmTitles maps alarm types to the human-readable subject fragment.
var alarmTitles = map[model.AlarmType]string{
	model.AlarmTypeOffline:     "Machine Offline",
	model.AlarmTypeError:       "Machine Error",
	model.AlarmTypeMaintenance: "Maintenance Required",
	model.AlarmTypeModeChange:  "Operating Mode Changed",
}

// AlarmTitle returns the subject fragment for an alarm type.
func AlarmTitle(t model.AlarmType) string {
	if title, ok := alarmTitles[t]; ok {
		return title
	}
	return "Machine Alarm"
}

var mailTemplate = template.Must(template.New("alarm-mail").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #222;">
  <h2>{{.Title}}</h2>
  <p>An alarm was raised for machine <strong>{{.MachineName}}</strong>.</p>
  <table border="1" cellpadding="6" cellspacing="0" style="border-collapse: collapse;">
    <tr><td><strong>Machine</strong></td><td>{{.MachineName}}</td></tr>
    <tr><td><strong>Serial number</strong></td><td>{{.SerialNumber}}</td></tr>
    <tr><td><strong>Model</strong></td><td>{{.Model}}</td></tr>
    <tr><td><strong>Alarm code</strong></td><td>{{.Code}}</td></tr>
    <tr><td><strong>Severity</strong></td><td>{{.Severity}}</td></tr>
    <tr><td><strong>Message</strong></td><td>{{.Message}}</td></tr>
    <tr><td><strong>Raised at</strong></td><td>{{.RaisedAt}}</td></tr>
  </table>
  <p style="color: #777; font-size: 12px;">Vending fleet monitoring</p>
</body>
</html>`))

type mailTemplateData struct {
	Title        string
	MachineName  string
	SerialNumber string
	Model        string
	Code         string
	Severity     string
	Message      string
	RaisedAt     string
}

// RenderSubject builds the email subject for an alarm.
func RenderSubject(machine *model.Machine, alarm *model.Alarm) string {
	name := machine.Name
	if name == "" {
		name = machine.ID
	}
	return fmt.Sprintf("%s - %s", name, AlarmTitle(alarm.Type))
}

// RenderBody builds the HTML email body for an alarm.
func RenderBody(machine *model.Machine, alarm *model.Alarm) (string, error) {
	name := machine.Name
	if name == "" {
		name = machine.ID
	}
	data := mailTemplateData{
		Title:        AlarmTitle(alarm.Type),
		MachineName:  name,
		SerialNumber: machine.SerialNumber,
		Model:        machine.Model,
		Code:         alarm.Code,
		Severity:     string(alarm.Severity),
		Message:      alarm.Message,
		RaisedAt:     alarm.RaisedAt.Format(time.RFC1123),
	}
	var buf bytes.Buffer
	if err := mailTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render alarm mail: %w", err)
	}
	return buf.String(), nil
}
