package store

// DeviceData is the optional telemetry-shaped payload a device may attach
// to a heartbeat report.
type DeviceData struct {
	BatteryLevel        *float64           `json:"batteryLevel"`
	SignalStrength      *float64           `json:"signalStrength"`
	Temperature         *float64           `json:"temperature"`
	OperationalMode     *string            `json:"operationalMode"`
	Errors              []string           `json:"errors"`
	TemperatureReadings map[string]float64 `json:"temperatureReadings"`
	SalesData           map[string]any     `json:"salesData"`
	CleaningStatus      *string            `json:"cleaningStatus"`
	LastError           *string            `json:"lastError"`
	PowerStatus         *bool              `json:"powerStatus"`
}

// HasTelemetry reports whether the payload carries any telemetry-shaped
// field worth persisting as a sample.
func (d *DeviceData) HasTelemetry() bool {
	if d == nil {
		return false
	}
	return d.PowerStatus != nil ||
		d.OperationalMode != nil ||
		len(d.Errors) > 0 ||
		len(d.TemperatureReadings) > 0 ||
		d.BatteryLevel != nil ||
		d.SignalStrength != nil
}

// AlarmFilter narrows alarm listings.
type AlarmFilter struct {
	MachineID string
	Status    string
}
