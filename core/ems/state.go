package ems

// State is the system-state snapshot exposed to the external
// visualization/driver collaborator. It is also the payload serialized by
// the telemetry publisher.
type State struct {
	BatteryVoltage     float64 `json:"battery_voltage"`
	BatteryCurrent     float64 `json:"battery_current"`
	BatteryTemperature float64 `json:"battery_temperature"`
	BatterySoC         float64 `json:"battery_soc"`
	BatterySoH         float64 `json:"battery_soh"`
	SolarGeneration    float64 `json:"solar_generation"`
	Demand             float64 `json:"demand"`
	LastAction         string  `json:"last_action"`
	GridPower          float64 `json:"grid_power"`
	BatteryPower       float64 `json:"battery_power"`
}

// SystemState samples the monitored pack and returns the current snapshot.
// GridPower reports the simplified demand/solar gap; BatteryPower derives
// from the monitored bus current and voltage.
func (e *EMS) SystemState() State {
	snap := e.bms.Monitor()
	return State{
		BatteryVoltage:     snap.Voltage,
		BatteryCurrent:     snap.Current,
		BatteryTemperature: snap.Temperature,
		BatterySoC:         snap.SoC,
		BatterySoH:         snap.SoH,
		SolarGeneration:    e.solarGen,
		Demand:             e.demand,
		LastAction:         e.lastAction,
		GridPower:          e.demand - e.solarGen,
		BatteryPower:       snap.Current * snap.Voltage / 1000,
	}
}
