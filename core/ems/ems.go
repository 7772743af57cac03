// Package ems implements the energy management system: demand and solar
// forecasting and the per-tick arbitration of power between solar
// generation, grid supply and battery storage. The EMS holds a non-owning
// reference to one BMS for the lifetime of the run.
package ems

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/enerflow/bess/core/bms"
	"github.com/enerflow/bess/core/cell"
	"github.com/enerflow/bess/core/logger"
)

// Config holds the EMS arbitration parameters. Thresholds are SoC
// percentages.
type Config struct {
	SolarCapacityKW float64 `json:"solar_capacity_kw"`
	MaxGridPowerKW  float64 `json:"max_grid_power_kw"`
	// PeakStartHour and PeakEndHour bound the (inclusive) window of peak
	// grid pricing.
	PeakStartHour float64 `json:"peak_start_hour"`
	PeakEndHour   float64 `json:"peak_end_hour"`

	ChargeThreshold     float64 `json:"charge_threshold"`
	DischargeThreshold  float64 `json:"discharge_threshold"`
	GridChargeThreshold float64 `json:"grid_charge_threshold"`

	// DegradationFactor is the per-update self-discharge/aging nudge.
	DegradationFactor float64 `json:"degradation_factor"`

	// Seed initializes the forecast noise source. Zero means time-seeded.
	Seed int64 `json:"seed"`
}

// SetDefaults applies the stock installation parameters.
func (c *Config) SetDefaults() {
	if c.SolarCapacityKW == 0 {
		c.SolarCapacityKW = 5
	}
	if c.MaxGridPowerKW == 0 {
		c.MaxGridPowerKW = 10
	}
	if c.PeakStartHour == 0 && c.PeakEndHour == 0 {
		c.PeakStartHour, c.PeakEndHour = 18, 21
	}
	if c.ChargeThreshold == 0 {
		c.ChargeThreshold = 80
	}
	if c.DischargeThreshold == 0 {
		c.DischargeThreshold = 20
	}
	if c.GridChargeThreshold == 0 {
		c.GridChargeThreshold = 40
	}
	if c.DegradationFactor == 0 {
		c.DegradationFactor = 0.0001
	}
}

// Validate checks the parameter ranges.
func (c Config) Validate() error {
	if c.SolarCapacityKW < 0 {
		return fmt.Errorf("solar_capacity_kw must not be negative, got %v", c.SolarCapacityKW)
	}
	if c.MaxGridPowerKW <= 0 {
		return fmt.Errorf("max_grid_power_kw must be positive, got %v", c.MaxGridPowerKW)
	}
	if c.PeakStartHour > c.PeakEndHour {
		return fmt.Errorf("peak window start %v after end %v", c.PeakStartHour, c.PeakEndHour)
	}
	for name, v := range map[string]float64{
		"charge_threshold":      c.ChargeThreshold,
		"discharge_threshold":   c.DischargeThreshold,
		"grid_charge_threshold": c.GridChargeThreshold,
	} {
		if v <= 0 || v >= 100 {
			return fmt.Errorf("%s must be a SoC percentage in (0,100), got %v", name, v)
		}
	}
	if c.DischargeThreshold >= c.ChargeThreshold {
		return fmt.Errorf("discharge_threshold %v must be below charge_threshold %v",
			c.DischargeThreshold, c.ChargeThreshold)
	}
	return nil
}

// EMS arbitrates power flows for one BMS-managed pack.
type EMS struct {
	bms  *bms.BMS
	cfg  Config
	fc   *Forecaster
	logg logger.Logger

	timeOfDay    float64
	solarGen     float64
	demand       float64
	gridPower    float64
	batteryPower float64
	lastAction   string
	unresolved   []bms.Fault
}

// New creates an EMS driving the given BMS. The rng seeds the forecast noise
// source; nil falls back to a time-seeded generator.
func New(b *bms.BMS, cfg Config, rng *rand.Rand, logg logger.Logger) *EMS {
	cfg.SetDefaults()
	if logg == nil {
		logg = logger.Nop{}
	}
	return &EMS{
		bms:        b,
		cfg:        cfg,
		fc:         NewForecaster(cfg.SolarCapacityKW, rng),
		logg:       logg,
		lastAction: "No action",
	}
}

// BMS returns the managed BMS.
func (e *EMS) BMS() *bms.BMS { return e.bms }

// PredictDemand forecasts the load in kW for the given hour of day.
func (e *EMS) PredictDemand(hour float64) float64 { return e.fc.Demand(hour) }

// PredictSolar forecasts the solar generation in kW for the given hour.
func (e *EMS) PredictSolar(hour float64) float64 { return e.fc.Solar(hour) }

// OptimizeFlow decides the grid/battery power split for the current demand
// and solar inputs. It is a pure function of the monitored state, fully
// re-evaluated each tick; the decision label lands in LastAction. Positive
// battery power is energy routed through the pack.
func (e *EMS) OptimizeFlow(hour float64) (gridPower, batteryPower float64) {
	snap := e.bms.Monitor()
	capAh := e.bms.Pack().Cells()[0].Capacity

	// Base C-rate limits scaled by remaining health. The derating steps
	// below tighten them against the grid-power ceiling.
	sohFactor := snap.SoH / 100
	maxCharge := capAh * 0.5 * sohFactor
	maxDischarge := capAh * 1.0 * sohFactor

	gridCostMultiplier := 1.0
	if hour >= e.cfg.PeakStartHour && hour <= e.cfg.PeakEndHour {
		gridCostMultiplier = 1.5
	}

	// Temperature derating caps the charge rate relative to the grid
	// ceiling; the ceiling itself bounds the discharge rate.
	switch {
	case snap.Temperature > 40:
		maxCharge = 0.5 * e.cfg.MaxGridPowerKW
	case snap.Temperature < 0:
		maxCharge = 0.7 * e.cfg.MaxGridPowerKW
	default:
		maxCharge = e.cfg.MaxGridPowerKW
	}
	maxDischarge = e.cfg.MaxGridPowerKW

	// Voltage derating.
	if snap.Voltage > 4.1 {
		maxCharge = math.Min(maxCharge, 0.3*e.cfg.MaxGridPowerKW)
	} else if snap.Voltage < 3.2 {
		maxDischarge = 0.5 * e.cfg.MaxGridPowerKW
	}

	deficit := e.demand - e.solarGen
	var grid, battery float64
	switch {
	case snap.SoC < e.cfg.GridChargeThreshold && snap.Temperature < 45:
		grid = math.Min(maxCharge*gridCostMultiplier, deficit)
		battery = math.Max(0, grid)
		e.lastAction = "Grid charging (temperature adjusted)"
	case e.solarGen > e.demand && snap.SoC < e.cfg.ChargeThreshold && snap.Temperature < 45:
		battery = math.Min(e.solarGen-e.demand, maxCharge)
		grid = math.Max(0, deficit)
		e.lastAction = "Charging battery with excess solar (temperature adjusted)"
	case e.solarGen < e.demand && snap.SoC > e.cfg.DischargeThreshold && snap.Voltage > 3.2:
		battery = math.Min(deficit, maxDischarge)
		grid = math.Max(0, deficit-battery)
		e.lastAction = "Discharging battery to meet demand (voltage adjusted)"
	default:
		battery = 0
		grid = math.Max(0, deficit)
		e.lastAction = "Balancing grid and solar (no battery action due to constraints)"
	}

	// Post-hoc 2C bus-current override: whatever branch was chosen, the
	// implied combined current must stay within the 2C envelope.
	if snap.Voltage > 0 && math.Abs(snap.Current+battery/snap.Voltage) > capAh*2 {
		battery = 0
		grid = math.Max(0, deficit)
		e.lastAction = "Current limit reached, using grid power only"
	}

	return grid, battery
}

// Update orchestrates one simulation tick: record inputs, decide the flow,
// let the BMS correct faults, re-check the replacement advisory, drive the
// pack if no faults remain unresolved, then balance and re-check safety.
// It returns the solar generation, grid power and battery power in kW.
func (e *EMS) Update(hour, dt, solarGeneration, demand float64) (float64, float64, float64) {
	e.timeOfDay = hour
	e.solarGen = solarGeneration
	e.demand = demand

	grid, battery := e.OptimizeFlow(hour)

	unresolved := e.bms.HandleFaults()
	e.unresolved = unresolved

	if msg := e.bms.CheckReplacement(); msg != "" {
		e.lastAction = msg
	}

	if len(unresolved) == 0 {
		if battery != 0 {
			if pv := e.bms.Pack().Voltage(); pv > 0 {
				busCurrent := battery * 1000 / pv
				for _, c := range e.bms.Pack().Cells() {
					c.Update(busCurrent, dt)
					e.applyDegradation(c)
				}
			}
		}
		e.bms.BalanceCells()
		e.bms.EnsureSafety()
	} else {
		e.lastAction = fmt.Sprintf("System limited due to faults: %s", bms.JoinFaults(unresolved))
		e.logg.Warnf("battery idled, %d unresolved fault(s)", len(unresolved))
		battery = 0
		grid = math.Max(0, demand-solarGeneration)
	}

	e.gridPower = grid
	e.batteryPower = battery
	return e.solarGen, grid, battery
}

// applyDegradation nudges the SoC down proportionally to the remaining
// charge, a simplified self-discharge/aging term.
func (e *EMS) applyDegradation(c *cell.Cell) {
	c.SoC = math.Max(0, c.SoC-e.cfg.DegradationFactor*c.SoC)
}

// LastAction returns the label of the most recent flow decision.
func (e *EMS) LastAction() string { return e.lastAction }

// UnresolvedFaults returns the faults left standing after the last Update.
func (e *EMS) UnresolvedFaults() []bms.Fault { return e.unresolved }

// BMSActions returns the BMS audit trail.
func (e *EMS) BMSActions() []string { return e.bms.Actions() }

// ClearBMSActions empties the BMS audit trail.
func (e *EMS) ClearBMSActions() { e.bms.ClearActions() }
