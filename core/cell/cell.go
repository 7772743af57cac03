// Package cell models a single electrochemical cell with a linearized
// open-circuit-voltage model, an ohmic voltage drop and a lumped thermal
// model. The physics is a deliberately simplified analytic stand-in for a
// real electrochemical cell model.
package cell

import "math"

const (
	// AmbientTemperature is the resting temperature of a cell in °C.
	AmbientTemperature = 25.0
	// MaxTemperature is the hard upper temperature clamp in °C.
	MaxTemperature = 60.0

	// MinVoltage is the discharge cutoff floor in volts.
	MinVoltage = 2.5
	// VoltageTolerance is the margin kept above MinVoltage while discharging.
	VoltageTolerance = 0.01

	// DefaultInternalResistance is the ohmic resistance in Ohm.
	DefaultInternalResistance = 0.5

	cycleLife    = 1000.0 // full equivalent cycles until SoH reaches zero
	heatCapacity = 3.0    // J/kg/K, approximate for a lithium-ion cell
	coolingCoeff = 0.01   // natural cooling rate towards ambient

	// pulseStep is the fixed time step applied by Charge and Discharge.
	pulseStep = 1.0 / 3600
)

// Cell holds the electro-thermal state of one cell. Current is signed:
// positive charges the cell, negative discharges it. SoC and SoH are
// percentages in [0,100].
type Cell struct {
	Capacity           float64 // Ah, constant
	Voltage            float64 // V
	Current            float64 // A
	Temperature        float64 // °C, clamped to [25,60]
	SoC                float64 // %
	SoH                float64 // %, non-increasing
	CycleCount         float64 // fractional full-cycle equivalents
	InternalResistance float64 // Ohm, constant
	NominalVoltage     float64 // V, constant, equals the initial voltage
	MinVoltage         float64 // V, constant safety floor
	VoltageTolerance   float64 // V, constant margin above the floor

	lastSoC float64
}

// New creates a cell at rest: ambient temperature, zero current, full health.
func New(capacityAh, initialVoltage, initialSoC float64) *Cell {
	return &Cell{
		Capacity:           capacityAh,
		Voltage:            initialVoltage,
		Temperature:        AmbientTemperature,
		SoC:                initialSoC,
		SoH:                100,
		InternalResistance: DefaultInternalResistance,
		NominalVoltage:     initialVoltage,
		MinVoltage:         MinVoltage,
		VoltageTolerance:   VoltageTolerance,
		lastSoC:            initialSoC,
	}
}

// Update advances the cell by dt under a constant applied current.
// dt is expressed in the same hour-equivalent units as the convenience
// pulse step, consistent with Capacity being in Ah.
func (c *Cell) Update(current, dt float64) {
	c.Current = current

	// Charge integration.
	dq := (current * dt / 3600) / c.Capacity
	prev := c.lastSoC
	c.SoC = clamp(c.SoC+dq*100, 0, 100)

	// Cycle accounting: coulomb throughput plus half-cycle detection on
	// crossing out of the low/high SoC bands. Both accumulate into the
	// same counter, which double-counts wear on purpose as a conservative
	// estimate.
	c.CycleCount += math.Abs(dq)
	if (c.SoC > prev && prev < 20) || (c.SoC < prev && prev > 80) {
		c.CycleCount += 0.5
	}
	c.lastSoC = c.SoC

	c.updateSoH()

	// Linearized OCV centered at 50% SoC, plus ohmic drop.
	ocv := c.NominalVoltage + 0.2*(c.SoC/100-0.5)
	drop := math.Abs(current) * c.InternalResistance
	if current < 0 {
		c.Voltage = math.Max(c.MinVoltage+c.VoltageTolerance, ocv-drop)
	} else {
		c.Voltage = ocv + drop
	}

	// Thermal step: resistive heating against natural cooling towards
	// ambient. A zero-current tick leaves the temperature untouched.
	if current != 0 {
		heat := current * current * c.InternalResistance * dt / 3600 // J
		rise := heat / heatCapacity
		cooling := coolingCoeff * (c.Temperature - AmbientTemperature) * dt / 3600
		c.Temperature = clamp(c.Temperature+rise-cooling, AmbientTemperature, MaxTemperature)
	}
}

// Charge applies a positive current for one pulse step.
func (c *Cell) Charge(current float64) {
	c.Update(current, pulseStep)
}

// Discharge applies a negative current for one pulse step.
func (c *Cell) Discharge(current float64) {
	c.Update(-current, pulseStep)
}

// AdjustTemperature applies a corrective thermal actuation, clamped to the
// cell's valid temperature band.
func (c *Cell) AdjustTemperature(delta float64) {
	c.Temperature = clamp(c.Temperature+delta, AmbientTemperature, MaxTemperature)
}

func (c *Cell) updateSoH() {
	c.SoH = math.Max(0, 100-(c.CycleCount/cycleLife)*100)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
