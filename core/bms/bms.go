// Package bms implements the battery management system: safe-operating-area
// monitoring, fault detection and local correction, passive cell balancing
// and the replacement advisory. The BMS holds a non-owning reference to the
// pack for the lifetime of a simulation run.
package bms

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/enerflow/bess/core/cell"
	"github.com/enerflow/bess/core/logger"
	"github.com/enerflow/bess/core/pack"
)

const (
	// correctionCurrent is the small actuation applied to a cell with a
	// voltage excursion, for a single pulse step.
	correctionCurrent = 0.1
	// thermalStep is the per-tick corrective temperature actuation in °C.
	thermalStep = 2.0
	// balancingThreshold is the voltage margin above the pack average used
	// by BalancingInfo to flag cells for discharge.
	balancingThreshold = 0.05

	// Linear SoC-to-voltage map used as the balancing target, distinct
	// from the cell's own OCV model.
	balanceMinVoltage = 3.0
	balanceMaxVoltage = 4.2
)

// Config holds the tunable BMS parameters.
type Config struct {
	// BalancingStep is the fixed voltage bleed per balancing step in volts.
	BalancingStep float64 `json:"balancing_step"`
	// MinSoH is the minimum acceptable state of health in percent.
	MinSoH float64 `json:"min_soh"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.BalancingStep == 0 {
		c.BalancingStep = 0.01
	}
	if c.MinSoH == 0 {
		c.MinSoH = 80
	}
}

// Validate checks the parameter ranges.
func (c Config) Validate() error {
	if c.BalancingStep <= 0 {
		return fmt.Errorf("balancing_step must be positive, got %v", c.BalancingStep)
	}
	if c.MinSoH <= 0 || c.MinSoH > 100 {
		return fmt.Errorf("min_soh must be in (0,100], got %v", c.MinSoH)
	}
	return nil
}

// Limits defines the safe operating area derived from the cell capacity.
type Limits struct {
	MinCellVoltage      float64 // V
	MaxCellVoltage      float64 // V
	MaxChargeCurrent    float64 // A, 2C equivalent
	MaxDischargeCurrent float64 // A, 20C equivalent
	MinTemperature      float64 // °C
	MaxTemperature      float64 // °C
}

// DefaultLimits derives the SOA from the per-cell capacity.
func DefaultLimits(capacityAh float64) Limits {
	return Limits{
		MinCellVoltage:      cell.MinVoltage,
		MaxCellVoltage:      4.2,
		MaxChargeCurrent:    capacityAh * 2,
		MaxDischargeCurrent: capacityAh * 20,
		MinTemperature:      -20,
		MaxTemperature:      60,
	}
}

// Snapshot is the monitored pack state returned by Monitor.
type Snapshot struct {
	Voltage     float64
	Current     float64
	Temperature float64
	SoC         float64
	SoH         float64
}

// BalancingInfo describes which cells sit above the average voltage by more
// than the balancing threshold.
type BalancingInfo struct {
	CellsToDischarge []int
	AvgVoltage       float64
}

// BMS supervises one pack.
type BMS struct {
	pack   *pack.Pack
	limits Limits
	cfg    Config
	log    ActionLog
	logg   logger.Logger

	replacementMsg string
	chargeState    string
}

// New creates a BMS supervising the given pack.
func New(p *pack.Pack, cfg Config, logg logger.Logger) *BMS {
	cfg.SetDefaults()
	if logg == nil {
		logg = logger.Nop{}
	}
	return &BMS{
		pack:        p,
		limits:      DefaultLimits(p.Cells()[0].Capacity),
		cfg:         cfg,
		logg:        logg,
		chargeState: "Initialized",
	}
}

// Pack returns the supervised pack.
func (b *BMS) Pack() *pack.Pack { return b.pack }

// Limits returns the safe operating area.
func (b *BMS) Limits() Limits { return b.limits }

// Monitor samples the pack aggregates and records the observation.
func (b *BMS) Monitor() Snapshot {
	snap := Snapshot{
		Voltage:     b.pack.Voltage(),
		Current:     b.pack.Current(),
		Temperature: b.pack.Temperature(),
		SoC:         b.pack.SoC(),
		SoH:         b.pack.SoH(),
	}
	b.log.Append("Monitoring")
	return snap
}

// DetectFaults evaluates every SOA rule independently, in a fixed order, and
// returns the full ordered fault list. A summary line is always appended to
// the action log.
func (b *BMS) DetectFaults() []Fault {
	var faults []Fault
	snap := b.Monitor()
	cells := b.pack.Cells()

	if snap.SoH < b.cfg.MinSoH {
		faults = append(faults, Fault{Kind: LowSoH, Scope: ScopePack})
		b.CheckReplacement()
	}
	for i, c := range cells {
		if c.SoH < b.cfg.MinSoH {
			faults = append(faults, Fault{Kind: LowSoH, Scope: ScopeCell, Cell: i})
		}
	}

	n := float64(len(cells))
	if snap.Voltage > b.limits.MaxCellVoltage*n {
		faults = append(faults, Fault{Kind: OverVoltage, Scope: ScopePack})
	} else if snap.Voltage < b.limits.MinCellVoltage*n {
		faults = append(faults, Fault{Kind: UnderVoltage, Scope: ScopePack})
	}

	if math.Abs(snap.Current) > b.limits.MaxDischargeCurrent {
		faults = append(faults, Fault{Kind: OverCurrent, Scope: ScopePack})
	}

	if snap.Temperature > b.limits.MaxTemperature {
		faults = append(faults, Fault{Kind: OverTemperature, Scope: ScopePack})
	} else if snap.Temperature < b.limits.MinTemperature {
		faults = append(faults, Fault{Kind: UnderTemperature, Scope: ScopePack})
	}

	for i, c := range cells {
		if c.Voltage > b.limits.MaxCellVoltage {
			faults = append(faults, Fault{Kind: OverVoltage, Scope: ScopeCell, Cell: i})
		} else if c.Voltage < b.limits.MinCellVoltage {
			faults = append(faults, Fault{Kind: UnderVoltage, Scope: ScopeCell, Cell: i})
		}
		if c.Temperature > b.limits.MaxTemperature {
			faults = append(faults, Fault{Kind: OverTemperature, Scope: ScopeCell, Cell: i})
		} else if c.Temperature < b.limits.MinTemperature {
			faults = append(faults, Fault{Kind: UnderTemperature, Scope: ScopeCell, Cell: i})
		}
	}

	if len(faults) > 0 {
		b.log.Appendf("Fault(s) Detected: %s", JoinFaults(faults))
		b.logg.Warnf("detected %d fault(s): %s", len(faults), JoinFaults(faults))
	} else {
		b.log.Append("No Faults Detected")
	}
	return faults
}

// EnsureSafety reduces fault detection to a boolean without mutating pack
// state.
func (b *BMS) EnsureSafety() bool {
	faults := b.DetectFaults()
	if len(faults) > 0 {
		b.log.Appendf("Safety Check Failed: %s", JoinFaults(faults))
		return false
	}
	b.log.Append("Safety Check Passed")
	return true
}

// HandleFaults re-runs detection and applies local corrective actuation
// where a safe remedy exists. It returns the faults left unresolved this
// tick; those propagate to the EMS as a hard constraint.
func (b *BMS) HandleFaults() []Fault {
	faults := b.DetectFaults()
	var unresolved []Fault
	cells := b.pack.Cells()

	for _, f := range faults {
		switch {
		case f.Kind == LowSoH:
			unresolved = append(unresolved, f)
			b.log.Append("Low SoH Detected - Replacement Recommended")
		case f.Kind == OverVoltage && f.Scope == ScopeCell:
			cells[f.Cell].Discharge(correctionCurrent)
			b.log.Appendf("Discharging Cell %d", f.Cell)
		case f.Kind == UnderVoltage && f.Scope == ScopeCell:
			cells[f.Cell].Charge(correctionCurrent)
			b.log.Appendf("Charging Cell %d", f.Cell)
		case f.Kind == OverTemperature:
			for _, c := range cells {
				c.AdjustTemperature(-thermalStep)
			}
			b.log.Append("Cooling Pack")
		case f.Kind == UnderTemperature:
			for _, c := range cells {
				c.AdjustTemperature(thermalStep)
			}
			b.log.Append("Heating Pack")
		default:
			// Pack voltage/current excursions have no local remedy.
			unresolved = append(unresolved, f)
		}
	}

	b.log.Append("Fault Handling Complete")
	return unresolved
}

// BalanceCells runs passive balancing: every cell above the minimum SoC is
// bled down to the voltage mapped from that minimum. The bleed is computed
// in closed form so it always terminates. Returns the per-cell "was
// balanced" vector.
func (b *BMS) BalanceCells() []bool {
	cells := b.pack.Cells()
	socs := make([]float64, len(cells))
	for i, c := range cells {
		socs[i] = c.SoC
	}
	minSoC := floats.Min(socs)
	target := socToVoltage(minSoC)

	balanced := make([]bool, len(cells))
	for i, c := range cells {
		if c.SoC <= minSoC {
			continue
		}
		steps := bleedSteps(c.Voltage, target, b.cfg.BalancingStep)
		if steps > 0 {
			c.Voltage -= float64(steps) * b.cfg.BalancingStep
			balanced[i] = true
		}
	}

	if anyTrue(balanced) {
		b.log.Append("Cell Balancing")
	} else {
		b.log.Append("No Balancing Needed")
	}
	return balanced
}

// CheckReplacement sets and returns the sticky replacement advisory once the
// pack SoH drops below the minimum. The message stays set until overwritten.
func (b *BMS) CheckReplacement() string {
	soh := b.pack.SoH()
	if soh < b.cfg.MinSoH {
		b.replacementMsg = fmt.Sprintf(
			"WARNING: Battery pack SoH (%.2f%%) is below the minimum threshold (%.0f%%). Please replace the device.",
			soh, b.cfg.MinSoH)
		b.log.Append("Replacement Recommended")
		return b.replacementMsg
	}
	return ""
}

// ReplacementMessage returns the current sticky advisory, empty if none.
func (b *BMS) ReplacementMessage() string { return b.replacementMsg }

// UpdateChargeState records the charging/discharging/idle label for the bus
// current direction.
func (b *BMS) UpdateChargeState(current float64) {
	switch {
	case current > 0:
		b.chargeState = "Charging"
	case current < 0:
		b.chargeState = "Discharging"
	default:
		b.chargeState = "Idle"
	}
}

// ChargeState returns the last recorded charge-state label.
func (b *BMS) ChargeState() string { return b.chargeState }

// Balancing returns which cells exceed the average voltage by the balancing
// threshold, along with that average.
func (b *BMS) Balancing() BalancingInfo {
	cells := b.pack.Cells()
	vs := make([]float64, len(cells))
	for i, c := range cells {
		vs[i] = c.Voltage
	}
	avg := stat.Mean(vs, nil)
	info := BalancingInfo{AvgVoltage: avg}
	for i, v := range vs {
		if v > avg+balancingThreshold {
			info.CellsToDischarge = append(info.CellsToDischarge, i)
		}
	}
	return info
}

// Actions returns the full audit trail.
func (b *BMS) Actions() []string { return b.log.All() }

// LastAction returns the most recent audit entry.
func (b *BMS) LastAction() string { return b.log.Last() }

// ClearActions empties the audit trail.
func (b *BMS) ClearActions() { b.log.Clear() }

// socToVoltage maps SoC in percent onto the fixed linear balancing target.
func socToVoltage(soc float64) float64 {
	return balanceMinVoltage + (balanceMaxVoltage-balanceMinVoltage)*(soc/100)
}

// bleedSteps returns how many fixed-size steps bring v down to at most
// target. The epsilon keeps floating-point residue from adding a step when
// the gap divides exactly.
func bleedSteps(v, target, step float64) int {
	if v <= target || step <= 0 {
		return 0
	}
	return int(math.Ceil((v-target)/step - 1e-9))
}

func anyTrue(bs []bool) bool {
	for _, b := range bs {
		if b {
			return true
		}
	}
	return false
}
