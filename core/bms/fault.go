package bms

import (
	"fmt"
	"strings"
)

// Kind enumerates the closed fault taxonomy. Faults are the only abnormal
// condition in the core; there is no fatal error path.
type Kind int

const (
	OverVoltage Kind = iota
	UnderVoltage
	OverCurrent
	OverTemperature
	UnderTemperature
	LowSoH
)

// String returns the reason fragment used in the audit trail.
func (k Kind) String() string {
	switch k {
	case OverVoltage:
		return "overvoltage"
	case UnderVoltage:
		return "undervoltage"
	case OverCurrent:
		return "overcurrent"
	case OverTemperature:
		return "overtemperature"
	case UnderTemperature:
		return "undertemperature"
	case LowSoH:
		return "low state of health"
	default:
		return "unknown"
	}
}

// Scope tells whether a fault concerns the whole pack or a single cell.
type Scope int

const (
	ScopePack Scope = iota
	ScopeCell
)

// String returns the scope label used in metrics.
func (s Scope) String() string {
	if s == ScopeCell {
		return "cell"
	}
	return "pack"
}

// Fault is a tagged fault record produced by DetectFaults and consumed
// directly by HandleFaults. Cell is only meaningful for ScopeCell.
type Fault struct {
	Kind  Kind
	Scope Scope
	Cell  int
}

// String renders the fault as "<scope> <reason>" for the action log.
func (f Fault) String() string {
	if f.Scope == ScopeCell {
		return fmt.Sprintf("Cell %d %s", f.Cell, f.Kind)
	}
	return fmt.Sprintf("Pack %s", f.Kind)
}

// JoinFaults renders a fault list as a comma-separated summary line.
func JoinFaults(faults []Fault) string {
	parts := make([]string, len(faults))
	for i, f := range faults {
		parts[i] = f.String()
	}
	return strings.Join(parts, ", ")
}
