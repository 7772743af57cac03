// Package pack aggregates an ordered, fixed-size collection of cells wired
// in series on a shared bus. The pack owns its cells and only exposes
// derived read queries; actuation happens through the BMS.
package pack

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/enerflow/bess/core/cell"
)

// Pack is a series string of cells sharing one bus current.
type Pack struct {
	cells []*cell.Cell
}

// New builds a pack of n identical cells. It rejects packs without cells
// since the aggregate queries are undefined for an empty string.
func New(n int, capacityAh, initialVoltage, initialSoC float64) (*Pack, error) {
	if n <= 0 {
		return nil, fmt.Errorf("pack must contain at least one cell, got %d", n)
	}
	if capacityAh <= 0 {
		return nil, fmt.Errorf("cell capacity must be positive, got %v", capacityAh)
	}
	cells := make([]*cell.Cell, n)
	for i := range cells {
		cells[i] = cell.New(capacityAh, initialVoltage, initialSoC)
	}
	return &Pack{cells: cells}, nil
}

// Cells returns the ordered cell slice for BMS actuation.
func (p *Pack) Cells() []*cell.Cell { return p.cells }

// Size returns the number of cells.
func (p *Pack) Size() int { return len(p.cells) }

// Voltage is the series sum of all cell voltages.
func (p *Pack) Voltage() float64 {
	return floats.Sum(p.gather(func(c *cell.Cell) float64 { return c.Voltage }))
}

// Current is the shared bus current, read from the first cell.
func (p *Pack) Current() float64 {
	if len(p.cells) == 0 {
		return 0
	}
	return p.cells[0].Current
}

// Temperature is the maximum cell temperature; the worst cell governs safety.
func (p *Pack) Temperature() float64 {
	return floats.Max(p.gather(func(c *cell.Cell) float64 { return c.Temperature }))
}

// SoC is the mean state of charge across cells.
func (p *Pack) SoC() float64 {
	return stat.Mean(p.gather(func(c *cell.Cell) float64 { return c.SoC }), nil)
}

// SoH is the mean state of health across cells.
func (p *Pack) SoH() float64 {
	return stat.Mean(p.gather(func(c *cell.Cell) float64 { return c.SoH }), nil)
}

// AvgCycleCount is the mean cycle count across cells.
func (p *Pack) AvgCycleCount() float64 {
	return stat.Mean(p.gather(func(c *cell.Cell) float64 { return c.CycleCount }), nil)
}

func (p *Pack) gather(f func(*cell.Cell) float64) []float64 {
	vals := make([]float64, len(p.cells))
	for i, c := range p.cells {
		vals[i] = f(c)
	}
	return vals
}
