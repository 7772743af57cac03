// Package metrics defines the observability sink interfaces for the
// simulation core. Concrete sinks live under infra/metrics.
package metrics

import "time"

// TickSnapshot captures one simulation tick for recording.
type TickSnapshot struct {
	Run         string
	Hour        float64
	Voltage     float64
	Current     float64
	Temperature float64
	SoC         float64
	SoH         float64
	SolarKW     float64
	DemandKW    float64
	GridKW      float64
	BatteryKW   float64
	Unresolved  int
	LastAction  string
	Time        time.Time
}

// FaultEvent captures one detected fault for recording.
type FaultEvent struct {
	Run   string
	Kind  string
	Scope string
	Cell  int
	Time  time.Time
}

// TickRecorder records per-tick snapshots.
type TickRecorder interface {
	RecordTick(snap TickSnapshot) error
}

// FaultRecorder records fault occurrences.
type FaultRecorder interface {
	RecordFaults(events []FaultEvent) error
}

// Sink is implemented by every metrics backend.
type Sink interface {
	TickRecorder
	FaultRecorder
}

// NopSink implements Sink with no-op methods.
type NopSink struct{}

func (NopSink) RecordTick(TickSnapshot) error   { return nil }
func (NopSink) RecordFaults([]FaultEvent) error { return nil }
