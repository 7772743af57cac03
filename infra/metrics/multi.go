package metrics

import coremetrics "github.com/enerflow/bess/core/metrics"

// MultiSink fans records out to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordTick forwards the snapshot to all sinks, returning the first error
// encountered.
func (m *MultiSink) RecordTick(snap coremetrics.TickSnapshot) error {
	for _, s := range m.Sinks {
		if err := s.RecordTick(snap); err != nil {
			return err
		}
	}
	return nil
}

// RecordFaults forwards the fault events to all sinks.
func (m *MultiSink) RecordFaults(events []coremetrics.FaultEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordFaults(events); err != nil {
			return err
		}
	}
	return nil
}
