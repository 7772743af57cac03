package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/enerflow/bess/core/metrics"
)

func TestPromSinkRecordsTicks(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(coremetrics.Config{}, reg)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	snap := coremetrics.TickSnapshot{
		Run: "test", Hour: 12, Voltage: 14.8, SoC: 80, SoH: 100,
		GridKW: 2, BatteryKW: 1, Time: time.Now(),
	}
	if err := sink.RecordTick(snap); err != nil {
		t.Fatalf("record tick: %v", err)
	}
	if err := sink.RecordFaults([]coremetrics.FaultEvent{
		{Run: "test", Kind: "overvoltage", Scope: "cell", Cell: 1, Time: time.Now()},
	}); err != nil {
		t.Fatalf("record faults: %v", err)
	}
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := map[string]bool{}
	for _, mf := range mfs {
		found[mf.GetName()] = true
	}
	for _, name := range []string{"bess_pack_voltage_volts", "bess_simulation_ticks_total", "bess_faults_total"} {
		if !found[name] {
			t.Fatalf("metric %s not registered, got %v", name, found)
		}
	}
}

func TestPromSinkDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewPromSinkWithRegistry(coremetrics.Config{}, reg); err != nil {
		t.Fatalf("first sink: %v", err)
	}
	// A second sink on the same registry must reuse the collectors.
	if _, err := NewPromSinkWithRegistry(coremetrics.Config{}, reg); err != nil {
		t.Fatalf("second sink: %v", err)
	}
}

func TestMultiSinkFansOut(t *testing.T) {
	reg := prometheus.NewRegistry()
	prom, err := NewPromSinkWithRegistry(coremetrics.Config{}, reg)
	if err != nil {
		t.Fatalf("prom sink: %v", err)
	}
	multi := NewMultiSink(prom, coremetrics.NopSink{})
	if err := multi.RecordTick(coremetrics.TickSnapshot{Run: "m"}); err != nil {
		t.Fatalf("multi record: %v", err)
	}
	if err := multi.RecordFaults(nil); err != nil {
		t.Fatalf("multi faults: %v", err)
	}
}
