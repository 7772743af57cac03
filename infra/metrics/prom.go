package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	coremetrics "github.com/enerflow/bess/core/metrics"
)

// PromSink exports simulation state as Prometheus metrics.
type PromSink struct {
	voltage     prometheus.Gauge
	current     prometheus.Gauge
	temperature prometheus.Gauge
	soc         prometheus.Gauge
	soh         prometheus.Gauge
	solar       prometheus.Gauge
	demand      prometheus.Gauge
	grid        prometheus.Gauge
	battery     prometheus.Gauge
	ticks       prometheus.Counter
	faults      *prometheus.CounterVec
}

// NewPromSink registers the simulation metrics on the default Prometheus
// registerer. The Prometheus server should be started separately using
// cfg.PrometheusPort.
func NewPromSink(cfg coremetrics.Config) (coremetrics.Sink, error) {
	return NewPromSinkWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(cfg coremetrics.Config, reg prometheus.Registerer) (coremetrics.Sink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		voltage:     prometheus.NewGauge(prometheus.GaugeOpts{Name: "bess_pack_voltage_volts", Help: "Series sum of cell voltages"}),
		current:     prometheus.NewGauge(prometheus.GaugeOpts{Name: "bess_pack_current_amperes", Help: "Shared bus current"}),
		temperature: prometheus.NewGauge(prometheus.GaugeOpts{Name: "bess_pack_temperature_celsius", Help: "Maximum cell temperature"}),
		soc:         prometheus.NewGauge(prometheus.GaugeOpts{Name: "bess_pack_soc_percent", Help: "Mean state of charge"}),
		soh:         prometheus.NewGauge(prometheus.GaugeOpts{Name: "bess_pack_soh_percent", Help: "Mean state of health"}),
		solar:       prometheus.NewGauge(prometheus.GaugeOpts{Name: "bess_solar_generation_kw", Help: "Solar generation input"}),
		demand:      prometheus.NewGauge(prometheus.GaugeOpts{Name: "bess_demand_kw", Help: "Demand input"}),
		grid:        prometheus.NewGauge(prometheus.GaugeOpts{Name: "bess_grid_power_kw", Help: "Power drawn from the grid"}),
		battery:     prometheus.NewGauge(prometheus.GaugeOpts{Name: "bess_battery_power_kw", Help: "Power routed through the battery"}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bess_simulation_ticks_total",
			Help: "Total number of simulation ticks",
		}),
		faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bess_faults_total",
			Help: "Total number of detected faults",
		}, []string{"kind", "scope", "cell"}),
	}

	regGauge := func(g prometheus.Gauge) (prometheus.Gauge, error) {
		if err := reg.Register(g); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				return are.ExistingCollector.(prometheus.Gauge), nil
			}
			return nil, err
		}
		return g, nil
	}
	var err error
	for _, g := range []*prometheus.Gauge{
		&s.voltage, &s.current, &s.temperature, &s.soc, &s.soh,
		&s.solar, &s.demand, &s.grid, &s.battery,
	} {
		if *g, err = regGauge(*g); err != nil {
			return nil, err
		}
	}
	if err := reg.Register(s.ticks); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			s.ticks = are.ExistingCollector.(prometheus.Counter)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(s.faults); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			s.faults = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}

	return s, nil
}

// RecordTick sets the gauges from the tick snapshot.
func (s *PromSink) RecordTick(snap coremetrics.TickSnapshot) error {
	s.voltage.Set(snap.Voltage)
	s.current.Set(snap.Current)
	s.temperature.Set(snap.Temperature)
	s.soc.Set(snap.SoC)
	s.soh.Set(snap.SoH)
	s.solar.Set(snap.SolarKW)
	s.demand.Set(snap.DemandKW)
	s.grid.Set(snap.GridKW)
	s.battery.Set(snap.BatteryKW)
	s.ticks.Inc()
	return nil
}

// RecordFaults increments the fault counter per event.
func (s *PromSink) RecordFaults(events []coremetrics.FaultEvent) error {
	for _, ev := range events {
		cellLabel := ""
		if ev.Scope == "cell" {
			cellLabel = strconv.Itoa(ev.Cell)
		}
		s.faults.WithLabelValues(ev.Kind, ev.Scope, cellLabel).Inc()
	}
	return nil
}

// StartPromServer starts an HTTP server exposing Prometheus metrics on the
// given address. The server runs until the provided context is canceled.
// A dedicated ServeMux is used to avoid interfering with other handlers.
func StartPromServer(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
