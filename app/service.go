// Package app wires the battery pack, BMS and EMS together with the
// configured observability sinks and runs the simulation loop.
package app

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/enerflow/bess/config"
	"github.com/enerflow/bess/core/bms"
	"github.com/enerflow/bess/core/ems"
	coremetrics "github.com/enerflow/bess/core/metrics"
	"github.com/enerflow/bess/core/pack"
	"github.com/enerflow/bess/infra/logger"
	"github.com/enerflow/bess/infra/metrics"
	"github.com/enerflow/bess/infra/mqtt"
	"github.com/enerflow/bess/internal/eventbus"
)

// TickEvent is published on the event bus after every simulation tick.
type TickEvent struct {
	Run        string
	Step       int
	Hour       float64
	State      ems.State
	Unresolved []bms.Fault
}

// Service drives one simulated battery installation.
type Service struct {
	EMS *ems.EMS

	cfg          *config.Config
	runID        string
	bus          *eventbus.Bus[TickEvent]
	sink         coremetrics.Sink
	pub          *mqtt.StatePublisher
	log          logger.Logger
	tickInterval time.Duration
	promEnabled  bool
	promPort     string
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	p, err := pack.New(cfg.Pack.NumCells, cfg.Pack.CellCapacityAh, cfg.Pack.InitialVoltage, cfg.Pack.InitialSoC)
	if err != nil {
		return nil, fmt.Errorf("pack: %w", err)
	}
	b := bms.New(p, cfg.BMS, logger.New("bms"))

	var rng *rand.Rand
	if cfg.EMS.Seed != 0 {
		rng = rand.New(rand.NewSource(cfg.EMS.Seed))
	}
	e := ems.New(b, cfg.EMS, rng, logger.New("ems"))

	var sinks []coremetrics.Sink
	if cfg.Metrics.PrometheusEnabled {
		sink, err := metrics.NewPromSink(cfg.Metrics)
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Metrics.InfluxEnabled {
		sink := metrics.NewInfluxSinkWithFallback(cfg.Metrics.InfluxURL, cfg.Metrics.InfluxToken,
			cfg.Metrics.InfluxOrg, cfg.Metrics.InfluxBucket)
		sinks = append(sinks, sink)
	}
	var sink coremetrics.Sink = coremetrics.NopSink{}
	if len(sinks) == 1 {
		sink = sinks[0]
	} else if len(sinks) > 1 {
		sink = metrics.NewMultiSink(sinks...)
	}

	var pub *mqtt.StatePublisher
	if cfg.MQTT.Enabled {
		pub, err = mqtt.NewStatePublisher(cfg.MQTT)
		if err != nil {
			return nil, fmt.Errorf("mqtt publisher: %w", err)
		}
	}

	var tick time.Duration
	if cfg.Sim.TickInterval != "" {
		tick, err = time.ParseDuration(cfg.Sim.TickInterval)
		if err != nil {
			return nil, fmt.Errorf("tick_interval: %w", err)
		}
	}

	return &Service{
		EMS:          e,
		cfg:          cfg,
		runID:        uuid.NewString(),
		bus:          eventbus.New[TickEvent](8),
		sink:         sink,
		pub:          pub,
		log:          logg,
		tickInterval: tick,
		promEnabled:  cfg.Metrics.PrometheusEnabled,
		promPort:     cfg.Metrics.PrometheusPort,
	}, nil
}

// RunID identifies this simulation run in metrics.
func (s *Service) RunID() string { return s.runID }

// Subscribe returns a channel of tick events for external observers.
func (s *Service) Subscribe() <-chan TickEvent { return s.bus.Subscribe() }

// Run executes the simulation loop until the configured duration elapses or
// the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.promEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.promPort); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	dt := s.cfg.Sim.TimeStepHours
	steps := int(math.Ceil(s.cfg.Sim.DurationHours / dt))
	s.log.Infof("run %s: %d steps of %gh starting at hour %g", s.runID, steps, dt, s.cfg.Sim.StartHour)

	for i := 0; i < steps; i++ {
		select {
		case <-ctx.Done():
			s.log.Infof("run %s cancelled at step %d", s.runID, i)
			return ctx.Err()
		default:
		}

		hour := math.Mod(s.cfg.Sim.StartHour+float64(i)*dt, 24)
		s.step(i, hour, dt)

		if s.tickInterval > 0 {
			timer := time.NewTimer(s.tickInterval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	s.log.Infof("run %s complete", s.runID)
	return nil
}

// step advances the simulation by one tick and records the outcome.
func (s *Service) step(i int, hour, dt float64) {
	solar := s.EMS.PredictSolar(hour)
	demand := s.EMS.PredictDemand(hour)
	s.EMS.Update(hour, dt, solar, demand)

	b := s.EMS.BMS()
	b.UpdateChargeState(b.Pack().Current())

	st := s.EMS.SystemState()
	unresolved := s.EMS.UnresolvedFaults()
	now := time.Now()

	snap := coremetrics.TickSnapshot{
		Run:         s.runID,
		Hour:        hour,
		Voltage:     st.BatteryVoltage,
		Current:     st.BatteryCurrent,
		Temperature: st.BatteryTemperature,
		SoC:         st.BatterySoC,
		SoH:         st.BatterySoH,
		SolarKW:     st.SolarGeneration,
		DemandKW:    st.Demand,
		GridKW:      st.GridPower,
		BatteryKW:   st.BatteryPower,
		Unresolved:  len(unresolved),
		LastAction:  st.LastAction,
		Time:        now,
	}
	if err := s.sink.RecordTick(snap); err != nil {
		s.log.Errorf("record tick: %v", err)
	}
	if len(unresolved) > 0 {
		events := make([]coremetrics.FaultEvent, len(unresolved))
		for j, f := range unresolved {
			events[j] = coremetrics.FaultEvent{
				Run:   s.runID,
				Kind:  f.Kind.String(),
				Scope: f.Scope.String(),
				Cell:  f.Cell,
				Time:  now,
			}
		}
		if err := s.sink.RecordFaults(events); err != nil {
			s.log.Errorf("record faults: %v", err)
		}
	}

	s.bus.Publish(TickEvent{Run: s.runID, Step: i, Hour: hour, State: st, Unresolved: unresolved})

	if s.pub != nil {
		if err := s.pub.Publish(st); err != nil {
			s.log.Errorf("publish state: %v", err)
		}
	}

	for _, action := range s.EMS.BMSActions() {
		s.log.Debugw("bms action", map[string]any{"step": i, "hour": hour, "action": action})
	}
	s.EMS.ClearBMSActions()
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	s.bus.Close()
	if s.pub != nil {
		s.pub.Close()
	}
	if closer, ok := s.sink.(interface{ Close() }); ok {
		closer.Close()
	}
	return nil
}
