package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/enerflow/bess/core/metrics"
	"github.com/enerflow/bess/infra/logger"
)

// InfluxSink writes simulation ticks and faults to an InfluxDB instance
// using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and returns
// a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.Sink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordTick writes one point per simulation tick.
func (s *InfluxSink) RecordTick(snap coremetrics.TickSnapshot) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("bess_tick").
		AddTag("run", snap.Run).
		AddField("hour", snap.Hour).
		AddField("voltage", snap.Voltage).
		AddField("current", snap.Current).
		AddField("temperature", snap.Temperature).
		AddField("soc", snap.SoC).
		AddField("soh", snap.SoH).
		AddField("solar_kw", snap.SolarKW).
		AddField("demand_kw", snap.DemandKW).
		AddField("grid_kw", snap.GridKW).
		AddField("battery_kw", snap.BatteryKW).
		AddField("unresolved_faults", snap.Unresolved).
		AddField("last_action", snap.LastAction).
		SetTime(snap.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordFaults writes one point per detected fault.
func (s *InfluxSink) RecordFaults(events []coremetrics.FaultEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, ev := range events {
		p := write.NewPointWithMeasurement("bess_fault").
			AddTag("run", ev.Run).
			AddTag("kind", ev.Kind).
			AddTag("scope", ev.Scope).
			AddTag("cell", strconv.Itoa(ev.Cell)).
			AddField("count", 1).
			SetTime(ev.Time)
		if err := s.writeAPI.WritePoint(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying client.
func (s *InfluxSink) Close() { s.client.Close() }
