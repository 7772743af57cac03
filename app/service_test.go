package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/enerflow/bess/config"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.EMS.Seed = 42
	cfg.Sim.DurationHours = 6
	return cfg
}

func TestServiceRunsConfiguredSteps(t *testing.T) {
	cfg := testConfig()
	svc, err := New(cfg)
	require.NoError(t, err)
	defer func() { _ = svc.Close() }()

	events := svc.Subscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, svc.Run(ctx))

	var got []TickEvent
	for {
		select {
		case ev := <-events:
			got = append(got, ev)
			if len(got) == 6 {
				goto done
			}
		case <-time.After(time.Second):
			t.Fatalf("expected 6 tick events, got %d", len(got))
		}
	}
done:
	for i, ev := range got {
		if ev.Step != i {
			t.Fatalf("event %d: step %d", i, ev.Step)
		}
		if ev.Run != svc.RunID() {
			t.Fatalf("event %d: run %q want %q", i, ev.Run, svc.RunID())
		}
	}
	// Hours wrap around the clock from the configured start.
	require.InDelta(t, 5, got[5].Hour, 1e-9)
	require.NotEmpty(t, got[0].State.LastAction)
}

func TestServiceCancellation(t *testing.T) {
	cfg := testConfig()
	cfg.Sim.DurationHours = 1000
	cfg.Sim.TickInterval = "50ms"
	svc, err := New(cfg)
	require.NoError(t, err)
	defer func() { _ = svc.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Run(ctx) }()
	time.Sleep(120 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestServiceRejectsBadTickInterval(t *testing.T) {
	cfg := testConfig()
	cfg.Sim.TickInterval = "soon"
	if _, err := New(cfg); err == nil {
		t.Fatal("expected error for unparseable tick_interval")
	}
}
