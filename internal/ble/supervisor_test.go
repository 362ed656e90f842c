package ble

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nearfield-data/nearfield.report/internal/monitoring"
	"github.com/nearfield-data/nearfield.report/internal/timeutil"
)

func init() {
	monitoring.SetLogger(nil)
}

func TestStateForFailure(t *testing.T) {
	protoErr := &ProtocolError{Op: "start", Err: errors.New("adapter busy")}
	assert.Equal(t, StateBackoffShort, stateForFailure(protoErr))
	assert.Equal(t, StateBackoffShort, stateForFailure(errors.Join(errors.New("outer"), protoErr)))
	assert.Equal(t, StateBackoffLong, stateForFailure(errors.New("something else")))
}

func TestRetryDelayTiers(t *testing.T) {
	assert.Equal(t, 5*time.Second, StateBackoffShort.RetryDelay())
	assert.Equal(t, 15*time.Second, StateBackoffLong.RetryDelay())
	assert.Equal(t, time.Duration(0), StateRunning.RetryDelay())
	assert.Equal(t, time.Duration(0), StateStopped.RetryDelay())
}

func tagAdvert(address string, rssi int) Advertisement {
	return Advertisement{
		Address: address,
		RSSI:    rssi,
		ManufacturerData: map[uint16][]byte{
			AppleCompanyID: {0x12, 0x19, 0x10, 0x00},
		},
	}
}

// waitFor polls until cond is true or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal(msg)
}

func TestSupervisorIngestsTagDetections(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	reg := NewDeviceRegistry(clock)
	scanner := NewMockScanner([]Advertisement{
		tagAdvert("AA:BB:CC:DD:EE:01", -60),
		{Address: "FF:00:00:00:00:00", RSSI: -50}, // no manufacturer data, ignored
	})
	scanner.Interval = 0

	sup := NewSupervisor(scanner, reg, clock, DefaultSupervisorConfig())

	var sightings int
	sup.OnSighting = func(adv Advertisement, distance float64) { sightings++ }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(done)
	}()

	waitFor(t, func() bool { return reg.Len() == 1 }, "detection never reached the registry")

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop after cancellation")
	}

	assert.Equal(t, StateStopped, sup.State())
	snap := reg.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "AA:BB:CC:DD:EE:01", snap[0].Address)
	assert.Positive(t, sightings)
	assert.NotEmpty(t, sup.Activity())
}

func TestSupervisorShortBackoffOnProtocolError(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	reg := NewDeviceRegistry(clock)
	scanner := NewMockScanner([]Advertisement{tagAdvert("AA:BB:CC:DD:EE:01", -60)})
	scanner.Interval = 0
	scanner.SetFailure(1, &ProtocolError{Op: "scan", Err: errors.New("adapter reset")})

	sup := NewSupervisor(scanner, reg, clock, DefaultSupervisorConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(done)
	}()

	waitFor(t, func() bool { return sup.State() == StateBackoffShort }, "supervisor never entered short backoff")

	status := sup.Status()
	assert.Equal(t, clock.Now().Add(ShortRetryDelay), status.NextRetry)

	// The registry keeps last-known state across the restart.
	assert.Equal(t, 1, reg.Len())

	// Advancing past the short delay restarts the scanner. Advance in a
	// loop because the backoff waiter registers asynchronously.
	scanner.SetFailure(0, nil)
	deadline := time.Now().Add(2 * time.Second)
	for sup.State() != StateRunning && time.Now().Before(deadline) {
		clock.Advance(ShortRetryDelay)
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, StateRunning, sup.State(), "supervisor never restarted after backoff")

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop after cancellation")
	}
}

func TestSupervisorLongBackoffOnUnexpectedError(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	reg := NewDeviceRegistry(clock)
	scanner := NewMockScanner([]Advertisement{tagAdvert("AA:BB:CC:DD:EE:01", -60)})
	scanner.Interval = 0
	scanner.FailAfter = 1
	scanner.Err = errors.New("dbus connection lost")

	sup := NewSupervisor(scanner, reg, clock, DefaultSupervisorConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(done)
	}()

	waitFor(t, func() bool { return sup.State() == StateBackoffLong }, "supervisor never entered long backoff")
	assert.Equal(t, clock.Now().Add(LongRetryDelay), sup.Status().NextRetry)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop while backing off")
	}
	assert.Equal(t, StateStopped, sup.State())
}

func TestSupervisorEvictsEveryThirtiethScan(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := timeutil.NewMockClock(start)
	reg := NewDeviceRegistry(clock)
	reg.Ingest("OLD:DEVICE", -70, 3.0, "")

	scanner := NewMockScanner(nil) // no advertisements, just the poll loop
	cfg := DefaultSupervisorConfig()
	cfg.DeviceTimeout = 60 * time.Second
	sup := NewSupervisor(scanner, reg, clock, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(done)
	}()

	waitFor(t, func() bool { return sup.State() == StateRunning }, "supervisor never started")
	waitFor(t, func() bool { return len(clock.Tickers()) > 0 }, "poll ticker never created")
	ticker := clock.Tickers()[0]

	// Age the entry beyond the timeout, then deliver poll ticks. The
	// sweep happens on the 30th cycle, not before.
	clock.Set(start.Add(2 * time.Minute))
	for i := 0; i < 29; i++ {
		ticker.Trigger(clock.Now())
		waitFor(t, func() bool { return sup.ScanCount() == int64(i+1) }, "tick not consumed")
	}
	assert.Equal(t, 1, reg.Len(), "eviction ran before the 30th scan")

	ticker.Trigger(clock.Now())
	waitFor(t, func() bool { return sup.ScanCount() == 30 }, "30th tick not consumed")
	waitFor(t, func() bool { return reg.Len() == 0 }, "stale device survived the 30th scan sweep")

	cancel()
	<-done
}
