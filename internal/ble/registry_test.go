package ble

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nearfield-data/nearfield.report/internal/timeutil"
)

func TestIngestTrendSequence(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	reg := NewDeviceRegistry(clock)

	steps := []struct {
		rssi      int
		wantTrend Trend
		wantCount int
	}{
		{-70, TrendStable, 1},
		{-60, TrendRising, 2},
		{-60, TrendStable, 3},
		{-80, TrendFalling, 4},
	}
	for i, step := range steps {
		reg.Ingest("AA:BB:CC:DD:EE:FF", step.rssi, 1.0, "details")
		snap := reg.Snapshot()
		if len(snap) != 1 {
			t.Fatalf("step %d: snapshot has %d devices, want 1", i, len(snap))
		}
		if snap[0].Trend != step.wantTrend {
			t.Errorf("step %d: trend = %s, want %s", i, snap[0].Trend, step.wantTrend)
		}
		if snap[0].Count != step.wantCount {
			t.Errorf("step %d: count = %d, want %d", i, snap[0].Count, step.wantCount)
		}
	}
}

func TestEvictStale(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := timeutil.NewMockClock(start)
	reg := NewDeviceRegistry(clock)

	reg.Ingest("STALE", -70, 2.0, "")
	clock.Set(start.Add(45 * time.Second))
	reg.Ingest("FRESH", -60, 1.0, "")
	clock.Set(start.Add(70 * time.Second))

	if evicted := reg.EvictStale(60 * time.Second); evicted != 1 {
		t.Errorf("EvictStale evicted %d devices, want 1", evicted)
	}

	snap := reg.Snapshot()
	if len(snap) != 1 || snap[0].Address != "FRESH" {
		t.Errorf("snapshot after eviction = %+v, want only FRESH", snap)
	}
}

func TestSnapshotSortedByRSSIDescending(t *testing.T) {
	clock := timeutil.NewMockClock(time.Now())
	reg := NewDeviceRegistry(clock)

	reg.Ingest("WEAK", -85, 8.0, "")
	reg.Ingest("STRONG", -40, 0.5, "")
	reg.Ingest("MID", -60, 2.0, "")

	snap := reg.Snapshot()
	var got []string
	for _, d := range snap {
		got = append(got, d.Address)
	}
	want := []string{"STRONG", "MID", "WEAK"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("snapshot order mismatch (-want +got):\n%s", diff)
	}
}

func TestSnapshotIdempotent(t *testing.T) {
	clock := timeutil.NewMockClock(time.Now())
	reg := NewDeviceRegistry(clock)
	reg.Ingest("A", -50, 1.0, "x")
	reg.Ingest("B", -60, 2.0, "y")

	first := reg.Snapshot()
	second := reg.Snapshot()
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("consecutive snapshots differ (-first +second):\n%s", diff)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	clock := timeutil.NewMockClock(time.Now())
	reg := NewDeviceRegistry(clock)
	reg.Ingest("A", -50, 1.0, "x")

	snap := reg.Snapshot()
	snap[0].RSSI = -99

	if fresh := reg.Snapshot(); fresh[0].RSSI != -50 {
		t.Errorf("mutating a snapshot changed the registry: rssi = %d", fresh[0].RSSI)
	}
}

func TestTrendSymbol(t *testing.T) {
	if TrendRising.Symbol() != "↗" || TrendFalling.Symbol() != "↘" || TrendStable.Symbol() != "→" {
		t.Error("trend symbols do not match the presentation arrows")
	}
}
