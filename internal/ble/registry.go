package ble

import (
	"sort"
	"sync"
	"time"

	"github.com/nearfield-data/nearfield.report/internal/timeutil"
)

// Trend is the direction of signal-strength change between consecutive
// detections of the same device.
type Trend string

const (
	TrendRising  Trend = "rising"  // signal increasing, device approaching
	TrendStable  Trend = "stable"  // signal unchanged
	TrendFalling Trend = "falling" // signal decreasing, device receding
)

// Symbol returns the arrow used on the presentation surface.
func (t Trend) Symbol() string {
	switch t {
	case TrendRising:
		return "↗"
	case TrendFalling:
		return "↘"
	default:
		return "→"
	}
}

// TrackedDevice is one detected tag as held by the registry. Snapshots
// hand out copies, never live entries.
type TrackedDevice struct {
	Address  string    `json:"address"`
	RSSI     int       `json:"rssi"`
	Distance float64   `json:"distance"`
	Trend    Trend     `json:"trend"`
	Count    int       `json:"count"`
	LastSeen time.Time `json:"last_seen"`
	Details  string    `json:"details"`
}

// DeviceRegistry is the concurrent keyed store of tracked devices. The
// BLE worker mutates it through Ingest and EvictStale; readers take
// snapshots. One mutex serializes every operation, held for the minimum
// duration and never across a suspension point.
type DeviceRegistry struct {
	mu      sync.Mutex
	devices map[string]TrackedDevice
	clock   timeutil.Clock
}

// NewDeviceRegistry creates an empty registry using the given clock for
// last-seen timestamps.
func NewDeviceRegistry(clock timeutil.Clock) *DeviceRegistry {
	return &DeviceRegistry{
		devices: make(map[string]TrackedDevice),
		clock:   clock,
	}
}

// Ingest records a detection. A re-detected address gets its trend from
// the comparison against the immediately preceding RSSI sample only (no
// windowing or smoothing), an incremented count, and a refreshed
// last-seen time. A new address starts stable with count 1.
func (r *DeviceRegistry) Ingest(address string, rssi int, distance float64, details string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now().UTC()
	prev, exists := r.devices[address]
	if !exists {
		r.devices[address] = TrackedDevice{
			Address:  address,
			RSSI:     rssi,
			Distance: distance,
			Trend:    TrendStable,
			Count:    1,
			LastSeen: now,
			Details:  details,
		}
		return
	}

	trend := TrendStable
	switch {
	case rssi > prev.RSSI:
		trend = TrendRising
	case rssi < prev.RSSI:
		trend = TrendFalling
	}

	r.devices[address] = TrackedDevice{
		Address:  address,
		RSSI:     rssi,
		Distance: distance,
		Trend:    trend,
		Count:    prev.Count + 1,
		LastSeen: now,
		Details:  details,
	}
}

// EvictStale removes every device whose last sighting is older than the
// timeout, returning how many were removed. The supervisor calls this
// periodically rather than on every ingest.
func (r *DeviceRegistry) EvictStale(timeout time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	threshold := r.clock.Now().UTC().Add(-timeout)
	var stale []string
	for address, device := range r.devices {
		if device.LastSeen.Before(threshold) {
			stale = append(stale, address)
		}
	}
	for _, address := range stale {
		delete(r.devices, address)
	}
	return len(stale)
}

// Snapshot returns a copy of the registry sorted by RSSI descending
// (strongest signal first), safe for concurrent reads during ingestion.
func (r *DeviceRegistry) Snapshot() []TrackedDevice {
	r.mu.Lock()
	defer r.mu.Unlock()

	devices := make([]TrackedDevice, 0, len(r.devices))
	for _, device := range r.devices {
		devices = append(devices, device)
	}
	sort.Slice(devices, func(i, j int) bool {
		if devices[i].RSSI != devices[j].RSSI {
			return devices[i].RSSI > devices[j].RSSI
		}
		return devices[i].Address < devices[j].Address
	})
	return devices
}

// Len returns the number of tracked devices.
func (r *DeviceRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.devices)
}
