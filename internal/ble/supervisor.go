package ble

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nearfield-data/nearfield.report/internal/monitoring"
	"github.com/nearfield-data/nearfield.report/internal/timeutil"
)

// State is the supervisor's position in its restart state machine.
type State string

const (
	StateStarting     State = "starting"           // scanner is being (re)started
	StateRunning      State = "running"            // scanner delivering events
	StateBackoffShort State = "backoff-protocol"   // recoverable stack fault, short retry
	StateBackoffLong  State = "backoff-unexpected" // unclassified fault, long retry
	StateStopped      State = "stopped"            // terminal, stop signal observed
)

// Retry delays for the two backoff tiers.
const (
	ShortRetryDelay = 5 * time.Second
	LongRetryDelay  = 15 * time.Second
)

// evictEveryNScans is how many poll cycles pass between stale-device
// sweeps; eviction is amortized rather than run on every ingest.
const evictEveryNScans = 30

// activityBufferSize bounds the ring of recent manufacturer payload
// summaries kept for the presentation layer.
const activityBufferSize = 10

// stateForFailure classifies a source failure into the backoff state it
// triggers. Pure; the retry delay hangs off the returned state.
func stateForFailure(err error) State {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return StateBackoffShort
	}
	return StateBackoffLong
}

// RetryDelay returns the delay before restart for a backoff state and
// zero for every other state.
func (s State) RetryDelay() time.Duration {
	switch s {
	case StateBackoffShort:
		return ShortRetryDelay
	case StateBackoffLong:
		return LongRetryDelay
	}
	return 0
}

// SupervisorConfig holds the tunables of the BLE scan loop.
type SupervisorConfig struct {
	PollInterval  time.Duration // pause between poll cycles while running
	DeviceTimeout time.Duration // registry staleness timeout
	TxPower       int           // distance calibration constant
}

// DefaultSupervisorConfig returns the default scan loop configuration.
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		PollInterval:  time.Second,
		DeviceTimeout: 60 * time.Second,
		TxPower:       DefaultTxPower,
	}
}

// Status is a read-only copy of the supervisor's observable state.
type Status struct {
	State     State     `json:"state"`
	ScanCount int64     `json:"scan_count"`
	NextRetry time.Time `json:"next_retry,omitzero"`
}

// Supervisor drives the continuous BLE source: it owns the scanner
// subscription, forwards classified detections into the registry, and
// restarts the source with tiered backoff on failure. The registry is
// untouched by restarts.
type Supervisor struct {
	scanner  Scanner
	registry *DeviceRegistry
	clock    timeutil.Clock
	cfg      SupervisorConfig

	// OnSighting, when set, observes each accepted detection after the
	// registry commit. It runs on the worker goroutine and must not block.
	OnSighting func(adv Advertisement, distance float64)

	mu        sync.Mutex
	state     State
	scanCount int64
	nextRetry time.Time
	activity  []string
}

// NewSupervisor wires a supervisor over the given scanner and registry.
func NewSupervisor(scanner Scanner, registry *DeviceRegistry, clock timeutil.Clock, cfg SupervisorConfig) *Supervisor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.DeviceTimeout <= 0 {
		cfg.DeviceTimeout = 60 * time.Second
	}
	if cfg.TxPower == 0 {
		cfg.TxPower = DefaultTxPower
	}
	return &Supervisor{
		scanner:  scanner,
		registry: registry,
		clock:    clock,
		cfg:      cfg,
		state:    StateStarting,
	}
}

// Run executes the restart loop until ctx is cancelled. Source failures
// never escape: they are classified, logged with the retry countdown,
// and absorbed into a backoff. The only way out is the stop signal.
func (s *Supervisor) Run(ctx context.Context) {
	defer s.setState(StateStopped)

	for {
		if ctx.Err() != nil {
			return
		}

		s.setState(StateStarting)
		monitoring.Logf("ble: starting scanner")

		err := s.runScanner(ctx)
		if err == nil {
			// Stop signal observed at a poll boundary.
			return
		}

		next := stateForFailure(err)
		delay := next.RetryDelay()
		s.setBackoff(next, delay)
		monitoring.Logf("ble: scanner error: %v (restarting in %s)", err, delay)

		if !timeutil.WaitContext(ctx, s.clock, delay) {
			return
		}
	}
}

// runScanner drives one scanner lifetime: a poll loop over events,
// ticks, and monitor failure. Returns nil only when the stop signal was
// observed.
func (s *Supervisor) runScanner(ctx context.Context) error {
	monitorCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	monitorErr := make(chan error, 1)
	go func() {
		monitorErr <- s.scanner.Monitor(monitorCtx)
	}()

	s.setState(StateRunning)
	ticker := s.clock.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cancel()
			<-monitorErr // wait for the scanner to reach a safe stop
			return nil

		case err := <-monitorErr:
			if ctx.Err() != nil {
				return nil
			}
			if err == nil {
				err = errors.New("scanner stopped unexpectedly")
			}
			return err

		case adv := <-s.scanner.Events():
			s.handleAdvertisement(adv)

		case <-ticker.C():
			if n := s.incrementScanCount(); n%evictEveryNScans == 0 {
				if evicted := s.registry.EvictStale(s.cfg.DeviceTimeout); evicted > 0 {
					monitoring.Logf("ble: evicted %d stale devices", evicted)
				}
			}
		}
	}
}

// handleAdvertisement classifies one advertisement and, for tracked
// tags, commits the detection to the registry. Classification misses are
// silent.
func (s *Supervisor) handleAdvertisement(adv Advertisement) {
	payload, ok := adv.ManufacturerData[AppleCompanyID]
	if !ok {
		return
	}

	if len(payload) >= 2 {
		s.recordActivity(fmt.Sprintf("%s | Type: 0x%02x | Length: 0x%02x | Data: %s",
			adv.Address, payload[0], payload[1], hex.EncodeToString(payload)))
	}

	if !IsTagPayload(payload) {
		return
	}

	distance := EstimateDistance(adv.RSSI, s.cfg.TxPower)
	details := fmt.Sprintf("RSSI: %ddBm | Distance: %.2fm", adv.RSSI, distance)
	if adv.Name != "" {
		details += fmt.Sprintf(" | Name: %s", adv.Name)
	}

	s.registry.Ingest(adv.Address, adv.RSSI, distance, details)

	if s.OnSighting != nil {
		s.OnSighting(adv, distance)
	}
}

func (s *Supervisor) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.nextRetry = time.Time{}
}

func (s *Supervisor) setBackoff(state State, delay time.Duration) {
	retryAt := s.clock.Now().Add(delay)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.nextRetry = retryAt
}

func (s *Supervisor) incrementScanCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scanCount++
	return s.scanCount
}

func (s *Supervisor) recordActivity(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activity = append(s.activity, line)
	if len(s.activity) > activityBufferSize {
		s.activity = s.activity[len(s.activity)-activityBufferSize:]
	}
}

// State returns the supervisor's current state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ScanCount returns the number of poll cycles completed since start.
func (s *Supervisor) ScanCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanCount
}

// Activity returns a copy of the recent payload summaries, oldest first.
func (s *Supervisor) Activity() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]string, len(s.activity))
	copy(result, s.activity)
	return result
}

// Status returns a read-only copy of the supervisor's observable state.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		State:     s.state,
		ScanCount: s.scanCount,
		NextRetry: s.nextRetry,
	}
}
