package ble

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Advertisement is one decoded BLE advertisement as delivered by the
// platform scanning capability.
type Advertisement struct {
	Address          string
	RSSI             int
	ManufacturerData map[uint16][]byte
	Name             string
}

// ProtocolError marks a recoverable fault reported by the platform BLE
// stack. The supervisor restarts after the short backoff for these and
// the long backoff for anything else.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("ble protocol error: %s", e.Op)
	}
	return fmt.Sprintf("ble protocol error: %s: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Scanner is the platform BLE scanning capability the supervisor drives.
type Scanner interface {
	// Events returns the channel on which decoded advertisements are
	// delivered while Monitor is running.
	Events() <-chan Advertisement

	// Monitor delivers advertisements to Events until ctx is cancelled
	// (returning nil) or the underlying stack fails (returning the
	// failure, a *ProtocolError for recoverable faults).
	Monitor(ctx context.Context) error

	// Close releases the underlying platform resources.
	Close() error
}

// MockScanner replays a fixed advertisement sequence. It backs dev mode
// and the supervisor tests.
type MockScanner struct {
	EventsChan chan Advertisement
	Adverts    []Advertisement

	// Interval is the pause between replayed advertisements.
	Interval time.Duration

	// FailAfter, when positive, makes Monitor return Err after that many
	// deliveries. Use SetFailure to change it while a supervisor owns
	// the scanner.
	FailAfter int
	Err       error

	// Loop replays Adverts until the context is cancelled.
	Loop bool

	mu sync.Mutex
}

// SetFailure updates the injected failure for subsequent Monitor runs.
func (m *MockScanner) SetFailure(after int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailAfter = after
	m.Err = err
}

func (m *MockScanner) failure() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.FailAfter, m.Err
}

// NewMockScanner creates a MockScanner that replays the given
// advertisements in a loop.
func NewMockScanner(adverts []Advertisement) *MockScanner {
	return &MockScanner{
		EventsChan: make(chan Advertisement),
		Adverts:    adverts,
		Interval:   500 * time.Millisecond,
		Loop:       true,
	}
}

func (m *MockScanner) Events() <-chan Advertisement { return m.EventsChan }

func (m *MockScanner) Monitor(ctx context.Context) error {
	sent := 0
	for {
		for _, adv := range m.Adverts {
			if failAfter, err := m.failure(); failAfter > 0 && sent >= failAfter {
				return err
			}
			select {
			case m.EventsChan <- adv:
				sent++
			case <-ctx.Done():
				return nil
			}
			if m.Interval > 0 {
				select {
				case <-time.After(m.Interval):
				case <-ctx.Done():
					return nil
				}
			}
		}
		if !m.Loop {
			break
		}
	}

	<-ctx.Done()
	return nil
}

func (m *MockScanner) Close() error { return nil }
