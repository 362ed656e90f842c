package ble

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"os"
	"strconv"

	"github.com/nearfield-data/nearfield.report/internal/monitoring"
)

// streamEvent is the wire shape of one decoded advertisement on the
// event stream: manufacturer data is keyed by decimal company ID with a
// hex-encoded payload.
type streamEvent struct {
	Address          string            `json:"address"`
	RSSI             int               `json:"rssi"`
	ManufacturerData map[string]string `json:"manufacturer_data"`
	Name             string            `json:"name,omitempty"`
}

// StreamScanner adapts a line-oriented JSON event stream (typically a
// FIFO fed by a platform BLE bridge) into the Scanner interface. Each
// Monitor call reopens the source, so supervisor restarts recover a
// broken stream.
type StreamScanner struct {
	open   func() (io.ReadCloser, error)
	events chan Advertisement
}

// NewStreamScanner creates a StreamScanner over an arbitrary source.
func NewStreamScanner(open func() (io.ReadCloser, error)) *StreamScanner {
	return &StreamScanner{
		open:   open,
		events: make(chan Advertisement),
	}
}

// NewFIFOScanner creates a StreamScanner that reads advertisement events
// from the named pipe (or file) at path.
func NewFIFOScanner(path string) *StreamScanner {
	return NewStreamScanner(func() (io.ReadCloser, error) {
		return os.Open(path)
	})
}

func (s *StreamScanner) Events() <-chan Advertisement { return s.events }

// Monitor reads advertisement events until ctx is cancelled or the
// stream fails. Open and read failures are protocol errors; the stream
// ending early is not, and surfaces as a generic fault.
func (s *StreamScanner) Monitor(ctx context.Context) error {
	rc, err := s.open()
	if err != nil {
		return &ProtocolError{Op: "open event stream", Err: err}
	}
	defer rc.Close()

	// Unblock the scanner read when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			rc.Close()
		case <-done:
		}
	}()

	scan := bufio.NewScanner(rc)
	for scan.Scan() {
		adv, ok := decodeStreamLine(scan.Bytes())
		if !ok {
			continue
		}
		select {
		case s.events <- adv:
		case <-ctx.Done():
			return nil
		}
	}

	if ctx.Err() != nil {
		return nil
	}
	if err := scan.Err(); err != nil {
		return &ProtocolError{Op: "read event stream", Err: err}
	}
	return errors.New("ble event stream ended")
}

func (s *StreamScanner) Close() error { return nil }

// decodeStreamLine parses one JSON event line. Malformed lines are
// diagnostics, never fatal to the stream.
func decodeStreamLine(line []byte) (Advertisement, bool) {
	if len(line) == 0 {
		return Advertisement{}, false
	}

	var ev streamEvent
	if err := json.Unmarshal(line, &ev); err != nil {
		monitoring.Logf("ble: skipping malformed event line: %v", err)
		return Advertisement{}, false
	}
	if ev.Address == "" {
		monitoring.Logf("ble: skipping event line without address")
		return Advertisement{}, false
	}

	adv := Advertisement{
		Address: ev.Address,
		RSSI:    ev.RSSI,
		Name:    ev.Name,
	}
	if len(ev.ManufacturerData) > 0 {
		adv.ManufacturerData = make(map[uint16][]byte, len(ev.ManufacturerData))
		for key, hexPayload := range ev.ManufacturerData {
			id, err := strconv.ParseUint(key, 10, 16)
			if err != nil {
				monitoring.Logf("ble: skipping manufacturer entry with bad company id %q", key)
				continue
			}
			payload, err := hex.DecodeString(hexPayload)
			if err != nil {
				monitoring.Logf("ble: skipping manufacturer entry with bad payload for company %d", id)
				continue
			}
			adv.ManufacturerData[uint16(id)] = payload
		}
	}
	return adv, true
}
