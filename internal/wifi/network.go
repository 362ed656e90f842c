// Package wifi turns external scan-tool output into a deduplicated,
// structured view of nearby networks.
package wifi

import (
	"strings"
	"time"
)

// Band is the coarse frequency grouping of a network.
type Band string

const (
	Band24GHz   Band = "2.4GHz"
	Band5GHz    Band = "5GHz"
	Band6GHz    Band = "6GHz"
	BandUnknown Band = "Unknown"
)

// Network is one observed access point. Observations are immutable once
// created; the registry appends them and never mutates in place.
type Network struct {
	SSID      string    `json:"ssid"`
	Security  string    `json:"security"` // empty means open
	Signal    int       `json:"signal"`   // 0-100 percentage
	Frequency int       `json:"frequency"`
	Band      Band      `json:"band"`
	Channel   int       `json:"channel,omitempty"` // 0 when unknown
	BSSID     string    `json:"bssid,omitempty"`   // canonical uppercase MAC, empty when absent
	RSSI      *int      `json:"rssi,omitempty"`    // dBm, best-effort
	Timestamp time.Time `json:"timestamp"`
}

// IsOpen reports whether the network advertises no security.
func (n Network) IsOpen() bool {
	return strings.TrimSpace(n.Security) == ""
}

// SignalQuality returns a text description of the signal percentage.
func (n Network) SignalQuality() string {
	switch {
	case n.Signal >= 80:
		return "Excellent"
	case n.Signal >= 60:
		return "Good"
	case n.Signal >= 40:
		return "Weak"
	default:
		return "Very weak"
	}
}

// missingBSSIDKey substitutes for an absent BSSID in dedup keys.
const missingBSSIDKey = "no_bssid"

// Key returns the registry uniqueness key for the observation.
func (n Network) Key() string {
	bssid := n.BSSID
	if bssid == "" {
		bssid = missingBSSIDKey
	}
	return n.SSID + "|" + bssid
}
