package wifi

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// fieldDelimiter separates fields in the external tool's terse output.
	fieldDelimiter = ":"

	// minScanFields is the minimum field count of a usable line: SSID,
	// SECURITY, SIGNAL, FREQ, and at least the first BSSID octet groups.
	// The BSSID itself is colon-delimited, so it arrives shredded across
	// six sub-fields and must be reassembled.
	minScanFields = 8

	// bssidFieldCount is how many sub-fields the BSSID occupies.
	bssidFieldCount = 6
)

// macPattern is the strict 6-octet colon/hyphen hex MAC shape.
var macPattern = regexp.MustCompile(`^([0-9A-Fa-f]{2}[:-]){5}([0-9A-Fa-f]{2})$`)

// NormalizeBSSID validates a candidate MAC string and returns its
// canonical uppercase form, or "" when the candidate is not a full
// 6-octet address. A lone octet group is a parsing artifact, never a
// usable address.
func NormalizeBSSID(raw string) string {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, `\`, ""))
	if !macPattern.MatchString(raw) {
		return ""
	}
	return strings.ToUpper(raw)
}

// ParseScanLine parses one terse scan line of the shape
// SSID:SECURITY:SIGNAL:FREQ:<6 BSSID octet groups>:CHAN into a Network
// observation. It reports ok=false for lines that carry no usable
// record (empty, too few fields, or empty SSID); a bad numeric field
// degrades that field rather than rejecting the line.
//
// Known limitation: an SSID containing a raw field delimiter misaligns
// the fixed-offset BSSID reconstruction. The external tool escapes the
// delimiter in terse mode, which NormalizeBSSID strips.
func ParseScanLine(line string, now time.Time) (Network, bool) {
	if strings.TrimSpace(line) == "" {
		return Network{}, false
	}

	parts := strings.Split(line, fieldDelimiter)
	if len(parts) < minScanFields {
		return Network{}, false
	}

	ssid := strings.TrimSpace(parts[0])
	if ssid == "" {
		return Network{}, false
	}
	security := strings.TrimSpace(parts[1])

	signal := 0
	if v, err := strconv.Atoi(strings.TrimSpace(parts[2])); err == nil && v >= 0 {
		signal = v
	}

	freq := ParseFrequency(parts[3])

	// Reassemble the BSSID from its shredded octet groups; validation
	// rejects anything short of a full address.
	bssidEnd := 4 + bssidFieldCount
	joinEnd := bssidEnd
	if joinEnd > len(parts) {
		joinEnd = len(parts)
	}
	bssid := NormalizeBSSID(strings.Join(parts[4:joinEnd], fieldDelimiter))

	channelField := ""
	if len(parts) > bssidEnd {
		channelField = parts[bssidEnd]
	}
	channel := ParseChannel(channelField, freq)

	return Network{
		SSID:      ssid,
		Security:  security,
		Signal:    signal,
		Frequency: freq,
		Band:      BandForFrequency(freq),
		Channel:   channel,
		BSSID:     bssid,
		Timestamp: now,
	}, true
}
