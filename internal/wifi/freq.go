package wifi

import (
	"strconv"
	"strings"
)

// channels5GHz maps the standard 5GHz center frequencies to their
// channel numbers. Frequencies outside this table have no derivable
// channel.
var channels5GHz = map[int]int{
	5180: 36, 5200: 40, 5220: 44, 5240: 48,
	5260: 52, 5280: 56, 5300: 60, 5320: 64,
	5500: 100, 5520: 104, 5540: 108, 5560: 112,
	5580: 116, 5600: 120, 5620: 124, 5640: 128,
	5660: 132, 5680: 136, 5700: 140, 5720: 144,
	5745: 149, 5765: 153, 5785: 157, 5805: 161,
	5825: 165,
}

// ParseFrequency converts a frequency field to MHz. Unit suffixes and
// whitespace are stripped; a token with a decimal point is read as GHz
// and scaled to MHz. Unparsable input yields 0.
func ParseFrequency(field string) int {
	clean := strings.TrimSpace(field)
	clean = strings.ReplaceAll(clean, "MHz", "")
	clean = strings.ReplaceAll(clean, "GHz", "")
	clean = strings.ReplaceAll(clean, " ", "")
	if clean == "" {
		return 0
	}

	if strings.Contains(clean, ".") {
		ghz, err := strconv.ParseFloat(clean, 64)
		if err != nil {
			return 0
		}
		return int(ghz * 1000)
	}

	mhz, err := strconv.Atoi(clean)
	if err != nil {
		return 0
	}
	return mhz
}

// BandForFrequency maps a frequency in MHz to its band label.
func BandForFrequency(freq int) Band {
	switch {
	case freq >= 2400 && freq <= 2500:
		return Band24GHz
	case freq >= 5000 && freq <= 6000:
		return Band5GHz
	case freq >= 6000:
		return Band6GHz
	}
	return BandUnknown
}

// ChannelForFrequency derives a channel number from a frequency in MHz.
// Returns 0 when no channel can be derived.
func ChannelForFrequency(freq int) int {
	switch {
	case freq >= 2412 && freq <= 2484:
		if freq == 2484 {
			return 14
		}
		return (freq-2412)/5 + 1
	case freq >= 5000 && freq <= 6000:
		return channels5GHz[freq]
	}
	return 0
}

// ParseChannel parses an explicit channel field, falling back to the
// frequency-derived channel when the field is absent or non-numeric.
func ParseChannel(field string, freq int) int {
	if channel, err := strconv.Atoi(strings.TrimSpace(field)); err == nil && channel > 0 {
		return channel
	}
	if freq > 0 {
		return ChannelForFrequency(freq)
	}
	return 0
}
