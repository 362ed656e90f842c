package ble

import "math"

// DefaultTxPower is the expected RSSI at one meter for the tracked tag
// family, used when no calibration value is configured.
const DefaultTxPower = -59

// UnknownDistance is returned for an undefined RSSI reading of 0.
const UnknownDistance = -1.0

// EstimateDistance converts an RSSI reading into an approximate distance
// in meters using a log-distance path loss model calibrated by txPower,
// the expected RSSI at one meter. An RSSI of exactly 0 is an undefined
// reading and yields UnknownDistance.
func EstimateDistance(rssi, txPower int) float64 {
	if rssi == 0 {
		return UnknownDistance
	}

	ratio := float64(rssi) / float64(txPower)
	if ratio < 1.0 {
		return math.Pow(ratio, 10)
	}
	return 0.89976*math.Pow(ratio, 7.7095) + 0.111
}
