package ble

// AppleCompanyID is the Bluetooth SIG company identifier under which the
// tracked tag family advertises its manufacturer payload.
const AppleCompanyID uint16 = 0x004C

// Manufacturer payload signature bytes for the tracked tag family.
const (
	payloadTypeRegistered   = 0x12 // tag registered with the owner network
	payloadTypeUnregistered = 0x07 // tag not yet registered
	findMyFrameLength       = 0x19 // advertised frame length (25 bytes)
	statusNormalOperation   = 0x10 // registered tag in normal operation
)

// IsTagPayload reports whether an Apple manufacturer payload carries the
// advertisement signature of a tracked tag. Payloads that do not match
// are not errors; they are simply other Apple devices.
func IsTagPayload(payload []byte) bool {
	if len(payload) < 2 {
		return false
	}

	switch payload[0] {
	case payloadTypeRegistered:
		return len(payload) >= 4 &&
			payload[1] == findMyFrameLength &&
			payload[2] == statusNormalOperation
	case payloadTypeUnregistered:
		return payload[1] == findMyFrameLength
	}
	return false
}
