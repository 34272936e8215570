package amt8000

import "fmt"

// ZoneCount is the number of zone slots an AMT-8000 tracks.
const ZoneCount = 64

type State byte

const (
	StateDisarmed State = 0x00
	StatePartial  State = 0x01
	StateArmed    State = 0x03 // one must ask what 0x02 is... and why its missing...
	StateUnknown  State = 0xff
)

func (s State) String() string {
	switch s {
	case StateDisarmed:
		return "Disarmed"
	case StatePartial:
		return "Partial"
	case StateArmed:
		return "Armed"
	default:
		return "Unknown"
	}
}

// Status is the decoded panel state. Every field has a documented default:
// a response too short to carry a given field leaves it at "unknown" (or
// false) instead of failing the whole decode.
type Status struct {
	Model       string
	Version     string
	State       State
	ZonesFiring bool
	ZonesClosed bool
	Siren       bool
	Tamper      bool
	Battery     BatteryStatus
	Zones       [ZoneCount]bool
}

// zoneTableOffset is where the 8-byte zone-open table starts within the
// status payload. Older firmware captures disagree on both the offset and
// the bit polarity; this matches the panels this was tested against.
// Do not change without re-checking on real hardware.
const zoneTableOffset = 64

func unknownStatus() Status {
	return Status{
		Model:   "Unknown",
		Version: "Unknown",
		State:   StateUnknown,
	}
}

// buildStatus decodes a raw status response. It is total: any byte slice of
// any length, including empty, decodes to a valid Status.
func buildStatus(resp []byte) Status {
	status := unknownStatus()
	payload := responsePayload(resp)

	if len(payload) > 0 {
		status.Model = modelName(payload[0])
	}
	if len(payload) > 3 {
		status.Version = version(payload[1:4])
	}
	if len(payload) > 20 {
		status.State = armingState(payload[20])
		status.ZonesFiring = payload[20]&0x08 > 0
		status.ZonesClosed = payload[20]&0x04 > 0
		status.Siren = payload[20]&0x02 > 0
	}
	if len(payload) > 71 {
		status.Tamper = payload[71]&(1<<1) > 0
	}
	status.Battery = batteryStatusFor(payload)
	status.Zones = zoneBitmap(payload, zoneTableOffset)
	return status
}

func armingState(b byte) State {
	switch s := State(b >> 5 & 0x03); s {
	case StateDisarmed, StatePartial, StateArmed:
		return s
	default:
		return StateUnknown
	}
}

// zoneBitmap reads up to 8 octets starting at offset as one bit per zone,
// zone 1 first, least significant bit first. Octets past the end of the
// buffer leave their zones closed.
func zoneBitmap(buf []byte, offset int) [ZoneCount]bool {
	var zones [ZoneCount]bool
	for i := 0; i < ZoneCount/8; i++ {
		if offset+i >= len(buf) {
			break
		}
		octet := buf[offset+i]
		for j := 0; j < 8; j++ {
			zones[i*8+j] = octet&(1<<j) > 0
		}
	}
	return zones
}

func version(b []byte) string {
	return fmt.Sprintf("%d.%d.%d", int(b[0]), int(b[1]), int(b[2]))
}

func modelName(b byte) string {
	switch b {
	case 0x01:
		return "AMT-8000"
	default:
		return "Unknown"
	}
}
