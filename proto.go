package amt8000

import "fmt"

// ISEC2 frame layout, all multi-byte integers big-endian:
//
//	0-1  destination id (always 0x0000, the panel)
//	2-3  source id (always 0x8fff, us)
//	4-5  length of command + payload
//	6-7  command opcode
//	8..  payload
//	last checksum
const (
	destinationID = 0x0000
	sourceID      = 0x8fff
)

const (
	cmdAuth          = 0xf0f0
	cmdStatus        = 0x0b4a
	cmdArmDisarm     = 0x401e
	cmdPanic         = 0x401a
	cmdPairedSensors = 0x0b01
)

const (
	subCmdDisarm = 0x00
	subCmdArm    = 0x01
)

const (
	armedMarker     = 0x91
	panicMarker     = 0xfe
	pairedErrMarker = 0xfd
)

func makePayload(cmd int, input []byte) []byte {
	dst := splitIntoOctets(destinationID)
	src := splitIntoOctets(sourceID)
	length := splitIntoOctets(len(input) + 2)
	opcode := splitIntoOctets(cmd)
	payload := []byte{}
	payload = append(payload, dst...)
	payload = append(payload, src...)
	payload = append(payload, length...)
	payload = append(payload, opcode...)
	payload = append(payload, input...)
	payload = append(payload, checksum(payload))
	return payload
}

func makeAuthPayload(deviceType byte, pwd string, softwareVersion byte) ([]byte, error) {
	digits, err := passwordDigits(pwd)
	if err != nil {
		return nil, err
	}
	input := []byte{deviceType}
	input = append(input, digits...)
	input = append(input, softwareVersion)
	return makePayload(cmdAuth, input), nil
}

// passwordDigits rejects anything that isn't exactly 6 ASCII digits before
// the password gets anywhere near a socket.
func passwordDigits(pwd string) ([]byte, error) {
	if len(pwd) != 6 {
		return nil, fmt.Errorf("password must be 6 digits, got %d characters", len(pwd))
	}
	digits := make([]byte, 0, len(pwd))
	for _, c := range []byte(pwd) {
		if c < '0' || c > '9' {
			return nil, fmt.Errorf("password must contain only digits")
		}
		digits = append(digits, c-'0')
	}
	return digits, nil
}

func splitIntoOctets(n int) []byte {
	return []byte{byte(n / 256), byte(n % 256)}
}

func mergeOctets(buf []byte) int {
	return int(buf[0])*256 + int(buf[1])
}

func checksum(buf []byte) byte {
	var check byte
	for _, n := range buf {
		check ^= n
	}
	check ^= 0xff
	return check
}

// responsePayload extracts the payload of a raw panel response. The length
// field at bytes 4-5 declares how much follows the header, but firmware
// responses can arrive fragmented across TCP packets, so whatever is
// physically missing is simply not returned. Never indexes out of bounds.
func responsePayload(resp []byte) []byte {
	if len(resp) < 8 {
		return nil
	}
	end := 8 + mergeOctets(resp[4:6])
	if end > len(resp) {
		end = len(resp)
	}
	return resp[8:end]
}
