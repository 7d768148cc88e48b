package sensor

import (
	"encoding/binary"
	"fmt"
)

// Modbus request fields for the SenseAir S8. The sensor answers on the
// broadcast address 0xFE regardless of its configured address. CO2 is
// input register 4 (address 0x0003).
const (
	anyAddress    = 0xFE
	fnReadInput   = 0x04
	co2Register   = 0x0003
	registerCount = 1

	// Response format: addr, function, byte count, value high, value
	// low, CRC low, CRC high.
	responseLen = 7
)

// readCommand is the fixed 8-byte "read CO2" request
// (FE 04 00 03 00 01 D5 C5), assembled once with its CRC trailer.
var readCommand = buildReadCommand()

func buildReadCommand() []byte {
	frame := make([]byte, 8)
	frame[0] = anyAddress
	frame[1] = fnReadInput
	binary.BigEndian.PutUint16(frame[2:4], co2Register)
	binary.BigEndian.PutUint16(frame[4:6], registerCount)
	binary.LittleEndian.PutUint16(frame[6:8], crc16(frame[:6]))
	return frame
}

// crc16 computes the CRC-16/Modbus checksum (poly 0xA001 reflected,
// init 0xFFFF). Modbus transmits it low byte first.
func crc16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for range 8 {
			if crc&1 != 0 {
				crc = crc>>1 ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// decodeReading extracts the CO2 concentration from a response frame.
// The sensor replies with exactly responseLen bytes; the reading is
// the big-endian 16-bit value at offsets 3 and 4. Returns an error for
// any other length, including an empty read after a timeout.
func decodeReading(resp []byte) (int, error) {
	if len(resp) != responseLen {
		return 0, fmt.Errorf("response length %d, want %d", len(resp), responseLen)
	}
	return int(binary.BigEndian.Uint16(resp[3:5])), nil
}
