package codec

import "encoding/binary"

// Modbus CRC16 parameters.
const (
	crc16Init uint16 = 0xFFFF
	crc16Poly uint16 = 0xA001 // reflected 0x8005
)

// CRC16Modbus computes the Modbus RTU CRC of data.
func CRC16Modbus(data []byte) uint16 {
	crc := crc16Init
	for _, b := range data {
		crc ^= uint16(b)
		for range 8 {
			if crc&1 != 0 {
				crc = crc>>1 ^ crc16Poly
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// appendCRC16 appends the CRC of frame in little-endian order, as it goes on the wire.
func appendCRC16(frame []byte) []byte {
	return binary.LittleEndian.AppendUint16(frame, CRC16Modbus(frame))
}

// validCRC16 checks the trailing little-endian CRC of frame.
func validCRC16(frame []byte) bool {
	if len(frame) < 3 { //nolint:mnd // at least one data byte plus the CRC
		return false
	}
	n := len(frame) - 2
	return CRC16Modbus(frame[:n]) == binary.LittleEndian.Uint16(frame[n:])
}

// sum8 is the low byte of the arithmetic sum of data.
func sum8(data []byte) byte {
	var s byte
	for _, b := range data {
		s += b
	}
	return s
}

// bcdToInt decodes packed BCD, two decimal digits per byte, most
// significant byte first.
func bcdToInt(b []byte) int {
	n := 0
	for _, v := range b {
		n = n*100 + int(v>>4)*10 + int(v&0x0F)
	}
	return n
}
