package crypto1

const crcAInit = 0x6363

// CRC16A computes the ISO 14443-A CRC of data.
func CRC16A(data []byte) uint16 {
	crc := uint16(crcAInit)
	for _, b := range data {
		b ^= byte(crc)
		b ^= b << 4
		crc = crc>>8 ^ uint16(b)<<8 ^ uint16(b)<<3 ^ uint16(b)>>4
	}
	return crc
}

// AppendCRC16A returns data followed by its CRC, low byte first.
func AppendCRC16A(data []byte) []byte {
	crc := CRC16A(data)
	out := make([]byte, 0, len(data)+2)
	out = append(out, data...)
	return append(out, byte(crc), byte(crc>>8))
}

// CheckCRC16A reports whether the last two bytes of frame are the CRC of the rest.
func CheckCRC16A(frame []byte) bool {
	if len(frame) < 3 {
		return false
	}
	n := len(frame) - 2
	crc := CRC16A(frame[:n])
	return frame[n] == byte(crc) && frame[n+1] == byte(crc>>8)
}
