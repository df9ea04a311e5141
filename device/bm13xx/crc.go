package bm13xx

const (
	crc5Init  = 0x1f
	crc5Poly  = 0x05
	crc16Init = 0xffff
	crc16Poly = 0x1021
)

var crc16Table = makeCRC16Table()

// CRC5 is the 5-bit checksum closing every command and response frame.
// It runs MSB first over the bytes following the preamble.
func CRC5(data []byte) uint8 {
	var crc uint8 = crc5Init

	for _, b := range data {
		for bit := 7; bit >= 0; bit-- {
			din := (b >> uint(bit)) & 1
			fb := ((crc >> 4) & 1) ^ din
			crc = (crc << 1) & 0x1f
			if fb == 1 {
				crc ^= crc5Poly
			}
		}
	}

	return crc
}

// CRC16 is CRC-16/CCITT-FALSE, used on job frames.
func CRC16(data []byte) uint16 {
	var crc uint16 = crc16Init

	for _, b := range data {
		crc = (crc << 8) ^ crc16Table[byte(crc>>8)^b]
	}

	return crc
}

func makeCRC16Table() [256]uint16 {
	var table [256]uint16

	for i := range table {
		crc := uint16(i) << 8
		for j := 0; j < 8; j++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ crc16Poly
			} else {
				crc <<= 1
			}
		}
		table[i] = crc
	}

	return table
}
