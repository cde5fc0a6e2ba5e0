// Package dxl implements the Dynamixel Protocol 2.0 wire format, enough to
// sync-read present positions from an absolute-encoder leader arm.
package dxl

import (
	"errors"
	"fmt"
)

const (
	header1  = 0xFF
	header2  = 0xFF
	header3  = 0xFD
	reserved = 0x00

	instPing      = 0x01
	instRead      = 0x02
	instWrite     = 0x03
	instStatus    = 0x55
	instSyncRead  = 0x82
	instSyncWrite = 0x83

	// BroadcastID addresses every device on the bus.
	BroadcastID = 0xFE
)

// X-series control table.
const (
	AddrTorqueEnable    = 64
	AddrPresentPosition = 132
	LenPresentPosition  = 4
)

var crcTable [256]uint16

func init() {
	const poly = uint16(0x8005)
	for i := 0; i < 256; i++ {
		crc := uint16(i) << 8
		for j := 0; j < 8; j++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ poly
			} else {
				crc <<= 1
			}
		}
		crcTable[i] = crc
	}
}

func updateCRC(crc uint16, data []byte) uint16 {
	for _, b := range data {
		crc = crc<<8 ^ crcTable[(crc>>8^uint16(b))&0xFF]
	}
	return crc
}

// stuffParams inserts the extra 0xFD after any FF FF FD run so payload
// bytes can never alias the packet header.
func stuffParams(params []byte) []byte {
	out := make([]byte, 0, len(params)+2)
	ff := 0
	for _, b := range params {
		out = append(out, b)
		if b == 0xFF {
			ff++
			continue
		}
		if ff >= 2 && b == 0xFD {
			out = append(out, 0xFD)
		}
		ff = 0
	}
	return out
}

// destuffParams reverses stuffParams: FF FF FD FD -> FF FF FD.
func destuffParams(data []byte) []byte {
	out := make([]byte, 0, len(data))
	ff := 0
	for i := 0; i < len(data); i++ {
		b := data[i]
		if ff >= 2 && b == 0xFD && i+1 < len(data) && data[i+1] == 0xFD {
			out = append(out, b)
			i++
			ff = 0
			continue
		}
		out = append(out, b)
		if b == 0xFF {
			ff++
		} else {
			ff = 0
		}
	}
	return out
}

// buildPacket assembles a full instruction packet with stuffing and CRC.
func buildPacket(id uint8, inst uint8, params []byte) []byte {
	stuffed := stuffParams(params)
	length := 1 + len(stuffed) + 2 // instruction + params + crc
	pkt := []byte{header1, header2, header3, reserved, id, byte(length), byte(length >> 8), inst}
	pkt = append(pkt, stuffed...)
	crc := updateCRC(0, pkt)
	return append(pkt, byte(crc), byte(crc>>8))
}

// parsePacket validates a complete status packet and returns its origin ID,
// hardware error byte and destuffed params.
func parsePacket(pkt []byte) (id uint8, hwErr uint8, params []byte, err error) {
	if len(pkt) < 11 {
		return 0, 0, nil, errors.New("packet too short")
	}
	if pkt[0] != header1 || pkt[1] != header2 || pkt[2] != header3 {
		return 0, 0, nil, errors.New("bad header")
	}
	length := int(pkt[5]) | int(pkt[6])<<8
	if len(pkt) != length+7 {
		return 0, 0, nil, fmt.Errorf("length mismatch: header says %d, have %d", length+7, len(pkt))
	}
	want := updateCRC(0, pkt[:len(pkt)-2])
	got := uint16(pkt[len(pkt)-2]) | uint16(pkt[len(pkt)-1])<<8
	if want != got {
		return 0, 0, nil, fmt.Errorf("crc mismatch: want %04X, got %04X", want, got)
	}
	if pkt[7] != instStatus {
		return 0, 0, nil, fmt.Errorf("not a status packet: instruction %02X", pkt[7])
	}
	if len(pkt) > 11 {
		params = destuffParams(pkt[9 : len(pkt)-2])
	}
	return pkt[4], pkt[8], params, nil
}
