package dxl

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"go.bug.st/serial"
)

// Bus is a shared serial connection to a chain of Protocol 2.0 servos.
// Methods are not safe for concurrent use; the joint source serializes
// access.
type Bus struct {
	port    serial.Port
	timeout time.Duration
}

// Open opens the serial port at the given baud rate. Dynamixel leader arms
// typically run at 57600 or 1M baud.
func Open(portName string, baud int) (*Bus, error) {
	port, err := serial.Open(portName, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", portName, err)
	}
	if err := port.SetReadTimeout(5 * time.Millisecond); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	return &Bus{port: port, timeout: 20 * time.Millisecond}, nil
}

func (b *Bus) Close() error { return b.port.Close() }

// readPacket accumulates serial input until one complete status packet is
// framed or the deadline passes. Garbage before the header is discarded.
func (b *Bus) readPacket(deadline time.Time) ([]byte, error) {
	buf := make([]byte, 0, 64)
	tmp := make([]byte, 64)
	for time.Now().Before(deadline) {
		n, err := b.port.Read(tmp)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			continue
		}
		buf = append(buf, tmp[:n]...)

		start := -1
		for i := 0; i+3 < len(buf); i++ {
			if buf[i] == header1 && buf[i+1] == header2 && buf[i+2] == header3 && buf[i+3] == reserved {
				start = i
				break
			}
		}
		if start < 0 {
			continue
		}
		if start > 0 {
			buf = buf[start:]
		}
		if len(buf) < 7 {
			continue
		}
		total := 7 + (int(buf[5]) | int(buf[6])<<8)
		if len(buf) >= total {
			return buf[:total], nil
		}
	}
	return nil, fmt.Errorf("read timeout, %d bytes buffered", len(buf))
}

func (b *Bus) transfer(ctx context.Context, tx []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := b.port.Write(tx); err != nil {
		return nil, fmt.Errorf("bus write: %w", err)
	}
	deadline := time.Now().Add(b.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	return b.readPacket(deadline)
}

// ReadU32 reads a 4-byte register from one servo.
func (b *Bus) ReadU32(ctx context.Context, id uint8, addr uint16) (uint32, error) {
	params := make([]byte, 4)
	binary.LittleEndian.PutUint16(params[0:], addr)
	binary.LittleEndian.PutUint16(params[2:], 4)
	rx, err := b.transfer(ctx, buildPacket(id, instRead, params))
	if err != nil {
		return 0, err
	}
	rid, hwErr, data, err := parsePacket(rx)
	if err != nil {
		return 0, err
	}
	if rid != id {
		return 0, fmt.Errorf("response from id %d, expected %d", rid, id)
	}
	if hwErr != 0 {
		return 0, fmt.Errorf("servo %d error %02X", id, hwErr)
	}
	if len(data) < 4 {
		return 0, fmt.Errorf("servo %d: short read (%d bytes)", id, len(data))
	}
	return binary.LittleEndian.Uint32(data), nil
}

// WriteU8 writes a 1-byte register on one servo.
func (b *Bus) WriteU8(ctx context.Context, id uint8, addr uint16, value uint8) error {
	params := make([]byte, 3)
	binary.LittleEndian.PutUint16(params[0:], addr)
	params[2] = value
	rx, err := b.transfer(ctx, buildPacket(id, instWrite, params))
	if err != nil {
		return err
	}
	_, hwErr, _, err := parsePacket(rx)
	if err != nil {
		return err
	}
	if hwErr != 0 {
		return fmt.Errorf("servo %d error %02X", id, hwErr)
	}
	return nil
}

// SyncReadPositions issues one SyncRead for the present position of every
// listed servo and collects the per-servo status packets. Servos that do
// not answer within the deadline are simply absent from the result.
func (b *Bus) SyncReadPositions(ctx context.Context, ids []uint8) (map[uint8]uint32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	params := make([]byte, 4, 4+len(ids))
	binary.LittleEndian.PutUint16(params[0:], AddrPresentPosition)
	binary.LittleEndian.PutUint16(params[2:], LenPresentPosition)
	params = append(params, ids...)
	if _, err := b.port.Write(buildPacket(BroadcastID, instSyncRead, params)); err != nil {
		return nil, fmt.Errorf("bus write: %w", err)
	}

	deadline := time.Now().Add(b.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	out := make(map[uint8]uint32, len(ids))
	for range ids {
		pkt, err := b.readPacket(deadline)
		if err != nil {
			break
		}
		id, hwErr, data, err := parsePacket(pkt)
		if err != nil || hwErr != 0 || len(data) < 4 {
			continue
		}
		out[id] = binary.LittleEndian.Uint32(data)
	}
	return out, nil
}
