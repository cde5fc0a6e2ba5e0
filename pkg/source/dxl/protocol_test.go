package dxl

import (
	"bytes"
	"testing"
)

func TestBuildPacket_Ping(t *testing.T) {
	// Reference vector from the Protocol 2.0 documentation: ping ID 1.
	want := []byte{0xFF, 0xFF, 0xFD, 0x00, 0x01, 0x03, 0x00, 0x01, 0x19, 0x4E}
	got := buildPacket(1, instPing, nil)
	if !bytes.Equal(got, want) {
		t.Fatalf("buildPacket ping = % X, want % X", got, want)
	}
}

func TestStuffParams(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want []byte
	}{
		{"no stuffing", []byte{0x01, 0x02, 0x03}, []byte{0x01, 0x02, 0x03}},
		{"header alias", []byte{0xFF, 0xFF, 0xFD}, []byte{0xFF, 0xFF, 0xFD, 0xFD}},
		{"mid-stream", []byte{0x00, 0xFF, 0xFF, 0xFD, 0x01}, []byte{0x00, 0xFF, 0xFF, 0xFD, 0xFD, 0x01}},
		{"long ff run", []byte{0xFF, 0xFF, 0xFF, 0xFD}, []byte{0xFF, 0xFF, 0xFF, 0xFD, 0xFD}},
	}

	for _, tt := range tests {
		got := stuffParams(tt.in)
		if !bytes.Equal(got, tt.want) {
			t.Errorf("%s: stuffParams(% X) = % X, want % X", tt.name, tt.in, got, tt.want)
		}
		back := destuffParams(got)
		if !bytes.Equal(back, tt.in) {
			t.Errorf("%s: destuff round-trip = % X, want % X", tt.name, back, tt.in)
		}
	}
}

func TestParsePacket_StatusRoundTrip(t *testing.T) {
	// A status packet is an instruction packet with inst 0x55 whose first
	// param is the hardware error byte.
	data := []byte{0x10, 0x20, 0x30, 0x40}
	pkt := buildPacket(3, instStatus, append([]byte{0x00}, data...))

	id, hwErr, params, err := parsePacket(pkt)
	if err != nil {
		t.Fatal(err)
	}
	if id != 3 {
		t.Errorf("id = %d, want 3", id)
	}
	if hwErr != 0 {
		t.Errorf("hwErr = %02X, want 0", hwErr)
	}
	if !bytes.Equal(params, data) {
		t.Errorf("params = % X, want % X", params, data)
	}
}

func TestParsePacket_Rejects(t *testing.T) {
	good := buildPacket(1, instStatus, []byte{0x00, 0xAA, 0xBB, 0xCC, 0xDD})

	short := good[:8]
	if _, _, _, err := parsePacket(short); err == nil {
		t.Error("short packet accepted")
	}

	badHeader := append([]byte(nil), good...)
	badHeader[2] = 0x00
	if _, _, _, err := parsePacket(badHeader); err == nil {
		t.Error("bad header accepted")
	}

	badCRC := append([]byte(nil), good...)
	badCRC[len(badCRC)-1] ^= 0xFF
	if _, _, _, err := parsePacket(badCRC); err == nil {
		t.Error("bad CRC accepted")
	}

	notStatus := buildPacket(1, instWrite, []byte{0x00, 0xAA, 0xBB, 0xCC, 0xDD})
	if _, _, _, err := parsePacket(notStatus); err == nil {
		t.Error("non-status packet accepted")
	}
}
