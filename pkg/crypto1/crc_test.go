package crypto1

import (
	"bytes"
	"testing"
)

func TestCRC16AKnownCommands(t *testing.T) {
	tests := []struct {
		name string
		cmd  []byte
		want []byte
	}{
		{name: "auth A block 0", cmd: []byte{0x60, 0x00}, want: []byte{0x60, 0x00, 0xF5, 0x7B}},
		{name: "read block 0", cmd: []byte{0x30, 0x00}, want: []byte{0x30, 0x00, 0x02, 0xA8}},
		{name: "halt", cmd: []byte{0x50, 0x00}, want: []byte{0x50, 0x00, 0x57, 0xCD}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AppendCRC16A(tt.cmd)
			if !bytes.Equal(got, tt.want) {
				t.Fatalf("AppendCRC16A(% X) = % X, want % X", tt.cmd, got, tt.want)
			}
			if !CheckCRC16A(got) {
				t.Fatalf("CheckCRC16A rejected % X", got)
			}
		})
	}
}

func TestCheckCRC16ARejectsCorruption(t *testing.T) {
	frame := AppendCRC16A([]byte{0x61, 0x04})
	frame[0] ^= 0x01
	if CheckCRC16A(frame) {
		t.Fatalf("expected corrupted frame to fail CRC")
	}
	if CheckCRC16A([]byte{0x00, 0x00}) {
		t.Fatalf("expected short frame to fail CRC")
	}
}

func TestOddParity(t *testing.T) {
	got := OddParity([]byte{0x00, 0x01, 0x03, 0xFF, 0x80})
	want := []byte{1, 0, 1, 1, 0}
	if !bytes.Equal(got, want) {
		t.Fatalf("OddParity = %v, want %v", got, want)
	}
}
