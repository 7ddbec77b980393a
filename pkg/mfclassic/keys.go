package mfclassic

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// KnownKey is a widely deployed key with a note on where it is found.
type KnownKey struct {
	Key   Key
	Usage string
}

// DefaultKeys are tried by DiagnoseKeys when looking for a first known key.
var DefaultKeys = []KnownKey{
	{Key: 0xFFFFFFFFFFFF, Usage: "Factory Default"},
	{Key: 0x000000000000, Usage: "Blank"},
	{Key: 0xA0A1A2A3A4A5, Usage: "MAD / HID Access Control"},
	{Key: 0xB0B1B2B3B4B5, Usage: "HID Access Control key B"},
	{Key: 0xD3F7D3F7D3F7, Usage: "NFC Forum"},
	{Key: 0x1A982C7E459A, Usage: "Transport"},
	{Key: 0x4D3A99C351DD, Usage: "Transport"},
	{Key: 0xAABBCCDDEEFF, Usage: "Common test key"},
	{Key: 0x714C5C886E97, Usage: "Hotel"},
	{Key: 0x587EE5F9350F, Usage: "Hotel"},
}

// ParseKey parses a 12-character hex key. Spaces and colons are ignored.
func ParseKey(s string) (Key, error) {
	clean := strings.NewReplacer(" ", "", ":", "").Replace(strings.TrimSpace(s))
	if len(clean) != 12 {
		return 0, fmt.Errorf("key must be 12 hex chars, got %d", len(clean))
	}
	b, err := hex.DecodeString(clean)
	if err != nil {
		return 0, fmt.Errorf("invalid hex key: %v", err)
	}
	var k uint64
	for _, x := range b {
		k = k<<8 | uint64(x)
	}
	return Key(k), nil
}

// LoadKeyHexFile loads a 6-byte key from a .hex file. The first non-empty,
// non-comment line must hold 12 hexadecimal characters.
func LoadKeyHexFile(path string) (Key, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return ParseKey(line)
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("no key found in %s", path)
}
