package lorawan

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// DevAddr represents a 4-byte device address, most significant byte first
type DevAddr [4]byte

// String returns hex string representation
func (d DevAddr) String() string {
	return hex.EncodeToString(d[:])
}

// MarshalText implements encoding.TextMarshaler
func (d DevAddr) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *DevAddr) UnmarshalText(text []byte) error {
	addr, err := ParseDevAddr(string(text))
	if err != nil {
		return err
	}
	*d = addr
	return nil
}

// littleEndian returns the address in the byte order used on the air
func (d DevAddr) littleEndian() [4]byte {
	return [4]byte{d[3], d[2], d[1], d[0]}
}

// ParseDevAddr parses a hex encoded DevAddr
func ParseDevAddr(s string) (DevAddr, error) {
	b, err := decodeHex(s)
	if err != nil {
		return DevAddr{}, fmt.Errorf("decode DevAddr: %w", err)
	}
	return DevAddrFromBytes(b)
}

// DevAddrFromBytes copies a 4-byte slice into a DevAddr
func DevAddrFromBytes(b []byte) (DevAddr, error) {
	var d DevAddr
	if len(b) != len(d) {
		return d, fmt.Errorf("%w: DevAddr must be %d bytes, got %d", ErrContractViolation, len(d), len(b))
	}
	copy(d[:], b)
	return d, nil
}

// AES128Key represents a 128-bit AES key
type AES128Key [16]byte

// String never reveals key material.
func (k AES128Key) String() string {
	return "AES128Key(redacted)"
}

// Hex returns the full hex representation of the key
func (k AES128Key) Hex() string {
	return hex.EncodeToString(k[:])
}

// ParseAES128Key parses a hex encoded key, spaces are ignored
func ParseAES128Key(s string) (AES128Key, error) {
	b, err := decodeHex(s)
	if err != nil {
		return AES128Key{}, fmt.Errorf("decode AES128Key: %w", err)
	}
	return AES128KeyFromBytes(b)
}

// AES128KeyFromBytes copies a 16-byte slice into an AES128Key
func AES128KeyFromBytes(b []byte) (AES128Key, error) {
	var k AES128Key
	if len(b) != len(k) {
		return k, fmt.Errorf("%w: AES128Key must be %d bytes, got %d", ErrContractViolation, len(k), len(b))
	}
	copy(k[:], b)
	return k, nil
}

// MIC represents the 4-byte message integrity code
type MIC [4]byte

// String returns hex string representation
func (m MIC) String() string {
	return hex.EncodeToString(m[:])
}

// MICFromBytes copies a 4-byte slice into a MIC
func MICFromBytes(b []byte) (MIC, error) {
	var m MIC
	if len(b) != len(m) {
		return m, fmt.Errorf("%w: MIC must be %d bytes, got %d", ErrContractViolation, len(m), len(b))
	}
	copy(m[:], b)
	return m, nil
}

// Direction is the frame direction, encoded as the Dir byte of the A and B0 blocks
type Direction byte

const (
	Uplink   Direction = 0
	Downlink Direction = 1
)

// String returns the lower-case direction name
func (d Direction) String() string {
	switch d {
	case Uplink:
		return "uplink"
	case Downlink:
		return "downlink"
	default:
		return fmt.Sprintf("Direction(%d)", byte(d))
	}
}

// ParseDirection parses "uplink" or "downlink"
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "uplink", "up":
		return Uplink, nil
	case "downlink", "down":
		return Downlink, nil
	}
	return 0, fmt.Errorf("%w: unknown direction %q", ErrContractViolation, s)
}

func (d Direction) valid() bool {
	return d == Uplink || d == Downlink
}

// SessionKeys is the key material of one ABP/OTAA session as handed out by a key store
type SessionKeys struct {
	DevAddr DevAddr
	AppSKey AES128Key
	NwkSKey AES128Key
}

func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
}
