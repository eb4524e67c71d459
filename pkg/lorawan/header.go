package lorawan

import (
	"fmt"
	"strings"
)

// MType represents the message type
type MType byte

const (
	JoinRequest MType = iota
	JoinAccept
	UnconfirmedDataUp
	UnconfirmedDataDown
	ConfirmedDataUp
	ConfirmedDataDown
	RFU
	Proprietary
)

// Direction returns the direction of a data message type
func (m MType) Direction() (Direction, bool) {
	switch m {
	case UnconfirmedDataUp, ConfirmedDataUp:
		return Uplink, true
	case UnconfirmedDataDown, ConfirmedDataDown:
		return Downlink, true
	}
	return 0, false
}

// ParseMType parses the names accepted on the command line
func ParseMType(s string) (MType, error) {
	switch strings.ToLower(s) {
	case "unconfirmed-up":
		return UnconfirmedDataUp, nil
	case "unconfirmed-down":
		return UnconfirmedDataDown, nil
	case "confirmed-up":
		return ConfirmedDataUp, nil
	case "confirmed-down":
		return ConfirmedDataDown, nil
	}
	return 0, fmt.Errorf("%w: unsupported message type %q", ErrContractViolation, s)
}

// Major represents the LoRaWAN major version
type Major byte

const (
	LoRaWANR1 Major = 0
)

// MHDR represents the MAC header
type MHDR struct {
	MType MType
	Major Major
}

// Byte returns the encoded MHDR
func (h MHDR) Byte() byte {
	return byte(h.MType)<<5 | byte(h.Major)&0x03
}

// FCtrl represents the frame control byte
type FCtrl struct {
	ADR       bool
	ADRACKReq bool
	ACK       bool
	ClassB    bool
	FPending  bool
}

// FHDR represents the frame header
type FHDR struct {
	DevAddr DevAddr
	FCtrl   FCtrl
	FCnt    uint16
	FOpts   []byte
}

// DataHeader is the authenticated, unencrypted part of a data frame:
// MHDR | FHDR | FPort
type DataHeader struct {
	MHDR  MHDR
	FHDR  FHDR
	FPort *uint8
}

// MarshalBinary encodes the header
func (h *DataHeader) MarshalBinary() ([]byte, error) {
	dir, ok := h.MHDR.MType.Direction()
	if !ok {
		return nil, fmt.Errorf("%w: %d is not a data message type", ErrContractViolation, h.MHDR.MType)
	}
	if len(h.FHDR.FOpts) > 15 {
		return nil, fmt.Errorf("%w: FOpts of %d bytes exceeds 15", ErrContractViolation, len(h.FHDR.FOpts))
	}

	data := make([]byte, 0, 8+len(h.FHDR.FOpts)+1)
	data = append(data, h.MHDR.Byte())

	addr := h.FHDR.DevAddr.littleEndian()
	data = append(data, addr[:]...)

	fctrl := byte(0)
	if h.FHDR.FCtrl.ADR {
		fctrl |= 0x80
	}
	if h.FHDR.FCtrl.ACK {
		fctrl |= 0x20
	}
	if dir == Uplink {
		if h.FHDR.FCtrl.ADRACKReq {
			fctrl |= 0x40
		}
		if h.FHDR.FCtrl.ClassB {
			fctrl |= 0x10
		}
	} else if h.FHDR.FCtrl.FPending {
		fctrl |= 0x10
	}
	fctrl |= byte(len(h.FHDR.FOpts)) & 0x0F
	data = append(data, fctrl)

	data = append(data, byte(h.FHDR.FCnt), byte(h.FHDR.FCnt>>8))
	data = append(data, h.FHDR.FOpts...)

	if h.FPort != nil {
		data = append(data, *h.FPort)
	}

	return data, nil
}

// UnmarshalBinary decodes a header. data must contain exactly the header,
// the FPort is read when one byte follows the FOpts.
func (h *DataHeader) UnmarshalBinary(data []byte) error {
	if len(data) < 8 {
		return fmt.Errorf("%w: data header too short: %d bytes", ErrContractViolation, len(data))
	}

	h.MHDR.MType = MType(data[0] >> 5)
	h.MHDR.Major = Major(data[0] & 0x03)
	dir, ok := h.MHDR.MType.Direction()
	if !ok {
		return fmt.Errorf("%w: %d is not a data message type", ErrContractViolation, h.MHDR.MType)
	}

	h.FHDR.DevAddr = DevAddr{data[4], data[3], data[2], data[1]}

	fctrl := data[5]
	h.FHDR.FCtrl = FCtrl{ADR: fctrl&0x80 != 0, ACK: fctrl&0x20 != 0}
	if dir == Uplink {
		h.FHDR.FCtrl.ADRACKReq = fctrl&0x40 != 0
		h.FHDR.FCtrl.ClassB = fctrl&0x10 != 0
	} else {
		h.FHDR.FCtrl.FPending = fctrl&0x10 != 0
	}

	h.FHDR.FCnt = uint16(data[6]) | uint16(data[7])<<8

	pos := 8
	foptsLen := int(fctrl & 0x0F)
	if pos+foptsLen > len(data) {
		return fmt.Errorf("%w: invalid FOpts length", ErrContractViolation)
	}
	h.FHDR.FOpts = nil
	if foptsLen > 0 {
		h.FHDR.FOpts = append([]byte(nil), data[pos:pos+foptsLen]...)
	}
	pos += foptsLen

	h.FPort = nil
	switch len(data) - pos {
	case 0:
	case 1:
		fport := data[pos]
		h.FPort = &fport
	default:
		return fmt.Errorf("%w: %d trailing bytes after data header", ErrContractViolation, len(data)-pos-1)
	}

	return nil
}
