package lorawan

import (
	"crypto/subtle"
	"encoding/binary"
	"fmt"
)

// MaxMICMessageSize is the largest header plus ciphertext the B0 length byte can describe
const MaxMICMessageSize = 255

// ComputeMIC calculates the data frame MIC (LoRaWAN 1.0.x 4.4):
//
//	cmac = aes128_cmac(NwkSKey, B0 | header | ciphertext)
//	MIC  = cmac[0..3]
func ComputeMIC(key AES128Key, devAddr DevAddr, dir Direction, fCnt uint32, header, ciphertext []byte) (MIC, error) {
	var mic MIC

	if !dir.valid() {
		return mic, fmt.Errorf("%w: invalid direction %d", ErrContractViolation, dir)
	}
	msgLen := len(header) + len(ciphertext)
	if msgLen > MaxMICMessageSize {
		return mic, fmt.Errorf("%w: MIC message of %d bytes exceeds %d", ErrContractViolation, msgLen, MaxMICMessageSize)
	}

	b0 := micBlock(devAddr, dir, fCnt, byte(msgLen))
	tag, err := aesCMAC(key, b0[:], header, ciphertext)
	if err != nil {
		return mic, fmt.Errorf("calculate MIC: %w", err)
	}

	copy(mic[:], tag[0:4])
	return mic, nil
}

// ValidateMIC recomputes the MIC and compares it in constant time.
// A mismatch is reported as false with a nil error.
func ValidateMIC(key AES128Key, devAddr DevAddr, dir Direction, fCnt uint32, header, ciphertext []byte, candidate MIC) (bool, error) {
	expected, err := ComputeMIC(key, devAddr, dir, fCnt, header, ciphertext)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(expected[:], candidate[:]) == 1, nil
}

// micBlock builds B0: 0x49 | 4x 0x00 | Dir | DevAddr | FCnt | 0x00 | len(msg)
func micBlock(devAddr DevAddr, dir Direction, fCnt uint32, msgLen byte) [BlockSize]byte {
	var b0 [BlockSize]byte
	b0[0] = 0x49
	b0[5] = byte(dir)
	addr := devAddr.littleEndian()
	copy(b0[6:10], addr[:])
	binary.LittleEndian.PutUint32(b0[10:14], fCnt)
	b0[15] = msgLen
	return b0
}
