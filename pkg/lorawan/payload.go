package lorawan

import (
	"encoding/binary"
	"fmt"
)

// MaxKeystreamBlocks is the number of A_i blocks addressable by the one-byte block index
const MaxKeystreamBlocks = 255

// MaxFRMPayloadSize is the largest payload EncryptFRMPayload accepts
const MaxFRMPayloadSize = MaxKeystreamBlocks * BlockSize

// EncryptFRMPayload encrypts the FRMPayload according to LoRaWAN 1.0.x 4.3.3.
// The same call decrypts, the keystream only depends on key, devAddr, dir and fCnt.
// data is not modified.
func EncryptFRMPayload(key AES128Key, devAddr DevAddr, dir Direction, fCnt uint32, data []byte) ([]byte, error) {
	if !dir.valid() {
		return nil, fmt.Errorf("%w: invalid direction %d", ErrContractViolation, dir)
	}
	if len(data) > MaxFRMPayloadSize {
		return nil, fmt.Errorf("%w: payload of %d bytes exceeds %d", ErrContractViolation, len(data), MaxFRMPayloadSize)
	}

	out := make([]byte, len(data))
	if len(data) == 0 {
		return out, nil
	}

	ai := keystreamBlock(devAddr, dir, fCnt)

	for k := 0; k*BlockSize < len(data); k++ {
		ai[15] = byte(k + 1)
		s := EncryptBlock(key, ai)

		chunk := data[k*BlockSize:]
		if len(chunk) > BlockSize {
			chunk = chunk[:BlockSize]
		}
		for j := range chunk {
			out[k*BlockSize+j] = chunk[j] ^ s[j]
		}
	}

	return out, nil
}

// DecryptFRMPayload decrypts the FRMPayload, see EncryptFRMPayload
func DecryptFRMPayload(key AES128Key, devAddr DevAddr, dir Direction, fCnt uint32, data []byte) ([]byte, error) {
	return EncryptFRMPayload(key, devAddr, dir, fCnt, data)
}

// keystreamBlock builds A_i with the index byte left at zero:
// 0x01 | 4x 0x00 | Dir | DevAddr | FCnt | 0x00 | i
func keystreamBlock(devAddr DevAddr, dir Direction, fCnt uint32) [BlockSize]byte {
	var a [BlockSize]byte
	a[0] = 0x01
	a[5] = byte(dir)
	addr := devAddr.littleEndian()
	copy(a[6:10], addr[:])
	binary.LittleEndian.PutUint32(a[10:14], fCnt)
	return a
}
