package lorawan

import (
	"crypto/aes"
)

// BlockSize is the AES block size in bytes
const BlockSize = aes.BlockSize

// EncryptBlock encrypts a single block with AES-128 (FIPS-197).
// It cannot fail: aes.NewCipher only rejects key sizes other than
// 16, 24 or 32 bytes and AES128Key is always 16.
func EncryptBlock(key AES128Key, block [BlockSize]byte) [BlockSize]byte {
	c, err := aes.NewCipher(key[:])
	if err != nil {
		panic("lorawan: aes.NewCipher rejected a 16-byte key: " + err.Error())
	}

	var out [BlockSize]byte
	c.Encrypt(out[:], block[:])
	return out
}
